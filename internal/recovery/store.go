// Package recovery owns the durable per-session progress record that lets an
// exam session resume after a reload or server restart. The record is read
// exactly once at session start and written on every mutation and on the
// autosave cadence; it is erased on successful submission or explicit exit.
package recovery

import (
	"context"
	"errors"
)

// ErrAbsent is returned by Read when no record exists for the key.
var ErrAbsent = errors.New("recovery: record absent")

// Store is a durable keyed byte store. Keys are scoped per
// assessment+student (see config.CacheKey.RecoveryRecordKey).
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
	Erase(ctx context.Context, key string) error
}
