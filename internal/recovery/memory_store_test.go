package recovery

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Read(ctx, "missing"); !errors.Is(err, ErrAbsent) {
		t.Fatalf("read missing err = %v, want ErrAbsent", err)
	}

	if err := s.Write(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.Read(ctx, "k")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("read = %q, want v1", got)
	}

	// Overwrite replaces the record.
	if err := s.Write(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = s.Read(ctx, "k")
	if string(got) != "v2" {
		t.Fatalf("read after overwrite = %q, want v2", got)
	}
}

func TestMemoryStoreErase(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Erase(ctx, "k"); err != nil {
		t.Fatalf("erase missing key: %v", err)
	}

	if err := s.Write(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Erase(ctx, "k"); err != nil {
		t.Fatalf("erase: %v", err)
	}
	if _, err := s.Read(ctx, "k"); !errors.Is(err, ErrAbsent) {
		t.Fatalf("read after erase err = %v, want ErrAbsent", err)
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	in := []byte("original")
	if err := s.Write(ctx, "k", in); err != nil {
		t.Fatalf("write: %v", err)
	}
	in[0] = 'X'

	out, err := s.Read(ctx, "k")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(out) != "original" {
		t.Fatalf("stored value aliased the caller's slice: %q", out)
	}

	out[0] = 'Y'
	again, _ := s.Read(ctx, "k")
	if string(again) != "original" {
		t.Fatalf("returned value aliased the stored slice: %q", again)
	}
}
