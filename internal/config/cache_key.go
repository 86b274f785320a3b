package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session.
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// RecoveryRecordKey returns the durable record key for a student's exam
// session progress snapshot. Scoped per assessment+student so a snapshot
// for one assessment can never be restored into another.
func (r *CacheKeyStruct) RecoveryRecordKey(assessmentID string, studentID int) string {
	return fmt.Sprintf("student:%d:assessment:%s:progress", studentID, assessmentID)
}

// AssessmentPayloadKey returns the cache key for the student-facing
// assessment payload (correct options stripped).
func (r *CacheKeyStruct) AssessmentPayloadKey(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:payload", assessmentID)
}

var CacheKey = NewCacheKeyStruct()
