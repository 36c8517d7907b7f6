package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptAnswersKey returns the Redis key for a student's autosaved answers
// on one exam. The hash maps question id to a serialized answer record.
func (r *CacheKeyStruct) AttemptAnswersKey(examID, studentID string) string {
	return fmt.Sprintf("student:%s:exam:%s:answers", studentID, examID)
}

// AttemptStartKey returns the Redis key for a student's attempt start time
// on one exam, stored as a Unix timestamp.
func (r *CacheKeyStruct) AttemptStartKey(examID, studentID string) string {
	return fmt.Sprintf("student:%s:exam:%s:attempt_start", studentID, examID)
}

var CacheKey = NewCacheKeyStruct()
