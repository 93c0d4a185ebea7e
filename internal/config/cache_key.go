package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionNamespace returns the namespace that holds every persisted key of one
// student's attempt at a contest.
func (r *CacheKeyStruct) SessionNamespace(contestID string, studentID int) string {
	return fmt.Sprintf("student:%d:contest:%s", studentID, contestID)
}

// SessionHashKey returns the Redis hash backing a session namespace.
func (r *CacheKeyStruct) SessionHashKey(namespace string) string {
	return "proctor:" + namespace
}

// StudentContestCompletedKey marks a contest as submitted for a student.
func (r *CacheKeyStruct) StudentContestCompletedKey(contestID string, studentID int) string {
	return fmt.Sprintf("student:%d:contest:%s:completed", studentID, contestID)
}

// ContestPaperKey returns the cache key for a contest's full paper (with answer key).
func (r *CacheKeyStruct) ContestPaperKey(contestID string) string {
	return fmt.Sprintf("contest:%s:paper", contestID)
}

// ContestConfigKey returns the cache key for a contest's test configuration blob.
func (r *CacheKeyStruct) ContestConfigKey(contestID string) string {
	return fmt.Sprintf("contest:%s:config", contestID)
}

// ContestMonitorChannel returns the Redis PubSub channel name for a contest monitor.
func (r *CacheKeyStruct) ContestMonitorChannel(contestID string) string {
	return fmt.Sprintf("contest:%s:monitor", contestID)
}

var CacheKey = NewCacheKeyStruct()

// Field names inside a session namespace. Each key has exactly one writer:
// the timer owns start/section keys, the ledger owns warning counters and the
// controller owns answers, review marks, question order and the fullscreen flag.
const (
	KeyStartEpoch        = "start_epoch"
	KeySectionIndex      = "section_index"
	KeyRemainingSnapshot = "remaining_snapshot"
	KeyAnswers           = "answers"
	KeyReviewMarks       = "review_marks"
	KeyQuestionOrder     = "question_order"
	KeyFullscreenEnabled = "fullscreen_enabled"
)

// SectionStartKey returns the field holding the start epoch of section i.
func SectionStartKey(i int) string {
	return fmt.Sprintf("section_start:%d", i)
}

// WarningCountKey returns the field holding the counter for a warning category.
func WarningCountKey(category string) string {
	return "warning_count:" + category
}
