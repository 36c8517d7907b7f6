package model

import "time"

// AnswerRecord is the mutable per-question answer state held during an
// attempt. The JSON tags match the result submission wire format, so the
// records are serialized as-is at submission time.
type AnswerRecord struct {
	QuestionID string `json:"questionId"`
	// Answer holds the selected option text for multiple choice, free text
	// otherwise. Empty string means unanswered.
	Answer  string `json:"answer"`
	Flagged bool   `json:"flagged"`
}

// Answered reports whether the record holds a non-empty answer.
func (r *AnswerRecord) Answered() bool {
	return r.Answer != ""
}

// SubmitTrigger records what caused a submission.
type SubmitTrigger string

const (
	TriggerManual  SubmitTrigger = "manual"
	TriggerTimeout SubmitTrigger = "timeout"
)

// ResultSubmission is the payload POSTed to the result submission service.
// The score is provisional: multiple choice only, re-graded upstream.
type ResultSubmission struct {
	ExamID      string         `json:"examId"`
	StudentID   string         `json:"studentId"`
	Answers     []AnswerRecord `json:"answers"`
	Score       int            `json:"score"`
	TotalMarks  int            `json:"totalMarks"`
	SubmittedAt time.Time      `json:"submittedAt"`
}

// SubmissionResult is what the portal reports back once the upstream has
// accepted an attempt.
type SubmissionResult struct {
	Score       int           `json:"score"`
	TotalMarks  int           `json:"total_marks"`
	SubmittedAt time.Time     `json:"submitted_at"`
	Trigger     SubmitTrigger `json:"trigger"`
}

// ─── Request payloads ───────────────────────────────────────────────

// CreateAttemptRequest starts the load phase of an attempt.
type CreateAttemptRequest struct {
	ExamID string `json:"exam_id" binding:"required"`
}

// AnswerRequest records or clears an answer. Value is free-form; the form
// layer is responsible for sending something consistent with the question
// type.
type AnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required"`
	Value      string `json:"value"`
}

// FlagRequest toggles the review flag of one question.
type FlagRequest struct {
	QuestionID string `json:"question_id" binding:"required"`
}

// PositionRequest moves the current-question pointer. A pointer type so
// index 0 passes required validation.
type PositionRequest struct {
	Index *int `json:"index" binding:"required"`
}
