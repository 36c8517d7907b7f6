package model

import "time"

// ExamRef is the populated exam reference inside an upstream result row.
type ExamRef struct {
	ID    string `json:"_id"`
	Title string `json:"examTitle"`
}

// StudentRef is the populated student reference inside an upstream result row.
type StudentRef struct {
	ID          string `json:"_id"`
	FullName    string `json:"fullName"`
	Email       string `json:"email,omitempty"`
	StudentID   string `json:"studentId,omitempty"`
	Institution string `json:"institution,omitempty"`
	Program     string `json:"program,omitempty"`
	Semester    string `json:"semester,omitempty"`
}

// StudentResult mirrors one row of the upstream result service's
// per-student listing, including the proctoring violation counter the
// upstream computed during the attempt.
type StudentResult struct {
	ID             string     `json:"_id"`
	Exam           ExamRef    `json:"examId"`
	Student        StudentRef `json:"studentId"`
	Score          int        `json:"score"`
	TotalMarks     int        `json:"totalMarks"`
	SubmittedAt    time.Time  `json:"submittedAt"`
	ViolationCount int        `json:"violationCount"`
}

// ViolationSeverity buckets a result's violation count for display.
type ViolationSeverity string

const (
	SeverityMedium ViolationSeverity = "medium"
	SeverityHigh   ViolationSeverity = "high"
)

// ViolationEntry is one display row of a student's violation log, derived
// from result rows. The gateway never computes violations itself; it only
// rearranges what the upstream already recorded.
type ViolationEntry struct {
	Exam        string            `json:"exam"`
	Timestamp   time.Time         `json:"timestamp"`
	Severity    ViolationSeverity `json:"severity"`
	Description string            `json:"description"`
}

// ReportStats aggregates a student's result history for the admin view.
type ReportStats struct {
	TotalExams      int     `json:"total_exams"`
	AverageScore    float64 `json:"average_score"`
	TotalViolations int     `json:"total_violations"`
}

// StudentReport is the admin-facing review page payload: raw results plus
// the derived violation log and aggregates.
type StudentReport struct {
	Student    StudentRef       `json:"student"`
	Results    []StudentResult  `json:"results"`
	Violations []ViolationEntry `json:"violations"`
	Stats      ReportStats      `json:"stats"`
}
