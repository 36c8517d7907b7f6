package model

// QuestionType distinguishes auto-scorable multiple choice from free text.
type QuestionType string

const (
	QuestionTypeMCQ  QuestionType = "mcq"
	QuestionTypeText QuestionType = "text"
)

// Difficulty is the author-assigned difficulty label of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Option is one selectable choice of a multiple-choice question. IsCorrect
// is never exposed to students; it only lives in the server-side copy used
// for provisional scoring.
type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question mirrors the upstream catalog's question wire format.
type Question struct {
	ID           string       `json:"_id"`
	QuestionText string       `json:"questionText"`
	QuestionType QuestionType `json:"questionType"`
	Points       int          `json:"points"`
	Difficulty   Difficulty   `json:"difficulty"`
	Options      []Option     `json:"options,omitempty"`
	// TextAnswer is the author's reference answer for free-text questions.
	// Grading of those happens upstream; it is never sent to students.
	TextAnswer string `json:"textAnswer,omitempty"`
}

// CorrectOptionText returns the text of the first option flagged correct.
// A multiple-choice question with no correct option is legal data; callers
// score it as zero for any response.
func (q *Question) CorrectOptionText() (string, bool) {
	for i := range q.Options {
		if q.Options[i].IsCorrect {
			return q.Options[i].Text, true
		}
	}
	return "", false
}

// ExamDefinition mirrors the upstream catalog's exam wire format. It is
// immutable once fetched; the session controller holds a read-only copy
// for the duration of an attempt.
type ExamDefinition struct {
	ID              string     `json:"_id"`
	Title           string     `json:"examTitle"`
	Description     string     `json:"description,omitempty"`
	DurationMinutes int        `json:"duration"`
	TotalMarks      int        `json:"totalMarks"`
	PassingMarks    *int       `json:"passingMarks,omitempty"`
	Subject         string     `json:"subject,omitempty"`
	Questions       []Question `json:"questions"`
	IsActive        bool       `json:"isActive"`
}

// QuestionView is a question stripped of correctness data, safe to send to
// students taking the exam.
type QuestionView struct {
	ID           string       `json:"id"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Points       int          `json:"points"`
	Difficulty   Difficulty   `json:"difficulty"`
	Options      []string     `json:"options,omitempty"`
}

// ExamView is the student-facing projection of an exam: everything needed
// for the instructions screen and question rendering, nothing that would
// leak answers.
type ExamView struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	DurationMinutes int            `json:"duration_minutes"`
	TotalMarks      int            `json:"total_marks"`
	PassingMarks    *int           `json:"passing_marks,omitempty"`
	Subject         string         `json:"subject,omitempty"`
	QuestionCount   int            `json:"question_count"`
	Questions       []QuestionView `json:"questions,omitempty"`
}

// View builds the sanitized student projection. includeQuestions is false
// for catalog listings, true for the attempt paper.
func (e *ExamDefinition) View(includeQuestions bool) ExamView {
	v := ExamView{
		ID:              e.ID,
		Title:           e.Title,
		Description:     e.Description,
		DurationMinutes: e.DurationMinutes,
		TotalMarks:      e.TotalMarks,
		PassingMarks:    e.PassingMarks,
		Subject:         e.Subject,
		QuestionCount:   len(e.Questions),
	}
	if !includeQuestions {
		return v
	}
	v.Questions = make([]QuestionView, 0, len(e.Questions))
	for i := range e.Questions {
		q := &e.Questions[i]
		qv := QuestionView{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			Points:       q.Points,
			Difficulty:   q.Difficulty,
		}
		if q.QuestionType == QuestionTypeMCQ {
			qv.Options = make([]string, 0, len(q.Options))
			for _, opt := range q.Options {
				qv.Options = append(qv.Options, opt.Text)
			}
		}
		v.Questions = append(v.Questions, qv)
	}
	return v
}
