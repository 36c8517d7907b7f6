package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sangammgr88/exam-portal-gateway/internal/model"
	"github.com/sangammgr88/exam-portal-gateway/internal/upstream"
)

// Phase enumerates the attempt lifecycle states. The only legal transitions
// are IDLE→STARTED, STARTED→SUBMITTING, SUBMITTING→SUBMITTED and
// SUBMITTING→STARTED (submission failed, attempt stays open).
type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhaseStarted    Phase = "STARTED"
	PhaseSubmitting Phase = "SUBMITTING"
	PhaseSubmitted  Phase = "SUBMITTED"
)

// Controller state machine errors.
var (
	ErrNotStarted       = errors.New("attempt not started")
	ErrAlreadyStarted   = errors.New("attempt already started")
	ErrSubmitInFlight   = errors.New("submission already in flight")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrUnknownQuestion  = errors.New("unknown question id")
)

// ExamLoader fetches exam definitions. Implemented by upstream.Client.
type ExamLoader interface {
	GetExam(ctx context.Context, examID, token string) (*model.ExamDefinition, error)
}

// ResultSubmitter accepts finished attempts. Implemented by upstream.Client.
type ResultSubmitter interface {
	SubmitResult(ctx context.Context, token string, sub *model.ResultSubmission) error
}

// EventType labels controller notifications.
type EventType string

const (
	EventStarted      EventType = "started"
	EventTimeSync     EventType = "time_sync"
	EventSubmitted    EventType = "submitted"
	EventSubmitFailed EventType = "submit_failed"
)

// Event is a controller notification, fanned out to live channel
// subscribers by the hub.
type Event struct {
	Type      EventType               `json:"event"`
	Remaining int                     `json:"remaining_seconds"`
	Result    *model.SubmissionResult `json:"result,omitempty"`
	Message   string                  `json:"message,omitempty"`
}

// QuestionStatus is the per-question answered/flagged state used to render
// the question navigator.
type QuestionStatus struct {
	QuestionID string `json:"question_id"`
	Answered   bool   `json:"answered"`
	Flagged    bool   `json:"flagged"`
}

// State is a consistent read-only snapshot of an attempt.
type State struct {
	Phase            Phase                   `json:"phase"`
	CurrentIndex     int                     `json:"current_index"`
	RemainingSeconds int                     `json:"remaining_seconds"`
	AnsweredCount    int                     `json:"answered_count"`
	FlaggedCount     int                     `json:"flagged_count"`
	Progress         float64                 `json:"progress"`
	Questions        []QuestionStatus        `json:"questions"`
	Result           *model.SubmissionResult `json:"result,omitempty"`
}

// Controller owns the session state and answer records of exactly one exam
// attempt. It enforces the timing contract and the submit-exactly-once
// contract; everything else (transport, persistence, fan-out) lives outside.
type Controller struct {
	mu sync.Mutex

	exam       *model.ExamDefinition
	cred       model.Credential
	answers    []model.AnswerRecord
	byQuestion map[string]int

	current   int
	remaining int
	phase     Phase
	startedAt time.Time
	// timeoutFired guards the automatic-submission transition: the tick
	// that lands on zero fires it once, later ticks (including ones after
	// a failed submission) never re-fire it.
	timeoutFired bool
	result       *model.SubmissionResult

	now    func() time.Time
	notify func(Event)
}

// Load fetches the exam definition and builds an idle controller: one empty
// answer record per question, remaining time = duration × 60 seconds,
// countdown not running. A missing credential fails before any network
// call; an inactive exam fails after the fetch but before a session exists.
func Load(ctx context.Context, loader ExamLoader, examID string, cred model.Credential) (*Controller, error) {
	if cred.Empty() {
		return nil, upstream.ErrUnauthorized
	}

	exam, err := loader.GetExam(ctx, examID, cred.Token)
	if err != nil {
		return nil, err
	}
	if !exam.IsActive {
		return nil, upstream.ErrInactive
	}

	c := &Controller{
		exam:       exam,
		cred:       cred,
		answers:    make([]model.AnswerRecord, len(exam.Questions)),
		byQuestion: make(map[string]int, len(exam.Questions)),
		remaining:  exam.DurationMinutes * 60,
		phase:      PhaseIdle,
		now:        time.Now,
	}
	for i := range exam.Questions {
		c.answers[i] = model.AnswerRecord{QuestionID: exam.Questions[i].ID}
		c.byQuestion[exam.Questions[i].ID] = i
	}
	return c, nil
}

// SetNotify installs the event sink. Must be called before Start.
func (c *Controller) SetNotify(fn func(Event)) {
	c.mu.Lock()
	c.notify = fn
	c.mu.Unlock()
}

// Exam returns the read-only exam definition of this attempt.
func (c *Controller) Exam() *model.ExamDefinition {
	return c.exam
}

// Credential returns the credential this attempt was loaded with.
func (c *Controller) Credential() model.Credential {
	return c.cred
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// StartedAt returns the wall-clock start of the attempt (zero before Start).
func (c *Controller) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// Start marks the attempt started and arms the countdown. Irreversible.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.phase = PhaseStarted
	c.startedAt = c.now()
	remaining := c.remaining
	c.mu.Unlock()

	c.emit(Event{Type: EventStarted, Remaining: remaining})
	return nil
}

// RestoreAnswers overwrites answer records from a snapshot. Only legal on
// an idle controller; records for unknown question ids are dropped.
func (c *Controller) RestoreAnswers(records map[string]model.AnswerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseIdle {
		return
	}
	for qid, rec := range records {
		if i, ok := c.byQuestion[qid]; ok {
			c.answers[i].Answer = rec.Answer
			c.answers[i].Flagged = rec.Flagged
		}
	}
}

// Resume re-enters a started attempt whose original start time is known
// (snapshot restore after a reconnect or gateway restart). Remaining time
// is recomputed from the original start, floored at zero so the next tick
// fires the timeout submission.
func (c *Controller) Resume(startedAt time.Time) error {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.phase = PhaseStarted
	c.startedAt = startedAt
	elapsed := int(c.now().Sub(startedAt) / time.Second)
	c.remaining = c.exam.DurationMinutes*60 - elapsed
	if c.remaining < 0 {
		c.remaining = 0
	}
	remaining := c.remaining
	c.mu.Unlock()

	c.emit(Event{Type: EventStarted, Remaining: remaining})
	return nil
}

// RecordAnswer overwrites the answer value of one record; all other records
// are untouched. No validation of the value against the question type is
// performed here.
func (c *Controller) RecordAnswer(questionID, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutableLocked(); err != nil {
		return err
	}
	i, ok := c.byQuestion[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	c.answers[i].Answer = value
	return nil
}

// ToggleFlag flips the review flag of one record, independent of its
// answer value.
func (c *Controller) ToggleFlag(questionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutableLocked(); err != nil {
		return err
	}
	i, ok := c.byQuestion[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	c.answers[i].Flagged = !c.answers[i].Flagged
	return nil
}

// Answer returns a copy of the answer record for one question.
func (c *Controller) Answer(questionID string) (model.AnswerRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.byQuestion[questionID]
	if !ok {
		return model.AnswerRecord{}, ErrUnknownQuestion
	}
	return c.answers[i], nil
}

// NavigateTo moves the current-question pointer, clamped to the valid
// range. Navigation never requires the current question to be answered.
func (c *Controller) NavigateTo(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.answers) == 0 {
		return
	}
	if index < 0 {
		index = 0
	}
	if max := len(c.answers) - 1; index > max {
		index = max
	}
	c.current = index
}

// Tick advances the countdown by one second, floored at zero. It returns
// true exactly once: on the tick that lands on zero while the attempt is
// still open, which is the signal to fire the automatic submission. Ticks
// in any other phase, or after the timeout already fired, are no-ops.
func (c *Controller) Tick() bool {
	c.mu.Lock()
	if c.phase != PhaseStarted {
		c.mu.Unlock()
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	remaining := c.remaining
	fire := remaining == 0 && !c.timeoutFired
	if fire {
		c.timeoutFired = true
	}
	c.mu.Unlock()

	c.emit(Event{Type: EventTimeSync, Remaining: remaining})
	return fire
}

// BeginSubmit attempts the STARTED→SUBMITTING transition and, on success,
// freezes the answer records into a submission payload. Exactly one caller
// wins when a timeout tick and a manual submit race; the loser gets
// ErrSubmitInFlight (or ErrAlreadySubmitted) and must treat it as a no-op.
func (c *Controller) BeginSubmit() (*model.ResultSubmission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case PhaseIdle:
		return nil, ErrNotStarted
	case PhaseSubmitting:
		return nil, ErrSubmitInFlight
	case PhaseSubmitted:
		return nil, ErrAlreadySubmitted
	}
	c.phase = PhaseSubmitting

	answers := make([]model.AnswerRecord, len(c.answers))
	copy(answers, c.answers)

	return &model.ResultSubmission{
		ExamID:      c.exam.ID,
		StudentID:   c.cred.StudentID,
		Answers:     answers,
		Score:       c.provisionalScoreLocked(),
		TotalMarks:  c.exam.TotalMarks,
		SubmittedAt: c.now().UTC(),
	}, nil
}

// FinishSubmit completes a successful submission: the attempt becomes
// terminal and all further mutation is rejected.
func (c *Controller) FinishSubmit(sub *model.ResultSubmission, trigger model.SubmitTrigger) *model.SubmissionResult {
	c.mu.Lock()
	c.phase = PhaseSubmitted
	c.result = &model.SubmissionResult{
		Score:       sub.Score,
		TotalMarks:  sub.TotalMarks,
		SubmittedAt: sub.SubmittedAt,
		Trigger:     trigger,
	}
	result := c.result
	remaining := c.remaining
	c.mu.Unlock()

	c.emit(Event{Type: EventSubmitted, Remaining: remaining, Result: result})
	return result
}

// FailSubmit rolls a failed submission back to STARTED so the attempt stays
// open and can be retried. The countdown state is left untouched.
func (c *Controller) FailSubmit(cause error) {
	c.mu.Lock()
	c.phase = PhaseStarted
	remaining := c.remaining
	c.mu.Unlock()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	c.emit(Event{Type: EventSubmitFailed, Remaining: remaining, Message: msg})
}

// Snapshot returns a consistent read-only view of the attempt.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Phase:            c.phase,
		CurrentIndex:     c.current,
		RemainingSeconds: c.remaining,
		Questions:        make([]QuestionStatus, len(c.answers)),
		Result:           c.result,
	}
	for i := range c.answers {
		rec := &c.answers[i]
		st.Questions[i] = QuestionStatus{
			QuestionID: rec.QuestionID,
			Answered:   rec.Answered(),
			Flagged:    rec.Flagged,
		}
		if rec.Answered() {
			st.AnsweredCount++
		}
		if rec.Flagged {
			st.FlaggedCount++
		}
	}
	if n := len(c.answers); n > 0 {
		st.Progress = float64(st.AnsweredCount) / float64(n) * 100
	}
	return st
}

// mutableLocked gates answer/flag mutation on the lifecycle phase.
func (c *Controller) mutableLocked() error {
	switch c.phase {
	case PhaseIdle:
		return ErrNotStarted
	case PhaseSubmitting:
		return ErrSubmitInFlight
	case PhaseSubmitted:
		return ErrAlreadySubmitted
	}
	return nil
}

// provisionalScoreLocked computes the client-side score: full points for a
// multiple-choice answer exactly matching the correct option's text, zero
// otherwise. Free-text questions always contribute zero; grading those is
// the upstream's job. Matching by option text (not identity) mirrors the
// upstream's scoring contract.
func (c *Controller) provisionalScoreLocked() int {
	score := 0
	for i := range c.exam.Questions {
		q := &c.exam.Questions[i]
		if q.QuestionType != model.QuestionTypeMCQ {
			continue
		}
		correct, ok := q.CorrectOptionText()
		if !ok {
			continue
		}
		if idx, found := c.byQuestion[q.ID]; found && c.answers[idx].Answer == correct {
			score += q.Points
		}
	}
	return score
}

func (c *Controller) emit(e Event) {
	c.mu.Lock()
	fn := c.notify
	c.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}
