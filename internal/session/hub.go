package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sangammgr88/exam-portal-gateway/internal/model"
)

const (
	// tickInterval drives the countdown, one tick per second.
	tickInterval = time.Second
	// submitTimeout bounds one upstream submission round-trip.
	submitTimeout = 30 * time.Second
	janitorPeriod = time.Minute
)

// ErrUnknownAttempt is returned for attempt ids the hub does not track.
var ErrUnknownAttempt = errors.New("unknown attempt")

// SnapshotStore persists answer state outside the process so a reconnect or
// gateway restart does not wipe an in-flight attempt. Save methods are
// fire-and-forget; Restore is best effort.
type SnapshotStore interface {
	SaveAnswer(examID, studentID string, rec model.AnswerRecord)
	SaveStart(examID, studentID string, startedAt time.Time)
	Restore(ctx context.Context, examID, studentID string) (map[string]model.AnswerRecord, *time.Time, error)
	Clear(examID, studentID string)
}

// RetryQueue accepts attempts whose timeout-triggered submission failed and
// must be replayed until the upstream accepts.
type RetryQueue interface {
	Enqueue(attemptID uuid.UUID)
}

// RetryQueueFunc adapts a function to the RetryQueue interface.
type RetryQueueFunc func(attemptID uuid.UUID)

func (f RetryQueueFunc) Enqueue(attemptID uuid.UUID) { f(attemptID) }

// Attempt is one live attempt registered in the hub.
type Attempt struct {
	ID   uuid.UUID
	Ctrl *Controller

	createdAt time.Time

	// mu guards subs, finishedAt and cancelRun. The runner, the janitor
	// and the submit path touch the latter two from different goroutines.
	mu         sync.Mutex
	subs       map[chan Event]struct{}
	finishedAt time.Time
	cancelRun  context.CancelFunc
}

// broadcast fans a controller event out to live channel subscribers.
// Slow subscribers are skipped rather than blocking the tick path.
func (a *Attempt) broadcast(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for ch := range a.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// AttemptSummary is one monitor row describing a live attempt.
type AttemptSummary struct {
	AttemptID        uuid.UUID `json:"attempt_id"`
	ExamID           string    `json:"exam_id"`
	ExamTitle        string    `json:"exam_title"`
	StudentID        string    `json:"student_id"`
	StudentName      string    `json:"student_name,omitempty"`
	Phase            Phase     `json:"phase"`
	RemainingSeconds int       `json:"remaining_seconds"`
	AnsweredCount    int       `json:"answered_count"`
	FlaggedCount     int       `json:"flagged_count"`
	Progress         float64   `json:"progress"`
}

// Hub is the registry of live attempts. It owns the per-attempt countdown
// runners and is the single place where mutations, submissions, and
// snapshot persistence meet.
type Hub struct {
	loader    ExamLoader
	submitter ResultSubmitter
	snap      SnapshotStore
	retry     RetryQueue
	log       zerolog.Logger
	retention time.Duration

	mu       sync.RWMutex
	attempts map[uuid.UUID]*Attempt
	// byOwner deduplicates live attempts per (exam, student) so a page
	// reload re-joins instead of forking a second countdown.
	byOwner map[string]uuid.UUID
}

// NewHub creates an attempt hub. snap and retry may be nil (tests).
func NewHub(loader ExamLoader, submitter ResultSubmitter, snap SnapshotStore, retry RetryQueue, log zerolog.Logger, retention time.Duration) *Hub {
	return &Hub{
		loader:    loader,
		submitter: submitter,
		snap:      snap,
		retry:     retry,
		log:       log.With().Str("component", "attempt_hub").Logger(),
		retention: retention,
		attempts:  make(map[uuid.UUID]*Attempt),
		byOwner:   make(map[string]uuid.UUID),
	}
}

func ownerKey(examID, studentID string) string {
	return studentID + "::" + examID
}

// CreateAttempt loads the exam and registers a new attempt for the
// credential's student. Joining is idempotent: an existing live attempt for
// the same exam and student is returned instead of a second one. When a
// Redis snapshot of a previous attempt exists, its answers and original
// start time are restored and the countdown resumes where it left off.
func (h *Hub) CreateAttempt(ctx context.Context, examID string, cred model.Credential) (*Attempt, error) {
	h.mu.RLock()
	if id, ok := h.byOwner[ownerKey(examID, cred.StudentID)]; ok {
		if att, live := h.attempts[id]; live {
			h.mu.RUnlock()
			return att, nil
		}
	}
	h.mu.RUnlock()

	ctrl, err := Load(ctx, h.loader, examID, cred)
	if err != nil {
		return nil, err
	}

	var resumeAt *time.Time
	if h.snap != nil {
		records, startedAt, err := h.snap.Restore(ctx, examID, cred.StudentID)
		if err != nil {
			h.log.Warn().Err(err).Str("exam_id", examID).Msg("Snapshot restore failed")
		} else {
			if len(records) > 0 {
				ctrl.RestoreAnswers(records)
			}
			resumeAt = startedAt
		}
	}

	att := &Attempt{
		ID:        uuid.New(),
		Ctrl:      ctrl,
		createdAt: time.Now(),
		subs:      make(map[chan Event]struct{}),
	}
	ctrl.SetNotify(att.broadcast)

	h.mu.Lock()
	// Re-check under the write lock: a concurrent join may have won.
	if id, ok := h.byOwner[ownerKey(examID, cred.StudentID)]; ok {
		if existing, live := h.attempts[id]; live {
			h.mu.Unlock()
			return existing, nil
		}
	}
	h.attempts[att.ID] = att
	h.byOwner[ownerKey(examID, cred.StudentID)] = att.ID
	h.mu.Unlock()

	if resumeAt != nil {
		if err := ctrl.Resume(*resumeAt); err == nil {
			h.startRunner(att)
		}
	}

	h.log.Info().
		Str("attempt_id", att.ID.String()).
		Str("exam_id", examID).
		Str("student_id", cred.StudentID).
		Bool("resumed", resumeAt != nil).
		Msg("Attempt created")
	return att, nil
}

// Get returns a live attempt by id.
func (h *Hub) Get(id uuid.UUID) (*Attempt, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	att, ok := h.attempts[id]
	if !ok {
		return nil, ErrUnknownAttempt
	}
	return att, nil
}

// Start begins the countdown of an idle attempt and launches its runner.
func (h *Hub) Start(id uuid.UUID) error {
	att, err := h.Get(id)
	if err != nil {
		return err
	}
	if err := att.Ctrl.Start(); err != nil {
		return err
	}
	if h.snap != nil {
		exam := att.Ctrl.Exam()
		h.snap.SaveStart(exam.ID, att.Ctrl.Credential().StudentID, att.Ctrl.StartedAt())
	}
	h.startRunner(att)
	return nil
}

// RecordAnswer mutates one answer record and mirrors it to the snapshot
// store.
func (h *Hub) RecordAnswer(id uuid.UUID, questionID, value string) error {
	att, err := h.Get(id)
	if err != nil {
		return err
	}
	if err := att.Ctrl.RecordAnswer(questionID, value); err != nil {
		return err
	}
	h.snapshotAnswer(att, questionID)
	return nil
}

// ToggleFlag flips one review flag and mirrors it to the snapshot store.
func (h *Hub) ToggleFlag(id uuid.UUID, questionID string) error {
	att, err := h.Get(id)
	if err != nil {
		return err
	}
	if err := att.Ctrl.ToggleFlag(questionID); err != nil {
		return err
	}
	h.snapshotAnswer(att, questionID)
	return nil
}

func (h *Hub) snapshotAnswer(att *Attempt, questionID string) {
	if h.snap == nil {
		return
	}
	rec, err := att.Ctrl.Answer(questionID)
	if err != nil {
		return
	}
	h.snap.SaveAnswer(att.Ctrl.Exam().ID, att.Ctrl.Credential().StudentID, rec)
}

// Submit runs the guarded submission path: winner of the STARTED→SUBMITTING
// transition performs exactly one upstream call. On upstream failure the
// attempt rolls back to STARTED; timeout-triggered failures are additionally
// handed to the retry queue, which replays them until the upstream accepts.
func (h *Hub) Submit(ctx context.Context, id uuid.UUID, trigger model.SubmitTrigger) (*model.SubmissionResult, error) {
	att, err := h.Get(id)
	if err != nil {
		return nil, err
	}

	sub, err := att.Ctrl.BeginSubmit()
	if err != nil {
		return nil, err
	}

	if err := h.submitter.SubmitResult(ctx, att.Ctrl.Credential().Token, sub); err != nil {
		att.Ctrl.FailSubmit(err)
		h.log.Warn().Err(err).
			Str("attempt_id", id.String()).
			Str("trigger", string(trigger)).
			Msg("Submission failed, attempt stays open")
		if trigger == model.TriggerTimeout && h.retry != nil {
			h.retry.Enqueue(id)
		}
		return nil, err
	}

	result := att.Ctrl.FinishSubmit(sub, trigger)
	h.finish(att)
	h.log.Info().
		Str("attempt_id", id.String()).
		Str("trigger", string(trigger)).
		Int("score", result.Score).
		Int("total_marks", result.TotalMarks).
		Msg("Attempt submitted")
	return result, nil
}

// Remove cancels an attempt. Only legal before Start; once running, only
// timeout or submission ends an attempt.
func (h *Hub) Remove(id uuid.UUID) error {
	att, err := h.Get(id)
	if err != nil {
		return err
	}
	if att.Ctrl.Phase() != PhaseIdle {
		return ErrAlreadyStarted
	}
	h.drop(att)
	return nil
}

// Subscribe attaches a live event channel to an attempt. The returned
// cancel func must be called when the consumer goes away.
func (h *Hub) Subscribe(id uuid.UUID) (<-chan Event, func(), error) {
	att, err := h.Get(id)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan Event, 16)
	att.mu.Lock()
	att.subs[ch] = struct{}{}
	att.mu.Unlock()

	cancel := func() {
		att.mu.Lock()
		delete(att.subs, ch)
		att.mu.Unlock()
	}
	return ch, cancel, nil
}

// Overview returns monitor rows for every registered attempt.
func (h *Hub) Overview() []AttemptSummary {
	h.mu.RLock()
	attempts := make([]*Attempt, 0, len(h.attempts))
	for _, att := range h.attempts {
		attempts = append(attempts, att)
	}
	h.mu.RUnlock()

	rows := make([]AttemptSummary, 0, len(attempts))
	for _, att := range attempts {
		st := att.Ctrl.Snapshot()
		exam := att.Ctrl.Exam()
		cred := att.Ctrl.Credential()
		rows = append(rows, AttemptSummary{
			AttemptID:        att.ID,
			ExamID:           exam.ID,
			ExamTitle:        exam.Title,
			StudentID:        cred.StudentID,
			StudentName:      cred.Name,
			Phase:            st.Phase,
			RemainingSeconds: st.RemainingSeconds,
			AnsweredCount:    st.AnsweredCount,
			FlaggedCount:     st.FlaggedCount,
			Progress:         st.Progress,
		})
	}
	return rows
}

// StartJanitor runs the retention sweep until ctx is canceled. Call in a
// goroutine.
func (h *Hub) StartJanitor(ctx context.Context) {
	ticker := time.NewTicker(janitorPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *Hub) sweep() {
	h.mu.RLock()
	var stale []*Attempt
	for _, att := range h.attempts {
		if att.Ctrl.Phase() != PhaseSubmitted {
			continue
		}
		att.mu.Lock()
		finished := att.finishedAt
		att.mu.Unlock()
		// The phase flips to SUBMITTED slightly before finish() records the
		// time; a zero finishedAt means the submission is still wrapping up.
		if !finished.IsZero() && time.Since(finished) > h.retention {
			stale = append(stale, att)
		}
	}
	h.mu.RUnlock()

	for _, att := range stale {
		h.drop(att)
	}
}

// startRunner launches the 1 s countdown loop for a started attempt. The
// ticker stops on teardown or terminal submission, but keeps running across
// failed submissions so retries remain possible.
func (h *Hub) startRunner(att *Attempt) {
	ctx, cancel := context.WithCancel(context.Background())
	att.mu.Lock()
	att.cancelRun = cancel
	att.mu.Unlock()

	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if att.Ctrl.Tick() {
					go h.autoSubmit(att)
				}
				if att.Ctrl.Phase() == PhaseSubmitted {
					return
				}
			}
		}
	}()
}

func (h *Hub) autoSubmit(att *Attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	if _, err := h.Submit(ctx, att.ID, model.TriggerTimeout); err != nil {
		h.log.Warn().Err(err).Str("attempt_id", att.ID.String()).Msg("Automatic submission failed")
	}
}

// finish stops the runner and clears the snapshot after a confirmed
// submission, keeping the terminal attempt registered until the janitor
// retention window expires.
func (h *Hub) finish(att *Attempt) {
	att.mu.Lock()
	cancel := att.cancelRun
	att.finishedAt = time.Now()
	att.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if h.snap != nil {
		h.snap.Clear(att.Ctrl.Exam().ID, att.Ctrl.Credential().StudentID)
	}
}

// drop removes an attempt from both indexes and stops its runner.
func (h *Hub) drop(att *Attempt) {
	att.mu.Lock()
	cancel := att.cancelRun
	att.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	h.mu.Lock()
	delete(h.attempts, att.ID)
	key := ownerKey(att.Ctrl.Exam().ID, att.Ctrl.Credential().StudentID)
	if h.byOwner[key] == att.ID {
		delete(h.byOwner, key)
	}
	h.mu.Unlock()
}
