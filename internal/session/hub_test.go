package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sangammgr88/exam-portal-gateway/internal/model"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	err   error
	calls int
	block chan struct{}
	last  *model.ResultSubmission
}

func (f *fakeSubmitter) SubmitResult(ctx context.Context, token string, sub *model.ResultSubmission) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = sub
	return f.err
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSnapshotStore struct {
	mu      sync.Mutex
	answers map[string]model.AnswerRecord
	started *time.Time
	cleared bool
	saved   []string
}

func (f *fakeSnapshotStore) SaveAnswer(examID, studentID string, rec model.AnswerRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, rec.QuestionID)
}

func (f *fakeSnapshotStore) SaveStart(examID, studentID string, startedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := startedAt
	f.started = &t
}

func (f *fakeSnapshotStore) Restore(ctx context.Context, examID, studentID string) (map[string]model.AnswerRecord, *time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answers, f.started, nil
}

func (f *fakeSnapshotStore) Clear(examID, studentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
}

func newTestHub(sub *fakeSubmitter, snap SnapshotStore, retry RetryQueue) *Hub {
	return NewHub(&fakeLoader{exam: testExam()}, sub, snap, retry, zerolog.Nop(), time.Hour)
}

func TestCreateAttemptIsIdempotentPerOwner(t *testing.T) {
	hub := newTestHub(&fakeSubmitter{}, nil, nil)

	first, err := hub.CreateAttempt(context.Background(), "exam-1", testCred())
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	second, err := hub.CreateAttempt(context.Background(), "exam-1", testCred())
	if err != nil {
		t.Fatalf("second CreateAttempt: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("re-join forked a new attempt: %s vs %s", first.ID, second.ID)
	}

	other := testCred()
	other.StudentID = "student-2"
	third, err := hub.CreateAttempt(context.Background(), "exam-1", other)
	if err != nil {
		t.Fatalf("CreateAttempt for second student: %v", err)
	}
	if third.ID == first.ID {
		t.Fatal("attempts must be per student")
	}
}

func TestCreateAttemptRestoresSnapshot(t *testing.T) {
	started := time.Now().Add(-20 * time.Second)
	snap := &fakeSnapshotStore{
		answers: map[string]model.AnswerRecord{
			"q1": {QuestionID: "q1", Answer: "A", Flagged: true},
		},
		started: &started,
	}
	hub := newTestHub(&fakeSubmitter{}, snap, nil)

	att, err := hub.CreateAttempt(context.Background(), "exam-1", testCred())
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	defer hub.drop(att)

	if att.Ctrl.Phase() != PhaseStarted {
		t.Fatalf("phase = %s, want resumed %s", att.Ctrl.Phase(), PhaseStarted)
	}
	rec, _ := att.Ctrl.Answer("q1")
	if rec.Answer != "A" || !rec.Flagged {
		t.Fatalf("restored record = %+v", rec)
	}
	remaining := att.Ctrl.Snapshot().RemainingSeconds
	if remaining <= 0 || remaining > 40 {
		t.Fatalf("remaining = %d, want roughly 40", remaining)
	}
}

func TestHubMirrorsMutationsToSnapshot(t *testing.T) {
	snap := &fakeSnapshotStore{}
	hub := newTestHub(&fakeSubmitter{}, snap, nil)

	att, _ := hub.CreateAttempt(context.Background(), "exam-1", testCred())
	defer hub.drop(att)

	if err := hub.Start(att.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := hub.RecordAnswer(att.ID, "q1", "A"); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if err := hub.ToggleFlag(att.ID, "q2"); err != nil {
		t.Fatalf("ToggleFlag: %v", err)
	}

	snap.mu.Lock()
	defer snap.mu.Unlock()
	if snap.started == nil {
		t.Fatal("start time not persisted")
	}
	if len(snap.saved) != 2 || snap.saved[0] != "q1" || snap.saved[1] != "q2" {
		t.Fatalf("saved = %v, want [q1 q2]", snap.saved)
	}
}

func TestSubmitHappyPath(t *testing.T) {
	sub := &fakeSubmitter{}
	snap := &fakeSnapshotStore{}
	hub := newTestHub(sub, snap, nil)

	att, _ := hub.CreateAttempt(context.Background(), "exam-1", testCred())
	hub.Start(att.ID)
	hub.RecordAnswer(att.ID, "q1", "A")

	result, err := hub.Submit(context.Background(), att.ID, model.TriggerManual)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Score != 1 || result.TotalMarks != 5 {
		t.Fatalf("result = %+v", result)
	}
	if sub.callCount() != 1 {
		t.Fatalf("upstream called %d times, want 1", sub.callCount())
	}
	if !snap.cleared {
		t.Fatal("snapshot not cleared after submission")
	}

	// Terminal attempt stays queryable until retention.
	got, err := hub.Get(att.ID)
	if err != nil {
		t.Fatalf("Get after submit: %v", err)
	}
	if got.Ctrl.Phase() != PhaseSubmitted {
		t.Fatalf("phase = %s, want %s", got.Ctrl.Phase(), PhaseSubmitted)
	}
}

func TestSweepSparesJustSubmittedAttempt(t *testing.T) {
	hub := newTestHub(&fakeSubmitter{}, nil, nil)

	att, _ := hub.CreateAttempt(context.Background(), "exam-1", testCred())
	hub.Start(att.ID)

	// A janitor pass racing the submission must not reap the attempt while
	// the finish bookkeeping is still in flight.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			hub.sweep()
		}
	}()

	if _, err := hub.Submit(context.Background(), att.ID, model.TriggerManual); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-done
	hub.sweep()

	if got, err := hub.Get(att.ID); err != nil {
		t.Fatalf("Get after submit: %v", err)
	} else if got.Ctrl.Phase() != PhaseSubmitted {
		t.Fatalf("phase = %s, want %s", got.Ctrl.Phase(), PhaseSubmitted)
	}
}

func TestConcurrentSubmitCallsUpstreamOnce(t *testing.T) {
	sub := &fakeSubmitter{block: make(chan struct{})}
	hub := newTestHub(sub, nil, nil)

	att, _ := hub.CreateAttempt(context.Background(), "exam-1", testCred())
	hub.Start(att.ID)

	done := make(chan error, 1)
	go func() {
		_, err := hub.Submit(context.Background(), att.ID, model.TriggerManual)
		done <- err
	}()

	// Wait for the first submission to hold the SUBMITTING phase.
	deadline := time.After(time.Second)
	for att.Ctrl.Phase() != PhaseSubmitting {
		select {
		case <-deadline:
			t.Fatal("first submission never reached SUBMITTING")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, err := hub.Submit(context.Background(), att.ID, model.TriggerTimeout); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("loser err = %v, want ErrSubmitInFlight", err)
	}

	close(sub.block)
	if err := <-done; err != nil {
		t.Fatalf("winner err: %v", err)
	}
	if sub.callCount() != 1 {
		t.Fatalf("upstream called %d times, want 1", sub.callCount())
	}
}

func TestFailedTimeoutSubmitGoesToRetryQueue(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("upstream down")}
	var enqueued []uuid.UUID
	retry := RetryQueueFunc(func(id uuid.UUID) { enqueued = append(enqueued, id) })
	hub := newTestHub(sub, nil, retry)

	att, _ := hub.CreateAttempt(context.Background(), "exam-1", testCred())
	hub.Start(att.ID)

	if _, err := hub.Submit(context.Background(), att.ID, model.TriggerTimeout); err == nil {
		t.Fatal("expected submission error")
	}
	if len(enqueued) != 1 || enqueued[0] != att.ID {
		t.Fatalf("enqueued = %v, want [%s]", enqueued, att.ID)
	}
	if att.Ctrl.Phase() != PhaseStarted {
		t.Fatalf("phase = %s, attempt must stay open", att.Ctrl.Phase())
	}

	// Manual failures do not touch the queue.
	if _, err := hub.Submit(context.Background(), att.ID, model.TriggerManual); err == nil {
		t.Fatal("expected submission error")
	}
	if len(enqueued) != 1 {
		t.Fatalf("manual failure enqueued a retry: %v", enqueued)
	}
}

func TestRemoveOnlyBeforeStart(t *testing.T) {
	hub := newTestHub(&fakeSubmitter{}, nil, nil)

	att, _ := hub.CreateAttempt(context.Background(), "exam-1", testCred())
	hub.Start(att.ID)
	if err := hub.Remove(att.ID); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("Remove started attempt err = %v, want ErrAlreadyStarted", err)
	}

	idle, _ := hub.CreateAttempt(context.Background(), "exam-2", testCred())
	if err := hub.Remove(idle.ID); err != nil {
		t.Fatalf("Remove idle attempt: %v", err)
	}
	if _, err := hub.Get(idle.ID); !errors.Is(err, ErrUnknownAttempt) {
		t.Fatalf("Get removed attempt err = %v, want ErrUnknownAttempt", err)
	}
}

func TestSubscribeReceivesLifecycleEvents(t *testing.T) {
	hub := newTestHub(&fakeSubmitter{}, nil, nil)

	att, _ := hub.CreateAttempt(context.Background(), "exam-1", testCred())
	events, unsubscribe, err := hub.Subscribe(att.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	hub.Start(att.ID)

	select {
	case ev := <-events:
		if ev.Type != EventStarted {
			t.Fatalf("event = %s, want %s", ev.Type, EventStarted)
		}
	case <-time.After(time.Second):
		t.Fatal("no started event received")
	}

	if _, err := hub.Submit(context.Background(), att.ID, model.TriggerManual); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Drain time_sync frames until the submitted event arrives.
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventSubmitted {
				if ev.Result == nil {
					t.Fatal("submitted event missing result")
				}
				return
			}
		case <-deadline:
			t.Fatal("no submitted event received")
		}
	}
}

func TestOverview(t *testing.T) {
	hub := newTestHub(&fakeSubmitter{}, nil, nil)

	att, _ := hub.CreateAttempt(context.Background(), "exam-1", testCred())
	hub.Start(att.ID)
	hub.RecordAnswer(att.ID, "q1", "A")

	rows := hub.Overview()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.AttemptID != att.ID || row.ExamID != "exam-1" || row.StudentID != "student-1" {
		t.Fatalf("row = %+v", row)
	}
	if row.Phase != PhaseStarted || row.AnsweredCount != 1 {
		t.Fatalf("row = %+v", row)
	}
}
