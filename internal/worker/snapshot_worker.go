package worker

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sangammgr88/exam-portal-gateway/internal/config"
	"github.com/sangammgr88/exam-portal-gateway/internal/model"
)

const snapshotQueueSize = 256

type snapshotKind int

const (
	opAnswer snapshotKind = iota
	opStart
	opClear
)

type snapshotOp struct {
	kind      snapshotKind
	examID    string
	studentID string
	record    model.AnswerRecord
	startedAt time.Time
}

// SnapshotWorker mirrors attempt answer state into Redis so a reconnect or
// gateway restart does not wipe an in-flight attempt. Writes are queued on
// a channel and applied by a single background loop; restores read Redis
// directly. Implements session.SnapshotStore.
type SnapshotWorker struct {
	rdb *redis.Client
	log zerolog.Logger
	ttl time.Duration
	ops chan snapshotOp
}

// NewSnapshotWorker creates a SnapshotWorker. ttl bounds how long snapshots
// outlive their attempt.
func NewSnapshotWorker(rdb *redis.Client, log zerolog.Logger, ttl time.Duration) *SnapshotWorker {
	return &SnapshotWorker{
		rdb: rdb,
		log: log.With().Str("component", "snapshot_worker").Logger(),
		ttl: ttl,
		ops: make(chan snapshotOp, snapshotQueueSize),
	}
}

// SaveAnswer queues one answer record for persistence. Never blocks the
// tick/mutation path: if the queue is full the write is dropped and the
// next mutation of the same question re-snapshots it.
func (w *SnapshotWorker) SaveAnswer(examID, studentID string, rec model.AnswerRecord) {
	w.enqueue(snapshotOp{kind: opAnswer, examID: examID, studentID: studentID, record: rec})
}

// SaveStart queues the attempt start time for persistence.
func (w *SnapshotWorker) SaveStart(examID, studentID string, startedAt time.Time) {
	w.enqueue(snapshotOp{kind: opStart, examID: examID, studentID: studentID, startedAt: startedAt})
}

// Clear queues deletion of an attempt's snapshot after a confirmed
// submission.
func (w *SnapshotWorker) Clear(examID, studentID string) {
	w.enqueue(snapshotOp{kind: opClear, examID: examID, studentID: studentID})
}

func (w *SnapshotWorker) enqueue(op snapshotOp) {
	select {
	case w.ops <- op:
	default:
		w.log.Warn().Str("exam_id", op.examID).Msg("Snapshot queue full, dropping write")
	}
}

// Restore loads a student's snapshot for one exam: the autosaved answer
// records plus the original start time, if the attempt had already started.
func (w *SnapshotWorker) Restore(ctx context.Context, examID, studentID string) (map[string]model.AnswerRecord, *time.Time, error) {
	raw, err := w.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(examID, studentID)).Result()
	if err != nil {
		return nil, nil, err
	}

	records := make(map[string]model.AnswerRecord, len(raw))
	for qid, blob := range raw {
		var rec model.AnswerRecord
		if err := json.Unmarshal([]byte(blob), &rec); err != nil {
			w.log.Warn().Err(err).Str("q_id", qid).Msg("Corrupt snapshot entry, skipping")
			continue
		}
		records[qid] = rec
	}

	var startedAt *time.Time
	val, err := w.rdb.Get(ctx, config.CacheKey.AttemptStartKey(examID, studentID)).Result()
	switch {
	case err == redis.Nil:
		// Attempt never started; answers alone are still restorable.
	case err != nil:
		return records, nil, err
	default:
		if unix, convErr := strconv.ParseInt(val, 10, 64); convErr == nil {
			t := time.Unix(unix, 0)
			startedAt = &t
		}
	}

	return records, startedAt, nil
}

// Start begins the apply loop. Call in a goroutine; returns when ctx is
// canceled after draining pending writes.
func (w *SnapshotWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain()
			w.log.Info().Msg("Worker stopped")
			return
		case op := <-w.ops:
			w.apply(context.Background(), op)
		}
	}
}

func (w *SnapshotWorker) apply(ctx context.Context, op snapshotOp) {
	answersKey := config.CacheKey.AttemptAnswersKey(op.examID, op.studentID)
	startKey := config.CacheKey.AttemptStartKey(op.examID, op.studentID)

	var err error
	switch op.kind {
	case opAnswer:
		var blob []byte
		blob, err = json.Marshal(op.record)
		if err == nil {
			pipe := w.rdb.Pipeline()
			pipe.HSet(ctx, answersKey, op.record.QuestionID, blob)
			pipe.Expire(ctx, answersKey, w.ttl)
			_, err = pipe.Exec(ctx)
		}
	case opStart:
		err = w.rdb.Set(ctx, startKey, op.startedAt.Unix(), w.ttl).Err()
	case opClear:
		err = w.rdb.Del(ctx, answersKey, startKey).Err()
	}

	if err != nil {
		w.log.Error().Err(err).
			Str("exam_id", op.examID).
			Str("student_id", op.studentID).
			Msg("Snapshot write failed")
	}
}

// drain flushes writes still queued at shutdown.
func (w *SnapshotWorker) drain() {
	drained := 0
	for {
		select {
		case op := <-w.ops:
			w.apply(context.Background(), op)
			drained++
		default:
			if drained > 0 {
				w.log.Info().Int("count", drained).Msg("Drained remaining writes")
			}
			return
		}
	}
}
