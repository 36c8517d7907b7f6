package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sangammgr88/exam-portal-gateway/internal/config"
	"github.com/sangammgr88/exam-portal-gateway/internal/model"
	"github.com/sangammgr88/exam-portal-gateway/internal/session"
	"github.com/sangammgr88/exam-portal-gateway/internal/upstream"
)

type retrySubmissionPayload struct {
	AttemptID string `json:"attempt_id"`
}

// SubmitRetryWorker replays timed-out attempt submissions until the result
// service accepts them. Attempts land here when the countdown expired but
// the submission call failed; the attempt stays frozen in the hub while its
// payload is retried. Implements session.RetryQueue.
type SubmitRetryWorker struct {
	rdb *redis.Client
	hub *session.Hub
	log zerolog.Logger
}

func NewSubmitRetryWorker(rdb *redis.Client, hub *session.Hub, log zerolog.Logger) *SubmitRetryWorker {
	return &SubmitRetryWorker{
		rdb: rdb,
		hub: hub,
		log: log.With().Str("component", "submit_retry_worker").Logger(),
	}
}

// Enqueue schedules an attempt for background submission retry.
func (w *SubmitRetryWorker) Enqueue(attemptID uuid.UUID) {
	payload, err := json.Marshal(retrySubmissionPayload{AttemptID: attemptID.String()})
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to marshal retry payload")
		return
	}

	if err := w.rdb.RPush(context.Background(), config.WorkerKey.RetrySubmissionsQueue, payload).Err(); err != nil {
		w.log.Error().Err(err).
			Str("attempt_id", attemptID.String()).
			Msg("Failed to enqueue submission retry")
		return
	}

	w.log.Info().Str("attempt_id", attemptID.String()).Msg("Submission retry enqueued")
}

// Start begins consuming the retry queue. Call in a goroutine; returns when
// ctx is canceled.
func (w *SubmitRetryWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, 1*time.Second, config.WorkerKey.RetrySubmissionsQueue).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Failed to pop from retry queue")
			time.Sleep(5 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		w.process(ctx, result[1])
	}
}

func (w *SubmitRetryWorker) process(ctx context.Context, raw string) {
	var payload retrySubmissionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		w.log.Error().Err(err).Msg("Invalid retry payload, dropping")
		return
	}

	attemptID, err := uuid.Parse(payload.AttemptID)
	if err != nil {
		w.log.Error().Err(err).Str("attempt_id", payload.AttemptID).Msg("Invalid attempt id, dropping")
		return
	}

	submitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	_, err = w.hub.Submit(submitCtx, attemptID, model.TriggerTimeout)
	cancel()

	switch {
	case err == nil:
		w.log.Info().Str("attempt_id", payload.AttemptID).Msg("Retried submission accepted")
	case errors.Is(err, session.ErrUnknownAttempt), errors.Is(err, session.ErrAlreadySubmitted):
		// Already resolved elsewhere; nothing left to retry.
		w.log.Debug().Str("attempt_id", payload.AttemptID).Msg("Attempt already settled, dropping retry")
	case errors.Is(err, session.ErrSubmitInFlight) || upstream.Retryable(err):
		w.log.Warn().Err(err).
			Str("attempt_id", payload.AttemptID).
			Msg("Submission retry failed, requeueing")
		w.requeue(raw)
		time.Sleep(5 * time.Second)
	default:
		w.log.Error().Err(err).
			Str("attempt_id", payload.AttemptID).
			Msg("Submission permanently rejected, dropping retry")
	}
}

func (w *SubmitRetryWorker) requeue(raw string) {
	if err := w.rdb.RPush(context.Background(), config.WorkerKey.RetrySubmissionsQueue, raw).Err(); err != nil {
		w.log.Error().Err(err).Msg("Failed to requeue submission retry")
	}
}
