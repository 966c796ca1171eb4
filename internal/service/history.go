package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hibiken/asynq"
	"github.com/jamsession/api/internal/model"
	"github.com/jamsession/api/internal/store"
	"github.com/rs/zerolog/log"
)

// TaskTypeJamHistory appends an ended jam to its performers' histories.
const TaskTypeJamHistory = "jam:history"

// HistoryRecorder records an ended jam in each performer's history. Every
// implementation must be safe to call more than once for the same jam.
type HistoryRecorder interface {
	RecordJamHistory(ctx context.Context, jamID int64, performerIDs []int64) error
}

// DirectHistory appends synchronously through the store and keeps retrying
// with backoff until every performer is updated or ctx is done.
type DirectHistory struct {
	store      store.Store
	newBackOff func() backoff.BackOff
}

func NewDirectHistory(s store.Store) *DirectHistory {
	return &DirectHistory{store: s, newBackOff: defaultHistoryBackOff}
}

func defaultHistoryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// WithBackOff replaces the retry schedule.
func (h *DirectHistory) WithBackOff(newBackOff func() backoff.BackOff) *DirectHistory {
	h.newBackOff = newBackOff
	return h
}

// RecordJamHistory appends jamID for every performer. Failed appends are
// retried; users that no longer exist are skipped.
func (h *DirectHistory) RecordJamHistory(ctx context.Context, jamID int64, performerIDs []int64) error {
	pending := slices.Clone(performerIDs)

	attempt := func() error {
		var errs []error
		remaining := pending[:0]
		for _, userID := range pending {
			err := h.store.AppendPastJam(ctx, userID, jamID)
			switch {
			case err == nil:
			case errors.Is(err, store.ErrNotFound):
				log.Warn().Int64("jam_id", jamID).Int64("user_id", userID).Msg("performer missing, history skipped")
			default:
				remaining = append(remaining, userID)
				errs = append(errs, fmt.Errorf("user %d: %w", userID, err))
			}
		}
		pending = remaining
		return errors.Join(errs...)
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Int64("jam_id", jamID).Int("pending", len(pending)).Dur("retry_in", wait).Msg("history append failed")
	}

	return backoff.RetryNotify(attempt, backoff.WithContext(h.newBackOff(), ctx), notify)
}

// HistoryQueue hands the fan-out to asynq so it survives restarts and is
// retried until every append succeeds.
type HistoryQueue struct {
	asynqClient *asynq.Client
	queue       string
	maxRetry    int
	fallback    HistoryRecorder
}

// NewHistoryQueue builds a queue-backed recorder. fallback, when set, runs
// inline if the task cannot be enqueued.
func NewHistoryQueue(asynqClient *asynq.Client, queue string, maxRetry int, fallback HistoryRecorder) *HistoryQueue {
	return &HistoryQueue{
		asynqClient: asynqClient,
		queue:       queue,
		maxRetry:    maxRetry,
		fallback:    fallback,
	}
}

func (q *HistoryQueue) RecordJamHistory(ctx context.Context, jamID int64, performerIDs []int64) error {
	task, err := NewJamHistoryTask(jamID, performerIDs)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	_, err = q.asynqClient.EnqueueContext(ctx, task,
		asynq.Queue(q.queue),
		asynq.MaxRetry(q.maxRetry),
		asynq.Retention(24*time.Hour),
		asynq.TaskID(historyTaskID(jamID)),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		if q.fallback == nil {
			return fmt.Errorf("failed to enqueue task: %w", err)
		}
		log.Warn().Err(err).Int64("jam_id", jamID).Msg("history enqueue failed, recording inline")
		return q.fallback.RecordJamHistory(ctx, jamID, performerIDs)
	}

	log.Info().Int64("jam_id", jamID).Int("performers", len(performerIDs)).Msg("history task queued")
	return nil
}

func historyTaskID(jamID int64) string {
	return fmt.Sprintf("jam-history:%d", jamID)
}

// NewJamHistoryTask builds the task consumed by the history worker.
func NewJamHistoryTask(jamID int64, performerIDs []int64) (*asynq.Task, error) {
	data, err := json.Marshal(model.JamHistoryPayload{JamID: jamID, PerformerIDs: performerIDs})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeJamHistory, data), nil
}
