package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jamsession/api/internal/model"
	"github.com/jamsession/api/internal/store"
	"github.com/rs/zerolog/log"
)

// HistoryWorker appends ended jams to performer histories
type HistoryWorker struct {
	store store.Store
}

// NewHistoryWorker creates a new history worker
func NewHistoryWorker(s store.Store) *HistoryWorker {
	return &HistoryWorker{store: s}
}

// ProcessTask appends the jam for every performer. Appends are idempotent, so
// a retried task only finishes the users that failed before.
func (w *HistoryWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.JamHistoryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %w", err, asynq.SkipRetry)
	}

	logger := log.With().Int64("jam_id", payload.JamID).Logger()
	logger.Info().Int("performers", len(payload.PerformerIDs)).Msg("recording jam history")

	var failed []error
	for _, userID := range payload.PerformerIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := w.store.AppendPastJam(ctx, userID, payload.JamID)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrNotFound):
			logger.Warn().Int64("user_id", userID).Msg("performer missing, history skipped")
		default:
			logger.Error().Err(err).Int64("user_id", userID).Msg("failed to append history")
			failed = append(failed, fmt.Errorf("user %d: %w", userID, err))
		}
	}

	if len(failed) > 0 {
		return errors.Join(failed...)
	}
	logger.Info().Msg("jam history recorded")
	return nil
}
