package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTokenSweep is the task type for purging expired API tokens.
	TaskTokenSweep = "auth:token_sweep"
)

// TokenSweepPayload carries parameters for a sweep run. RequestedAt is
// informational only.
type TokenSweepPayload struct {
	RequestedAt time.Time `json:"requested_at"`
}

// TokenPurger removes every expired token row and reports how many went.
type TokenPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// NewTokenSweepTask constructs an Asynq task.
func NewTokenSweepTask() (*asynq.Task, error) {
	data, err := json.Marshal(TokenSweepPayload{RequestedAt: time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTokenSweep, data), nil
}

// NewTokenSweepHandler builds the handler processing TaskTokenSweep tasks.
func NewTokenSweepHandler(purger TokenPurger, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload TokenSweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		removed, err := purger.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("token sweep executed", slog.Int64("removed", removed))
		}
		return nil
	}
}
