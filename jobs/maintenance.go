package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/brodesk/brodesk/internal/jobs"
)

// TaskTypeIdempotencyPurge drops expired submission keys.
const TaskTypeIdempotencyPurge = "maintenance:idempotency_purge"

// DefaultIdempotencyRetention bounds how long submission keys are kept.
const DefaultIdempotencyRetention = 72 * time.Hour

// IdempotencyPurgePayload configures a purge run.
type IdempotencyPurgePayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyPurgeTask constructs the purge task.
func NewIdempotencyPurgeTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyPurgePayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIdempotencyPurge, data, asynq.MaxRetry(3)), nil
}

// Purger removes idempotency keys older than the given age.
type Purger interface {
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

// PurgeHandler processes idempotency purge tasks.
type PurgeHandler struct {
	purger  Purger
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewPurgeHandler constructs a PurgeHandler.
func NewPurgeHandler(purger Purger, metrics *jobmetrics.Metrics, logger *slog.Logger) *PurgeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeHandler{purger: purger, metrics: metrics, logger: logger}
}

// ProcessTask implements asynq.Handler.
func (h *PurgeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(TaskTypeIdempotencyPurge)
	var payload IdempotencyPurgePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry))
		}
	}
	retention := DefaultIdempotencyRetention
	if payload.RetentionHours > 0 {
		retention = time.Duration(payload.RetentionHours) * time.Hour
	}
	removed, err := h.purger.Purge(ctx, retention)
	if err != nil {
		h.logger.Warn("purge idempotency keys", slog.Any("error", err))
		return tracker.End(err)
	}
	h.logger.Info("idempotency keys purged", slog.Int64("removed", removed), slog.Duration("retention", retention))
	return tracker.End(nil)
}
