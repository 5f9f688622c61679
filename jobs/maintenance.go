package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-tours/internal/jobs"
	"github.com/odyssey-erp/odyssey-tours/internal/payments"
)

// PendingRechecker re-runs reconciliation for stale pending transactions.
type PendingRechecker interface {
	RecheckPending(ctx context.Context, olderThan time.Duration, limit int) (payments.RecheckSummary, error)
}

// IdempotencyCleaner prunes idempotency keys.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// MaintenanceHandler runs the periodic payment and housekeeping sweeps.
type MaintenanceHandler struct {
	Rechecker    PendingRechecker
	Keys         IdempotencyCleaner
	RecheckAfter time.Duration
	RecheckBatch int
	KeyRetention time.Duration
	Metrics      *jobmetrics.Metrics
	Logger       *slog.Logger
}

// HandleRecheckPending processes TaskRecheckPending tasks.
func (h *MaintenanceHandler) HandleRecheckPending(ctx context.Context, t *asynq.Task) error {
	tracker := h.Metrics.Track(TaskRecheckPending)
	var payload RecheckPendingPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry))
		}
	}
	olderThan := h.RecheckAfter
	if payload.OlderThanSeconds > 0 {
		olderThan = time.Duration(payload.OlderThanSeconds) * time.Second
	}
	limit := h.RecheckBatch
	if payload.Limit > 0 {
		limit = payload.Limit
	}

	summary, err := h.Rechecker.RecheckPending(ctx, olderThan, limit)
	for outcome, count := range summary.Outcomes {
		h.Metrics.AddProcessed(TaskRecheckPending, string(outcome), count)
	}
	if summary.Resettled > 0 {
		h.Metrics.AddProcessed(TaskRecheckPending, "resettled", summary.Resettled)
	}
	if err != nil {
		h.Logger.Error("recheck pending payments", slog.Int("checked", summary.Checked), slog.Any("error", err))
		return tracker.End(err)
	}
	return tracker.End(nil)
}

// HandleIdempotencyCleanup processes TaskIdempotencyCleanup tasks.
func (h *MaintenanceHandler) HandleIdempotencyCleanup(ctx context.Context, _ *asynq.Task) error {
	tracker := h.Metrics.Track(TaskIdempotencyCleanup)
	removed, err := h.Keys.Cleanup(ctx, h.KeyRetention)
	if err != nil {
		return tracker.End(fmt.Errorf("cleanup idempotency keys: %w", err))
	}
	h.Metrics.AddProcessed(TaskIdempotencyCleanup, "deleted", int(removed))
	if removed > 0 {
		h.Logger.Info("pruned idempotency keys", slog.Int64("removed", removed))
	}
	return tracker.End(nil)
}
