package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/article-gen/internal/domain"
	"github.com/cuongbtq/article-gen/internal/lease"
)

// processJob runs one article while holding its lease
func (w *Worker) processJob(ctx context.Context, articleID string) error {
	logger := w.logger.With(
		slog.String("article_id", articleID),
		slog.String("worker_id", w.workerID),
	)

	held, err := w.locker.Acquire(ctx, articleID)
	if err != nil {
		if errors.Is(err, lease.ErrNotHeld) {
			// the holder may be a run of the article before it was deleted and
			// re-admitted, so this dispatch goes back to the queue
			logger.Warn("Article already being run, requeueing",
				slog.Duration("retry_delay", w.claimRetryDelay),
			)
			select {
			case <-ctx.Done():
			case <-time.After(w.claimRetryDelay):
			}
			return domain.NewRetryableError(fmt.Errorf("%w: %s", domain.ErrJobAlreadyClaimed, articleID))
		}
		logger.Error("Failed to acquire lease", slog.String("error", err.Error()))
		return domain.NewRetryableError(err)
	}

	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to release lease", slog.String("error", err.Error()))
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go w.sendLeaseHeartbeat(jobCtx, logger, held, cancel, heartbeatDone)

	logger.Info("Processing article")
	return w.runner.Advance(jobCtx, articleID)
}

// sendLeaseHeartbeat keeps the lease alive; losing it cancels the run
func (w *Worker) sendLeaseHeartbeat(ctx context.Context, logger *slog.Logger, held *lease.Lease, cancel context.CancelFunc, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			err := held.Refresh(ctx)
			switch {
			case errors.Is(err, lease.ErrNotHeld):
				logger.Error("Lease lost, stopping run")
				cancel()
				return
			case err != nil:
				logger.Warn("Failed to refresh lease", slog.String("error", err.Error()))
			default:
				logger.Debug("Lease refreshed")
			}
		}
	}
}
