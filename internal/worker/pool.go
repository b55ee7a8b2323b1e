package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/article-gen/internal/domain"
	"golang.org/x/sync/errgroup"
)

// spawnWorkerPool starts N pool goroutines on g based on the concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context, g *errgroup.Group, jobs <-chan job) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		workerName := fmt.Sprintf("%s-%d", w.workerID, i)
		g.Go(func() error {
			w.workerLoop(ctx, workerName, jobs)
			return nil
		})
	}
}

// workerLoop processes jobs until the jobs channel is closed
func (w *Worker) workerLoop(ctx context.Context, workerName string, jobs <-chan job) {
	logger := w.logger.With(slog.String("worker_name", workerName))
	logger.Info("Worker goroutine started")

	for j := range jobs {
		logger.Info("Worker received article",
			slog.String("article_id", j.articleID),
			slog.Uint64("delivery_tag", j.delivery.DeliveryTag),
		)

		var err error
		if ctx.Err() != nil {
			err = domain.NewRetryableError(ctx.Err())
		} else {
			err = w.processJob(ctx, j.articleID)
		}

		w.settle(logger, j, err)
	}

	logger.Info("Worker goroutine stopping - jobs channel closed")
}

// settle acks or nacks the delivery based on the processing result
func (w *Worker) settle(logger *slog.Logger, j job, err error) {
	logger = logger.With(slog.String("article_id", j.articleID))

	if err == nil {
		if ackErr := j.delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message", slog.String("error", ackErr.Error()))
			return
		}
		logger.Info("Article run finished")
		return
	}

	requeue := shouldRequeueJob(err)
	logger.Warn("Article run did not finish",
		slog.String("error", err.Error()),
		slog.Bool("requeue", requeue),
	)

	if nackErr := j.delivery.Nack(false, requeue); nackErr != nil {
		logger.Error("Failed to NACK message", slog.String("error", nackErr.Error()))
	}
}

// shouldRequeueJob determines if a message should be requeued based on the error type
func shouldRequeueJob(err error) bool {
	if errors.Is(err, domain.ErrInvalidPayload) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
