// Package worker consumes article dispatch messages and runs each article
// under a per-article lease.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/article-gen/internal/lease"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultJobTimeout        = time.Hour
	defaultClaimRetryDelay   = 5 * time.Second
)

// Advancer runs one article to a terminal stage
type Advancer interface {
	Advance(ctx context.Context, articleID string) error
}

// DeliverySource is the queue the worker consumes from
type DeliverySource interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	Runner            Advancer
	Locker            *lease.Locker
	Source            DeliverySource
	Concurrency       int
	PrefetchCount     int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	ClaimRetryDelay   time.Duration
}

// Worker represents the background article worker
type Worker struct {
	logger            *slog.Logger
	runner            Advancer
	locker            *lease.Locker
	source            DeliverySource
	workerID          string
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	claimRetryDelay   time.Duration
}

// job is one validated dispatch message waiting for a pool goroutine
type job struct {
	articleID string
	delivery  amqp.Delivery
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:            cfg.Logger,
		runner:            cfg.Runner,
		locker:            cfg.Locker,
		source:            cfg.Source,
		workerID:          "worker-" + uuid.NewString()[:8],
		concurrency:       cfg.Concurrency,
		prefetchCount:     cfg.PrefetchCount,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: cfg.HeartbeatInterval,
		claimRetryDelay:   cfg.ClaimRetryDelay,
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.prefetchCount <= 0 {
		w.prefetchCount = w.concurrency
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = defaultJobTimeout
	}
	if w.heartbeatInterval <= 0 {
		w.heartbeatInterval = defaultHeartbeatInterval
	}
	if w.claimRetryDelay <= 0 {
		w.claimRetryDelay = defaultClaimRetryDelay
	}
	return w
}

// Start consumes dispatch messages until ctx is canceled or the delivery
// channel closes. It returns once every in-flight article has been acked or nacked.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	jobs := make(chan job)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		return w.startMessageDispatcher(gctx, deliveries, jobs)
	})

	w.spawnWorkerPool(gctx, g, jobs)

	err = g.Wait()
	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))
	return err
}
