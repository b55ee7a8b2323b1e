package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Publisher publishes a message body to the dispatch queue
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// DispatchMessage is the body of a dispatch message
type DispatchMessage struct {
	JobID string `json:"job_id"`
}

// QueueDispatcher publishes article ids for the worker service
type QueueDispatcher struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewQueueDispatcher(publisher Publisher, logger *slog.Logger) *QueueDispatcher {
	return &QueueDispatcher{
		publisher: publisher,
		logger:    logger,
	}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, articleID string) error {
	body, err := json.Marshal(DispatchMessage{JobID: articleID})
	if err != nil {
		return fmt.Errorf("failed to encode dispatch message: %w", err)
	}

	if err := d.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return err
	}

	d.logger.Info("Article dispatched", slog.String("article_id", articleID))
	return nil
}
