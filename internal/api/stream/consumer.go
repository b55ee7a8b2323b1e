// Package stream drains an article's progress channel for one connected client.
package stream

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/article-gen/internal/domain"
	"github.com/cuongbtq/article-gen/internal/progress"
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxIdlePolls = 300
)

// Store is the article persistence used while streaming
type Store interface {
	GetArticle(ctx context.Context, articleID string) (*domain.Article, error)
	UpdateProgress(ctx context.Context, articleID, state, statusText string) error
}

// Config holds polling settings
type Config struct {
	PollInterval time.Duration
	MaxIdlePolls int
}

// Consumer turns a progress channel into a finite sequence of events
type Consumer struct {
	store   Store
	channel progress.Channel
	config  Config
	logger  *slog.Logger
}

func NewConsumer(store Store, channel progress.Channel, config Config, logger *slog.Logger) *Consumer {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.MaxIdlePolls <= 0 {
		config.MaxIdlePolls = DefaultMaxIdlePolls
	}
	return &Consumer{
		store:   store,
		channel: channel,
		config:  config,
		logger:  logger,
	}
}

// Stream yields the progress events of the owner's article in push order.
// It ends on the channel sentinel, on an error event, when the channel was
// never created, when ctx is done, or after MaxIdlePolls consecutive empty
// polls. An idle end means the run may still be going.
func (c *Consumer) Stream(ctx context.Context, articleID, ownerID string) iter.Seq[domain.Event] {
	return func(yield func(domain.Event) bool) {
		logger := c.logger.With(slog.String("article_id", articleID))

		article, err := c.store.GetArticle(ctx, articleID)
		switch {
		case errors.Is(err, domain.ErrArticleNotFound):
			yield(domain.FailureEvent(domain.EventError, "Article not found", http.StatusNotFound))
			return
		case err != nil:
			logger.Error("Failed to load article for streaming", slog.Any("error", err))
			yield(domain.FailureEvent(domain.EventError, "Failed to load article", http.StatusInternalServerError))
			return
		case article.OwnerID != ownerID:
			yield(domain.FailureEvent(domain.EventError, "Not enough permissions", http.StatusForbidden))
			return
		}

		if article.Stage == domain.StageDone {
			yield(domain.CompletedEvent("Article has been generated"))
			return
		}

		exists, err := c.channel.Exists(ctx, articleID)
		if err != nil {
			logger.Error("Failed to check progress channel", slog.Any("error", err))
			yield(domain.FailureEvent(domain.EventError, "Failed to read progress", http.StatusInternalServerError))
			return
		}
		if !exists {
			logger.Debug("Progress channel was never created")
			return
		}

		c.poll(ctx, logger, articleID, yield)
	}
}

func (c *Consumer) poll(ctx context.Context, logger *slog.Logger, articleID string, yield func(domain.Event) bool) {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	idle := 0
	for {
		msg, err := c.channel.Pop(ctx, articleID)
		switch {
		case errors.Is(err, progress.ErrEmpty):
			idle++
			if idle >= c.config.MaxIdlePolls {
				logger.Info("Progress stream idle, closing", slog.Int("idle_polls", idle))
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			logger.Error("Failed to read progress channel", slog.Any("error", err))
			yield(domain.FailureEvent(domain.EventError, "Failed to read progress", http.StatusInternalServerError))
			return
		}

		idle = 0
		if msg.End {
			logger.Debug("Progress channel ended")
			return
		}

		if err := c.store.UpdateProgress(ctx, articleID, msg.Event.State, msg.Event.Message); err != nil {
			logger.Warn("Failed to record progress",
				slog.String("state", msg.Event.State),
				slog.Any("error", err),
			)
		}

		if !yield(msg.Event) {
			return
		}
	}
}
