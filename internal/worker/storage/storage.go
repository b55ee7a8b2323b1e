package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/article-gen/internal/domain"
	"github.com/jmoiron/sqlx"
)

const articleColumns = `id, owner_id, topic, status, stage, progress_state, status_text,
	content, content_summary, url_to_info, created_at, updated_at`

// Storage handles all database operations for the runner
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// GetArticle retrieves an article by id regardless of its admission status
func (s *Storage) GetArticle(ctx context.Context, articleID string) (*domain.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = $1`

	var article domain.Article
	if err := s.db.GetContext(ctx, &article, query, articleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrArticleNotFound
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	return &article, nil
}

// TransitionStage moves an article from one stage to another using optimistic locking.
// Returns domain.ErrStageGuard if the article is no longer at from or was soft-deleted.
func (s *Storage) TransitionStage(ctx context.Context, articleID string, from, to domain.Stage) error {
	query := `
		UPDATE articles
		SET stage = $1,
		    updated_at = NOW()
		WHERE id = $2
		  AND stage = $3
		  AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, to, articleID, from, domain.StatusActive)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if rowsAffected == 0 {
		s.logger.Warn("Stage transition lost - article moved or deleted",
			slog.String("article_id", articleID),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		return domain.ErrStageGuard
	}

	s.logger.Info("Article stage updated",
		slog.String("article_id", articleID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)

	return nil
}

// Complete stores the run output and marks the article done in one statement
func (s *Storage) Complete(ctx context.Context, articleID string, out domain.Output, statusText string) error {
	query := `
		UPDATE articles
		SET stage = $1,
		    content = $2,
		    content_summary = $3,
		    url_to_info = $4,
		    status_text = $5,
		    updated_at = NOW()
		WHERE id = $6
		  AND stage = $7
		  AND status = $8
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.StageDone,
		out.Content,
		out.ContentSummary,
		out.URLToInfo,
		statusText,
		articleID,
		domain.StageGeneratingEnd,
		domain.StatusActive,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if rowsAffected == 0 {
		return domain.ErrStageGuard
	}

	s.logger.Info("Article completed",
		slog.String("article_id", articleID),
		slog.Int("content_length", len(out.Content)),
	)

	return nil
}
