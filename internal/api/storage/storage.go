package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/article-gen/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const articleColumns = `id, owner_id, topic, status, stage, progress_state, status_text,
	content, content_summary, url_to_info, created_at, updated_at`

// uniqueViolation is the postgres error code for a unique constraint violation
const uniqueViolation = "23505"

// Storage handles article persistence for the API service
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// CreateArticle inserts a fresh article. A concurrent insert of the same
// (owner_id, topic) surfaces as domain.ErrAdmissionConflict.
func (s *Storage) CreateArticle(ctx context.Context, article *domain.Article) error {
	query := `
		INSERT INTO articles (
			id, owner_id, topic, status, stage, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		article.ID,
		article.OwnerID,
		article.Topic,
		article.Status,
		article.Stage,
		article.CreatedAt,
		article.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrAdmissionConflict
		}
		return fmt.Errorf("failed to create article: %w", err)
	}

	return nil
}

// GetArticle returns an active article. Soft-deleted articles are reported as not found.
func (s *Storage) GetArticle(ctx context.Context, articleID string) (*domain.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = $1 AND status = $2`

	var article domain.Article
	if err := s.db.GetContext(ctx, &article, query, articleID, domain.StatusActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrArticleNotFound
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	return &article, nil
}

// FindByOwnerTopic returns the owner's article for topic in any admission status
func (s *Storage) FindByOwnerTopic(ctx context.Context, ownerID, topic string) (*domain.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE owner_id = $1 AND topic = $2`

	var article domain.Article
	if err := s.db.GetContext(ctx, &article, query, ownerID, topic); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrArticleNotFound
		}
		return nil, fmt.Errorf("failed to find article: %w", err)
	}

	return &article, nil
}

// ResetArticle reactivates a soft-deleted article at INIT with its output cleared.
// Returns domain.ErrAdmissionConflict if the article was reactivated concurrently.
func (s *Storage) ResetArticle(ctx context.Context, articleID string) error {
	query := `
		UPDATE articles
		SET status = $1,
		    stage = $2,
		    progress_state = NULL,
		    status_text = NULL,
		    content = NULL,
		    content_summary = NULL,
		    url_to_info = NULL,
		    updated_at = NOW()
		WHERE id = $3
		  AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.StatusActive,
		domain.StageInit,
		articleID,
		domain.StatusDeleted,
	)
	if err != nil {
		return fmt.Errorf("failed to reset article: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrAdmissionConflict
	}

	s.logger.Info("Article reset", slog.String("article_id", articleID))
	return nil
}

// SoftDelete marks an active article deleted
func (s *Storage) SoftDelete(ctx context.Context, articleID string) error {
	query := `
		UPDATE articles
		SET status = $1,
		    updated_at = NOW()
		WHERE id = $2
		  AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, domain.StatusDeleted, articleID, domain.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrArticleNotFound
	}

	return nil
}

// UpdateProgress records the latest streamed event. It never touches stage.
func (s *Storage) UpdateProgress(ctx context.Context, articleID, state, statusText string) error {
	query := `
		UPDATE articles
		SET progress_state = $1,
		    status_text = $2,
		    updated_at = NOW()
		WHERE id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, state, statusText, articleID); err != nil {
		return fmt.Errorf("failed to update article progress: %w", err)
	}

	return nil
}

// ArticleFilter selects a page of an owner's active articles
type ArticleFilter struct {
	OwnerID  string
	PageSize int
	Cursor   *ArticleCursor
}

// ArticleCursor is the keyset position after the last returned article
type ArticleCursor struct {
	CreatedAt time.Time
	ID        string
}

// ListArticles returns up to PageSize+1 articles, newest first, so the caller can tell whether more exist
func (s *Storage) ListArticles(ctx context.Context, filter ArticleFilter) ([]domain.Article, error) {
	query := `
		SELECT ` + articleColumns + `
		FROM articles
		WHERE owner_id = $1
		  AND status = $2
	`
	args := []interface{}{filter.OwnerID, domain.StatusActive}
	argIdx := 3

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var articles []domain.Article
	if err := s.db.SelectContext(ctx, &articles, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}

	return articles, nil
}
