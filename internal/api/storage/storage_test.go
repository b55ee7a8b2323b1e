package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/article-gen/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var articleRowColumns = []string{
	"id", "owner_id", "topic", "status", "stage", "progress_state", "status_text",
	"content", "content_summary", "url_to_info", "created_at", "updated_at",
}

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStorage(sqlx.NewDb(db, "postgres"), logger), mock
}

func newArticle() *domain.Article {
	now := time.Now()
	return &domain.Article{
		ID:        "a1",
		OwnerID:   "o1",
		Topic:     "Go",
		Status:    domain.StatusActive,
		Stage:     domain.StageInit,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStorage_CreateArticle(t *testing.T) {
	tests := []struct {
		name    string
		execErr error
		wantErr error
	}{
		{name: "created"},
		{name: "duplicate topic", execErr: &pq.Error{Code: "23505"}, wantErr: domain.ErrAdmissionConflict},
		{name: "database error", execErr: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStorage(t)
			article := newArticle()

			exp := mock.ExpectExec(regexp.QuoteMeta("INSERT INTO articles")).
				WithArgs("a1", "o1", "Go", "active", "initiated", article.CreatedAt, article.UpdatedAt)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, 1))
			}

			err := s.CreateArticle(context.Background(), article)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.execErr != nil:
				require.Error(t, err)
				assert.NotErrorIs(t, err, domain.ErrAdmissionConflict)
			default:
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_GetArticleOnlyActive(t *testing.T) {
	s, mock := newMockStorage(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM articles WHERE id = $1 AND status = $2")).
		WithArgs("a1", "active").
		WillReturnRows(sqlmock.NewRows(articleRowColumns).
			AddRow("a1", "o1", "Go", "active", "completed", "completed", "done", "# Go", "Go", "{}", now, now))

	article, err := s.GetArticle(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageDone, article.Stage)
	assert.Equal(t, "# Go", article.Content.String)

	mock.ExpectQuery(regexp.QuoteMeta("FROM articles WHERE id = $1 AND status = $2")).
		WithArgs("gone", "active").
		WillReturnError(sql.ErrNoRows)

	_, err = s.GetArticle(context.Background(), "gone")
	assert.ErrorIs(t, err, domain.ErrArticleNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_FindByOwnerTopic(t *testing.T) {
	s, mock := newMockStorage(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE owner_id = $1 AND topic = $2")).
		WithArgs("o1", "Go").
		WillReturnRows(sqlmock.NewRows(articleRowColumns).
			AddRow("a1", "o1", "Go", "deleted", "completed", nil, nil, nil, nil, nil, now, now))

	article, err := s.FindByOwnerTopic(context.Background(), "o1", "Go")
	require.NoError(t, err)
	assert.False(t, article.Active())

	mock.ExpectQuery(regexp.QuoteMeta("WHERE owner_id = $1 AND topic = $2")).
		WithArgs("o1", "Rust").
		WillReturnError(sql.ErrNoRows)

	_, err = s.FindByOwnerTopic(context.Background(), "o1", "Rust")
	assert.ErrorIs(t, err, domain.ErrArticleNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_ResetArticle(t *testing.T) {
	tests := []struct {
		name    string
		rows    int64
		wantErr error
	}{
		{name: "reset", rows: 1},
		{name: "already active", rows: 0, wantErr: domain.ErrAdmissionConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStorage(t)

			mock.ExpectExec(regexp.QuoteMeta("UPDATE articles")).
				WithArgs("active", "initiated", "a1", "deleted").
				WillReturnResult(sqlmock.NewResult(0, tt.rows))

			err := s.ResetArticle(context.Background(), "a1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_SoftDelete(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE articles")).
		WithArgs("deleted", "a1", "active").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SoftDelete(context.Background(), "a1"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE articles")).
		WithArgs("deleted", "a1", "active").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.SoftDelete(context.Background(), "a1"), domain.ErrArticleNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_UpdateProgress(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec(`SET progress_state = \$1,\s+status_text = \$2`).
		WithArgs("researching", "Start browsing", "a1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.UpdateProgress(context.Background(), "a1", "researching", "Start browsing"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_ListArticles(t *testing.T) {
	now := time.Now()
	cursor := &ArticleCursor{CreatedAt: now, ID: "a9"}

	tests := []struct {
		name   string
		filter ArticleFilter
		args   []driver.Value
	}{
		{
			name:   "first page",
			filter: ArticleFilter{OwnerID: "o1", PageSize: 2},
			args:   []driver.Value{"o1", "active", 3},
		},
		{
			name:   "after cursor",
			filter: ArticleFilter{OwnerID: "o1", PageSize: 2, Cursor: cursor},
			args:   []driver.Value{"o1", "active", now, "a9", 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStorage(t)

			mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC")).
				WithArgs(tt.args...).
				WillReturnRows(sqlmock.NewRows(articleRowColumns).
					AddRow("a2", "o1", "Go", "active", "initiated", nil, nil, nil, nil, nil, now, now).
					AddRow("a1", "o1", "Rust", "active", "completed", nil, nil, nil, nil, nil, now, now))

			articles, err := s.ListArticles(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.Len(t, articles, 2)
			assert.Equal(t, "a2", articles[0].ID)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
