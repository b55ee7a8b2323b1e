package storage

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/article-gen/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStorage(sqlx.NewDb(db, "postgres"), logger), mock
}

func TestStorage_GetArticle(t *testing.T) {
	s, mock := newMockStorage(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "topic", "status", "stage", "progress_state", "status_text",
		"content", "content_summary", "url_to_info", "created_at", "updated_at",
	}).AddRow("a1", "o1", "Go", "active", "pre_writing", nil, "researching", nil, nil, nil, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM articles WHERE id = $1")).
		WithArgs("a1").
		WillReturnRows(rows)

	article, err := s.GetArticle(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StagePreWriting, article.Stage)
	assert.Equal(t, "researching", article.StatusText.String)
	assert.False(t, article.Content.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_GetArticleNotFound(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM articles WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetArticle(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrArticleNotFound)
}

func TestStorage_TransitionStage(t *testing.T) {
	tests := []struct {
		name    string
		result  sql.Result
		execErr error
		wantErr error
	}{
		{name: "advanced", result: sqlmock.NewResult(0, 1)},
		{name: "lost the race or deleted", result: sqlmock.NewResult(0, 0), wantErr: domain.ErrStageGuard},
		{name: "database error", execErr: errors.New("connection reset"), wantErr: domain.ErrPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStorage(t)

			exp := mock.ExpectExec(regexp.QuoteMeta("UPDATE articles")).
				WithArgs("pre_writing", "a1", "initiated", "active")
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(tt.result)
			}

			err := s.TransitionStage(context.Background(), "a1", domain.StageInit, domain.StagePreWriting)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_Complete(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE articles")).
		WithArgs("completed", "body", "summary", "{}", "done", "a1", "generating_end", "active").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Complete(context.Background(), "a1", domain.Output{
		Content:        "body",
		ContentSummary: "summary",
		URLToInfo:      "{}",
	}, "done")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
