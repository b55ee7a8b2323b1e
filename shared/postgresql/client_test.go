package postgresql

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{
		Host:     "db",
		Port:     5432,
		User:     "app",
		Password: "secret",
		Database: "articles",
		SSLMode:  "disable",
	}

	assert.Equal(t, "host=db port=5432 user=app password=secret dbname=articles sslmode=disable", cfg.DSN())
}

func TestClient_HealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := &Client{
		db:     sqlx.NewDb(db, "postgres"),
		config: &Config{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	assert.NoError(t, c.HealthCheck(context.Background()))

	mock.ExpectQuery("SELECT 1").WillReturnError(assert.AnError)
	assert.Error(t, c.HealthCheck(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}
