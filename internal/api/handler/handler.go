package handler

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/article-gen/internal/api/service"
	"github.com/cuongbtq/article-gen/internal/api/storage"
	"github.com/cuongbtq/article-gen/internal/domain"
	"github.com/gin-gonic/gin"
)

// OwnerIDKey is the gin context key holding the authenticated owner id
const OwnerIDKey = "owner_id"

// ArticleService is the article lifecycle behind the handlers
type ArticleService interface {
	Admit(ctx context.Context, ownerID, topic string) (*domain.Article, error)
	Get(ctx context.Context, ownerID, articleID string) (*domain.Article, error)
	GetState(ctx context.Context, ownerID, articleID string) (*service.State, error)
	Delete(ctx context.Context, ownerID, articleID string) error
	Resume(ctx context.Context, ownerID, articleID string) (*domain.Article, error)
	List(ctx context.Context, ownerID string, pageSize int, cursor *storage.ArticleCursor) (*service.Page, error)
}

// Streamer produces the progress events of an article
type Streamer interface {
	Stream(ctx context.Context, articleID, ownerID string) iter.Seq[domain.Event]
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Service   ArticleService
	Streamer  Streamer
	JWTSecret string

	// HealthCheck reports backing service readiness, nil means always healthy
	HealthCheck func(ctx context.Context) error
}

// ArticleHandler handles article-related HTTP requests
type ArticleHandler struct {
	logger   *slog.Logger
	service  ArticleService
	streamer Streamer
}

// NewArticleHandler creates a new ArticleHandler instance
func NewArticleHandler(deps *Dependencies) *ArticleHandler {
	return &ArticleHandler{
		logger:   deps.Logger,
		service:  deps.Service,
		streamer: deps.Streamer,
	}
}

func ownerID(c *gin.Context) string {
	return c.GetString(OwnerIDKey)
}

// writeError maps a service error to its HTTP status
func (h *ArticleHandler) writeError(c *gin.Context, err error) {
	var rejected *domain.RejectedError

	switch {
	case errors.Is(err, domain.ErrArticleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not enough permissions"})
	case errors.Is(err, domain.ErrAdmissionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Article with this topic already exists"})
	case errors.Is(err, domain.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "Article is still being generated, try again shortly"})
	case errors.Is(err, domain.ErrStageGuard):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &rejected):
		c.JSON(http.StatusBadRequest, gin.H{"error": rejected.Reason})
	case errors.Is(err, domain.ErrInvalidTopic):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrServiceUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service is temporarily unavailable, please try again later"})
	default:
		h.logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
