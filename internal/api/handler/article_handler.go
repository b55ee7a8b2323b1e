package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/article-gen/internal/api/dto"
	"github.com/cuongbtq/article-gen/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// articleID reads and validates the :article_id path parameter
func (h *ArticleHandler) articleID(c *gin.Context) (string, bool) {
	id := c.Param("article_id")
	if _, err := uuid.Parse(id); err != nil {
		h.logger.Warn("Invalid article_id format", slog.String("article_id", id))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "article_id must be a valid UUID",
		})
		return "", false
	}
	return id, true
}

// CreateArticle handles POST /api/v1/articles
// Admits the topic and schedules generation
func (h *ArticleHandler) CreateArticle(c *gin.Context) {
	var req dto.CreateArticleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	article, err := h.service.Admit(c.Request.Context(), ownerID(c), req.Topic)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CreateArticleResponse{
		ID:    article.ID,
		Topic: article.Topic,
	})
}

// GetArticle handles GET /api/v1/articles/:article_id
func (h *ArticleHandler) GetArticle(c *gin.Context) {
	id, ok := h.articleID(c)
	if !ok {
		return
	}

	article, err := h.service.Get(c.Request.Context(), ownerID(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ArticleDTO{
		ID:             article.ID,
		Topic:          article.Topic,
		State:          string(article.Stage),
		Content:        article.Content.String,
		ContentSummary: article.ContentSummary.String,
		URLToInfo:      article.URLToInfo.String,
		CreatedAt:      article.CreatedAt.Format(time.RFC3339),
	})
}

// GetArticleState handles GET /api/v1/articles/:article_id/state
func (h *ArticleHandler) GetArticleState(c *gin.Context) {
	id, ok := h.articleID(c)
	if !ok {
		return
	}

	state, err := h.service.GetState(c.Request.Context(), ownerID(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.StateResponse{
		State:         string(state.Stage),
		InfoMessage:   state.InfoMessage,
		StatusText:    state.StatusText,
		ProgressState: state.ProgressState,
	})
}

// StreamArticle handles GET /api/v1/articles/:article_id/stream
// Relays progress events as they arrive; each message is a JSON object followed by a blank line
func (h *ArticleHandler) StreamArticle(c *gin.Context) {
	id, ok := h.articleID(c)
	if !ok {
		return
	}

	logger := h.logger.With(slog.String("article_id", id))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sent := 0
	for event := range h.streamer.Stream(c.Request.Context(), id, ownerID(c)) {
		data, err := json.Marshal(event)
		if err != nil {
			logger.Error("Failed to encode event", slog.Any("error", err))
			return
		}
		if _, err := c.Writer.Write(append(data, '\n', '\n')); err != nil {
			logger.Info("Client went away", slog.Any("error", err))
			return
		}
		c.Writer.Flush()
		sent++
	}

	logger.Debug("Stream closed", slog.Int("events", sent))
}

// ListArticles handles GET /api/v1/articles
// Lists the caller's articles, newest first, with cursor pagination
func (h *ArticleHandler) ListArticles(c *gin.Context) {
	var req dto.ListArticlesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeArticleCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	page, err := h.service.List(c.Request.Context(), ownerID(c), req.PageSize, cursor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	articles := make([]dto.ArticleSummaryDTO, len(page.Articles))
	for i, a := range page.Articles {
		articles[i] = summaryDTO(&a)
	}

	var nextCursor string
	if page.NextCursor != nil {
		nextCursor = EncodeArticleCursor(page.NextCursor)
	}

	c.JSON(http.StatusOK, dto.ListArticlesResponse{
		Articles:   articles,
		NextCursor: nextCursor,
	})
}

// ResumeArticle handles POST /api/v1/articles/:article_id/resume
// Re-dispatches an article whose run was lost
func (h *ArticleHandler) ResumeArticle(c *gin.Context) {
	id, ok := h.articleID(c)
	if !ok {
		return
	}

	article, err := h.service.Resume(c.Request.Context(), ownerID(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.StateResponse{
		State:         string(article.Stage),
		InfoMessage:   article.Stage.InfoMessage(),
		StatusText:    article.StatusText.String,
		ProgressState: article.ProgressState.String,
	})
}

// DeleteArticle handles DELETE /api/v1/articles/:article_id
func (h *ArticleHandler) DeleteArticle(c *gin.Context) {
	id, ok := h.articleID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), ownerID(c), id); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func summaryDTO(a *domain.Article) dto.ArticleSummaryDTO {
	return dto.ArticleSummaryDTO{
		ID:             a.ID,
		Topic:          a.Topic,
		State:          string(a.Stage),
		ContentSummary: a.ContentSummary.String,
		CreatedAt:      a.CreatedAt.Format(time.RFC3339),
	}
}
