package router

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/article-gen/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.Warn("Health check failed", slog.Any("error", err))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "article-api-service",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "article-api-service",
		})
	})

	articleHandler := handler.NewArticleHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(deps.JWTSecret, deps.Logger))
	{
		articles := v1.Group("/articles")
		{
			// POST /api/v1/articles - Admit a topic and start generation
			articles.POST("", articleHandler.CreateArticle)

			// GET /api/v1/articles - List the caller's articles
			articles.GET("", articleHandler.ListArticles)

			// GET /api/v1/articles/:article_id - Get the rendered article
			articles.GET("/:article_id", articleHandler.GetArticle)

			// GET /api/v1/articles/:article_id/state - Point-in-time stage snapshot
			articles.GET("/:article_id/state", articleHandler.GetArticleState)

			// GET /api/v1/articles/:article_id/stream - Live progress events
			articles.GET("/:article_id/stream", articleHandler.StreamArticle)

			// POST /api/v1/articles/:article_id/resume - Re-dispatch a lost run
			articles.POST("/:article_id/resume", articleHandler.ResumeArticle)

			// DELETE /api/v1/articles/:article_id - Soft delete
			articles.DELETE("/:article_id", articleHandler.DeleteArticle)
		}
	}

	return r
}
