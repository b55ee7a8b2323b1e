// Package service holds the API side of the article lifecycle: admission,
// reads scoped to the owner, deletion and re-dispatch.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cuongbtq/article-gen/internal/api/storage"
	"github.com/cuongbtq/article-gen/internal/citation"
	"github.com/cuongbtq/article-gen/internal/domain"
	"github.com/cuongbtq/article-gen/internal/moderation"
	"github.com/cuongbtq/article-gen/internal/pipeline"
	"github.com/cuongbtq/article-gen/internal/progress"
	"github.com/google/uuid"
)

// MaxTopicLength is the longest accepted topic, in characters, after trimming
const MaxTopicLength = 50

const defaultDispatchTimeout = 10 * time.Second

// Store is the article persistence used by the service
type Store interface {
	CreateArticle(ctx context.Context, article *domain.Article) error
	GetArticle(ctx context.Context, articleID string) (*domain.Article, error)
	FindByOwnerTopic(ctx context.Context, ownerID, topic string) (*domain.Article, error)
	ResetArticle(ctx context.Context, articleID string) error
	SoftDelete(ctx context.Context, articleID string) error
	ListArticles(ctx context.Context, filter storage.ArticleFilter) ([]domain.Article, error)
}

// Dispatcher hands an article to the worker service
type Dispatcher interface {
	Dispatch(ctx context.Context, articleID string) error
}

// RunLocks reports whether a worker is running an article
type RunLocks interface {
	Held(ctx context.Context, articleID string) (bool, error)
}

// Config holds service settings
type Config struct {
	OutputDir       string
	DispatchTimeout time.Duration
}

// ArticleService implements the article operations behind the HTTP handlers
type ArticleService struct {
	store      Store
	moderator  moderation.Moderator
	channel    progress.Channel
	dispatcher Dispatcher
	locks      RunLocks
	config     Config
	logger     *slog.Logger

	wg sync.WaitGroup
}

// State is a point-in-time snapshot of an article run
type State struct {
	Stage         domain.Stage
	InfoMessage   string
	StatusText    string
	ProgressState string
}

// Page is one page of an owner's articles
type Page struct {
	Articles   []domain.Article
	NextCursor *storage.ArticleCursor
}

func New(store Store, moderator moderation.Moderator, channel progress.Channel, dispatcher Dispatcher, locks RunLocks, config Config, logger *slog.Logger) *ArticleService {
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = defaultDispatchTimeout
	}
	return &ArticleService{
		store:      store,
		moderator:  moderator,
		channel:    channel,
		dispatcher: dispatcher,
		locks:      locks,
		config:     config,
		logger:     logger,
	}
}

// NormalizeTopic trims topic and checks its length
func NormalizeTopic(topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	n := utf8.RuneCountInString(topic)
	if n == 0 {
		return "", fmt.Errorf("%w: topic must not be empty", domain.ErrInvalidTopic)
	}
	if n > MaxTopicLength {
		return "", fmt.Errorf("%w: topic must be at most %d characters", domain.ErrInvalidTopic, MaxTopicLength)
	}
	return topic, nil
}

// Admit runs the admission checks for topic and, when they pass, creates or
// resets the owner's article and dispatches it without waiting for the run.
func (s *ArticleService) Admit(ctx context.Context, ownerID, topic string) (*domain.Article, error) {
	topic, err := NormalizeTopic(topic)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(slog.String("owner_id", ownerID), slog.String("topic", topic))

	existing, err := s.store.FindByOwnerTopic(ctx, ownerID, topic)
	if err != nil && !errors.Is(err, domain.ErrArticleNotFound) {
		return nil, err
	}
	if existing != nil && existing.Active() {
		return nil, domain.ErrAdmissionConflict
	}

	verdict, err := s.moderator.Check(ctx, topic)
	if err != nil {
		logger.Error("Moderation check failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	if !verdict.Allowed() {
		logger.Info("Topic rejected by moderation", slog.String("verdict", string(verdict)))
		return nil, &domain.RejectedError{Reason: verdict.Reason()}
	}

	var article *domain.Article
	if existing != nil {
		// a run of the deleted article still owns its channel until it stops
		if err := s.ensureIdle(ctx, existing.ID); err != nil {
			return nil, err
		}
		if err := s.store.ResetArticle(ctx, existing.ID); err != nil {
			return nil, err
		}
		article = existing
		article.Status = domain.StatusActive
		article.Stage = domain.StageInit
		logger.Info("Reusing deleted article", slog.String("article_id", article.ID))
	} else {
		now := time.Now().UTC()
		article = &domain.Article{
			ID:        uuid.New().String(),
			OwnerID:   ownerID,
			Topic:     topic,
			Status:    domain.StatusActive,
			Stage:     domain.StageInit,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.CreateArticle(ctx, article); err != nil {
			return nil, err
		}
		logger.Info("Article created", slog.String("article_id", article.ID))
	}

	// events and the sentinel of an earlier run must not reach the new stream
	if err := s.channel.Clear(ctx, article.ID); err != nil {
		logger.Warn("Failed to clear progress channel",
			slog.String("article_id", article.ID),
			slog.Any("error", err),
		)
	}

	s.dispatchAsync(article.ID)
	return article, nil
}

func (s *ArticleService) dispatchAsync(articleID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.config.DispatchTimeout)
		defer cancel()

		if err := s.dispatcher.Dispatch(ctx, articleID); err != nil {
			s.logger.Error("Failed to dispatch article",
				slog.String("article_id", articleID),
				slog.Any("error", err),
			)
		}
	}()
}

// ensureIdle returns domain.ErrRunInProgress while a worker holds the article's lease
func (s *ArticleService) ensureIdle(ctx context.Context, articleID string) error {
	held, err := s.locks.Held(ctx, articleID)
	if err != nil {
		return err
	}
	if held {
		return domain.ErrRunInProgress
	}
	return nil
}

// Wait blocks until in-flight dispatches finish
func (s *ArticleService) Wait() {
	s.wg.Wait()
}

// load returns the owner's active article
func (s *ArticleService) load(ctx context.Context, ownerID, articleID string) (*domain.Article, error) {
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	if article.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	return article, nil
}

// Get returns the article with citation markers in its content rewritten as links
func (s *ArticleService) Get(ctx context.Context, ownerID, articleID string) (*domain.Article, error) {
	article, err := s.load(ctx, ownerID, articleID)
	if err != nil {
		return nil, err
	}

	if article.Content.Valid && article.URLToInfo.Valid {
		index, err := citation.Parse(article.URLToInfo.String)
		if err != nil {
			s.logger.Warn("Failed to parse citation metadata",
				slog.String("article_id", articleID),
				slog.Any("error", err),
			)
		} else {
			article.Content.String = citation.InlineLinks(article.Content.String, index)
		}
	}

	return article, nil
}

// GetState returns the stage snapshot of an article
func (s *ArticleService) GetState(ctx context.Context, ownerID, articleID string) (*State, error) {
	article, err := s.load(ctx, ownerID, articleID)
	if err != nil {
		return nil, err
	}

	return &State{
		Stage:         article.Stage,
		InfoMessage:   article.Stage.InfoMessage(),
		StatusText:    article.StatusText.String,
		ProgressState: article.ProgressState.String,
	}, nil
}

// Delete soft-deletes the article and removes its working directory if one is left
func (s *ArticleService) Delete(ctx context.Context, ownerID, articleID string) error {
	if _, err := s.load(ctx, ownerID, articleID); err != nil {
		return err
	}

	if err := s.store.SoftDelete(ctx, articleID); err != nil {
		return err
	}

	if s.config.OutputDir != "" {
		workDir := pipeline.WorkDir(s.config.OutputDir, ownerID, articleID)
		if err := os.RemoveAll(workDir); err != nil {
			s.logger.Warn("Failed to remove working directory",
				slog.String("article_id", articleID),
				slog.String("work_dir", workDir),
				slog.Any("error", err),
			)
		}
	}

	s.logger.Info("Article deleted", slog.String("article_id", articleID))
	return nil
}

// Resume dispatches an article whose run was lost. Terminal articles return
// domain.ErrStageGuard, articles a worker is still running domain.ErrRunInProgress.
func (s *ArticleService) Resume(ctx context.Context, ownerID, articleID string) (*domain.Article, error) {
	article, err := s.load(ctx, ownerID, articleID)
	if err != nil {
		return nil, err
	}
	if article.Stage.Terminal() {
		return nil, fmt.Errorf("%w: article is %s", domain.ErrStageGuard, article.Stage)
	}
	if err := s.ensureIdle(ctx, articleID); err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, articleID); err != nil {
		return nil, fmt.Errorf("failed to dispatch article: %w", err)
	}

	s.logger.Info("Article resumed",
		slog.String("article_id", articleID),
		slog.String("stage", string(article.Stage)),
	)
	return article, nil
}

// List returns a page of the owner's active articles, newest first
func (s *ArticleService) List(ctx context.Context, ownerID string, pageSize int, cursor *storage.ArticleCursor) (*Page, error) {
	articles, err := s.store.ListArticles(ctx, storage.ArticleFilter{
		OwnerID:  ownerID,
		PageSize: pageSize,
		Cursor:   cursor,
	})
	if err != nil {
		return nil, err
	}

	page := &Page{Articles: articles}
	if len(articles) > pageSize {
		page.Articles = articles[:pageSize]
		last := page.Articles[len(page.Articles)-1]
		page.NextCursor = &storage.ArticleCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return page, nil
}
