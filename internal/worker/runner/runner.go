// Package runner advances an article through the generation pipeline one
// whole stage at a time, checkpointing the stage after each and relaying
// progress to the article's channel.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/cuongbtq/article-gen/internal/domain"
	"github.com/cuongbtq/article-gen/internal/pipeline"
	"github.com/cuongbtq/article-gen/internal/progress"
)

// DefaultSummaryLength is the rune length of the stored content summary
const DefaultSummaryLength = 200

// Store is the slice of article persistence the runner needs
type Store interface {
	GetArticle(ctx context.Context, articleID string) (*domain.Article, error)
	TransitionStage(ctx context.Context, articleID string, from, to domain.Stage) error
	Complete(ctx context.Context, articleID string, out domain.Output, statusText string) error
}

// Config holds runner settings
type Config struct {
	OutputDir       string
	DeleteOutputDir bool
	SummaryLength   int
}

// Runner executes article runs
type Runner struct {
	store    Store
	channel  progress.Channel
	pipeline pipeline.Pipeline
	config   Config
	logger   *slog.Logger
}

// New creates a Runner
func New(store Store, channel progress.Channel, pl pipeline.Pipeline, config Config, logger *slog.Logger) *Runner {
	if config.SummaryLength <= 0 {
		config.SummaryLength = DefaultSummaryLength
	}
	return &Runner{
		store:    store,
		channel:  channel,
		pipeline: pl,
		config:   config,
		logger:   logger,
	}
}

// Advance runs the article from its persisted stage to a terminal stage.
// Failures become a FAIL_* stage plus a failure event; the channel always
// receives the sentinel last. The only error returned is a
// domain.RetryableError when ctx is canceled mid-run.
func (r *Runner) Advance(ctx context.Context, articleID string) error {
	logger := r.logger.With(slog.String("article_id", articleID))
	notifyCtx := context.WithoutCancel(ctx)

	defer func() {
		if err := r.channel.End(notifyCtx, articleID); err != nil {
			logger.Error("Failed to push end of channel",
				slog.Any("error", err),
			)
		}
	}()

	article, err := r.store.GetArticle(ctx, articleID)
	if err != nil {
		if errors.Is(err, domain.ErrArticleNotFound) {
			logger.Warn("Article not found, nothing to run")
			r.push(notifyCtx, logger, articleID, domain.FailureEvent(domain.EventFailed, "Article not found", http.StatusNotFound))
			return nil
		}
		if ctx.Err() != nil {
			return r.interrupted(notifyCtx, logger, articleID, ctx.Err())
		}
		logger.Error("Failed to load article", slog.Any("error", err))
		r.push(notifyCtx, logger, articleID, domain.FailureEvent(domain.EventFailed, fmt.Sprintf("Failed to load article: %v", err), http.StatusInternalServerError))
		return nil
	}

	if !article.Active() || !article.Stage.Resumable() {
		logger.Warn("Refusing to advance article",
			slog.String("stage", string(article.Stage)),
			slog.String("status", article.Status),
		)
		r.push(notifyCtx, logger, articleID, domain.FailureEvent(domain.EventFailed,
			fmt.Sprintf("Article cannot be generated from stage %q", article.Stage), http.StatusConflict))
		return nil
	}

	logger.Info("Advancing article", slog.String("stage", string(article.Stage)))

	rn := &run{
		Runner:    r,
		article:   article,
		stage:     article.Stage,
		notifyCtx: notifyCtx,
		logger:    logger,
	}
	return rn.execute(ctx)
}

func (r *Runner) push(ctx context.Context, logger *slog.Logger, articleID string, event domain.Event) {
	if err := r.channel.Push(ctx, articleID, event); err != nil {
		logger.Error("Failed to push progress event",
			slog.String("state", event.State),
			slog.Any("error", err),
		)
	}
}

func (r *Runner) interrupted(ctx context.Context, logger *slog.Logger, articleID string, cause error) error {
	logger.Warn("Article run interrupted", slog.Any("error", cause))
	r.push(ctx, logger, articleID, domain.FailureEvent(domain.EventInterrupted,
		"Generation was interrupted and will resume shortly", http.StatusServiceUnavailable))
	return domain.NewRetryableError(fmt.Errorf("article %s interrupted: %w", articleID, cause))
}

// run is the state of one Advance call
type run struct {
	*Runner
	article   *domain.Article
	stage     domain.Stage
	session   pipeline.Session
	notifyCtx context.Context
	logger    *slog.Logger
}

func (rn *run) execute(ctx context.Context) error {
	for !rn.stage.Terminal() {
		var err error
		switch rn.stage {
		case domain.StageInit:
			err = rn.prepare(ctx)
		case domain.StagePreWriting:
			err = rn.research(ctx)
		case domain.StagePreWritingEnd:
			err = rn.write(ctx)
		case domain.StageGeneratingEnd:
			err = rn.collect(ctx)
		default:
			err = fmt.Errorf("%w: unknown stage %q", domain.ErrStageGuard, rn.stage)
		}
		if err != nil {
			return rn.fail(ctx, err)
		}
	}

	rn.logger.Info("Article run finished", slog.String("stage", string(rn.stage)))
	return nil
}

func (rn *run) emit(event domain.Event) {
	rn.push(rn.notifyCtx, rn.logger, rn.article.ID, event)
}

func (rn *run) transition(ctx context.Context, to domain.Stage) error {
	if err := rn.store.TransitionStage(ctx, rn.article.ID, rn.stage, to); err != nil {
		return err
	}
	rn.stage = to
	return nil
}

// advanceStage checkpoints the stage that follows the current one
func (rn *run) advanceStage(ctx context.Context) error {
	next, ok := rn.stage.Next()
	if !ok {
		return fmt.Errorf("%w: no stage follows %q", domain.ErrStageGuard, rn.stage)
	}
	return rn.transition(ctx, next)
}

func (rn *run) ensureSession(ctx context.Context) error {
	if rn.session != nil {
		return nil
	}
	session, err := rn.pipeline.NewSession(ctx, pipeline.SessionRequest{
		OwnerID:   rn.article.OwnerID,
		ArticleID: rn.article.ID,
		Topic:     rn.article.Topic,
	})
	if err != nil {
		return fmt.Errorf("failed to set up pipeline: %w", err)
	}
	rn.session = session
	return nil
}

func (rn *run) prepare(ctx context.Context) error {
	rn.emit(domain.ProgressEvent(domain.EventPreparing, "Setting up the llm provider"))

	if err := rn.ensureSession(ctx); err != nil {
		return err
	}
	if err := rn.advanceStage(ctx); err != nil {
		return err
	}

	rn.emit(domain.ProgressEvent(domain.EventProvider, "Have successfully set up llm provider"))
	return nil
}

func (rn *run) research(ctx context.Context) error {
	rn.emit(domain.ProgressEvent(domain.EventResearching,
		"I am brain**STORM**ing now to research the topic. (This may take 2-3 minutes.)"))

	if err := rn.ensureSession(ctx); err != nil {
		return err
	}

	cb := newCallbackAdapter(rn.notifyCtx, rn.channel, rn.article.ID, rn.logger)
	if err := rn.session.Run(ctx, pipeline.ResearchFlags(), cb); err != nil {
		return fmt.Errorf("research stage failed: %w", err)
	}

	if err := rn.advanceStage(ctx); err != nil {
		return err
	}

	rn.emit(domain.ProgressEvent(domain.EventResearched, "brain**STORM**ing complete!"))
	return nil
}

func (rn *run) write(ctx context.Context) error {
	rn.emit(domain.ProgressEvent(domain.EventWriting,
		"Now I will connect the information I found for your reference. (This may take 4-5 minutes.)"))

	if err := rn.ensureSession(ctx); err != nil {
		return err
	}

	cb := newCallbackAdapter(rn.notifyCtx, rn.channel, rn.article.ID, rn.logger)
	if err := rn.session.Run(ctx, pipeline.WritingFlags(), cb); err != nil {
		return fmt.Errorf("writing stage failed: %w", err)
	}
	if err := rn.session.Finalize(ctx); err != nil {
		return fmt.Errorf("finalize failed: %w", err)
	}

	if err := rn.advanceStage(ctx); err != nil {
		return err
	}

	rn.emit(domain.ProgressEvent(domain.EventWritten, "information synthesis complete!"))
	return nil
}

func (rn *run) collect(ctx context.Context) error {
	articleDir := pipeline.ArticleDir(rn.config.OutputDir, rn.article.OwnerID, rn.article.ID, rn.article.Topic)
	if rn.session != nil {
		articleDir = rn.session.ArticleDir()
	}

	artifacts, err := pipeline.ReadArtifacts(articleDir)
	if err != nil {
		return err
	}

	rn.emit(domain.ProgressEvent(domain.EventSaving, "Updating article in database"))

	out := domain.Output{
		Content:        artifacts.Content,
		ContentSummary: Summarize(artifacts.Content, rn.config.SummaryLength),
		URLToInfo:      artifacts.URLToInfo,
	}
	if err := rn.store.Complete(ctx, rn.article.ID, out, "Article generated"); err != nil {
		return err
	}
	rn.stage = domain.StageDone

	if rn.config.DeleteOutputDir {
		workDir := pipeline.WorkDir(rn.config.OutputDir, rn.article.OwnerID, rn.article.ID)
		if err := os.RemoveAll(workDir); err != nil {
			rn.logger.Warn("Failed to remove working directory",
				slog.String("work_dir", workDir),
				slog.Any("error", err),
			)
		}
	}

	rn.emit(domain.CompletedEvent("Have successfully uploaded to db, sending article content back!"))
	return nil
}

// fail converts a stage error into the terminal outcome of the run
func (rn *run) fail(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return rn.interrupted(rn.notifyCtx, rn.logger, rn.article.ID, err)
	}

	if errors.Is(err, domain.ErrStageGuard) {
		rn.logger.Warn("Article was deleted or moved by another runner, stopping", slog.Any("error", err))
		rn.emit(domain.FailureEvent(domain.EventFailed, "Article was deleted or is being generated by another worker", http.StatusConflict))
		return nil
	}

	var target domain.Stage
	var message string
	switch {
	case errors.Is(err, domain.ErrArtifactParse):
		target = domain.StageFailFile
		message = fmt.Sprintf("Failed parsing file, error is: %v", err)
	case errors.Is(err, domain.ErrPersistence):
		target = domain.StageFailDB
		message = fmt.Sprintf("Failed to upload article to database: %v", err)
	default:
		target = domain.StageFailListen
		message = fmt.Sprintf("Failed to create article, error is: %v", err)
	}

	rn.logger.Error("Article run failed",
		slog.String("stage", string(rn.stage)),
		slog.String("fail_stage", string(target)),
		slog.Any("error", err),
	)

	if markErr := rn.store.TransitionStage(rn.notifyCtx, rn.article.ID, rn.stage, target); markErr != nil {
		rn.logger.Error("Failed to mark article failed",
			slog.String("fail_stage", string(target)),
			slog.Any("error", markErr),
		)
	} else {
		rn.stage = target
	}

	rn.emit(domain.FailureEvent(domain.EventFailed, message, http.StatusInternalServerError))
	return nil
}

// Summarize returns the first n runes of content with a leading heading line removed
func Summarize(content string, n int) string {
	s := strings.TrimLeft(content, " \t\r\n")
	if strings.HasPrefix(s, "#") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = ""
		}
	}
	s = strings.TrimSpace(s)

	runes := []rune(s)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}
