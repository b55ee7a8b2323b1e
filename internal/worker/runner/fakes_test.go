package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuongbtq/article-gen/internal/domain"
	"github.com/cuongbtq/article-gen/internal/pipeline"
	"github.com/cuongbtq/article-gen/internal/progress"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type transition struct {
	from, to domain.Stage
}

type fakeStore struct {
	mu          sync.Mutex
	articles    map[string]*domain.Article
	transitions []transition
	completeErr error
	getErr      error
}

func newFakeStore(articles ...*domain.Article) *fakeStore {
	s := &fakeStore{articles: make(map[string]*domain.Article)}
	for _, a := range articles {
		s.articles[a.ID] = a
	}
	return s
}

func (s *fakeStore) GetArticle(_ context.Context, id string) (*domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	a, ok := s.articles[id]
	if !ok {
		return nil, domain.ErrArticleNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) TransitionStage(_ context.Context, id string, from, to domain.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok || a.Stage != from || !a.Active() {
		return domain.ErrStageGuard
	}
	a.Stage = to
	s.transitions = append(s.transitions, transition{from, to})
	return nil
}

func (s *fakeStore) Complete(_ context.Context, id string, out domain.Output, statusText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return s.completeErr
	}
	a, ok := s.articles[id]
	if !ok || a.Stage != domain.StageGeneratingEnd || !a.Active() {
		return domain.ErrStageGuard
	}
	a.Stage = domain.StageDone
	a.Content.String, a.Content.Valid = out.Content, true
	a.ContentSummary.String, a.ContentSummary.Valid = out.ContentSummary, true
	a.URLToInfo.String, a.URLToInfo.Valid = out.URLToInfo, true
	a.StatusText.String, a.StatusText.Valid = statusText, true
	s.transitions = append(s.transitions, transition{domain.StageGeneratingEnd, domain.StageDone})
	return nil
}

func (s *fakeStore) softDelete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[id].Status = domain.StatusDeleted
}

func (s *fakeStore) article(id string) domain.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.articles[id]
}

// fakePipeline writes artifacts on Finalize and fires research hooks
type fakePipeline struct {
	outputDir     string
	researchErr   error
	writeArtifact bool
	runs          []pipeline.Flags
	beforeRun     func(flags pipeline.Flags)
}

func (p *fakePipeline) NewSession(_ context.Context, req pipeline.SessionRequest) (pipeline.Session, error) {
	workDir := pipeline.WorkDir(p.outputDir, req.OwnerID, req.ArticleID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, err
	}
	return &fakeSession{p: p, req: req, workDir: workDir}, nil
}

type fakeSession struct {
	p       *fakePipeline
	req     pipeline.SessionRequest
	workDir string
}

func (s *fakeSession) WorkDir() string { return s.workDir }

func (s *fakeSession) ArticleDir() string {
	return pipeline.ArticleDir(s.p.outputDir, s.req.OwnerID, s.req.ArticleID, s.req.Topic)
}

func (s *fakeSession) Run(ctx context.Context, flags pipeline.Flags, cb pipeline.Callbacks) error {
	s.p.runs = append(s.p.runs, flags)
	if s.p.beforeRun != nil {
		s.p.beforeRun(flags)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if flags.Research {
		if s.p.researchErr != nil {
			return s.p.researchErr
		}
		cb.OnIdentifyPerspectiveStart()
		cb.OnIdentifyPerspectiveEnd([]string{"historian"})
		cb.OnOutlineRefinementEnd("# outline")
	}
	return nil
}

func (s *fakeSession) Finalize(ctx context.Context) error {
	s.p.runs = append(s.p.runs, pipeline.FinalizeFlags())
	if !s.p.writeArtifact {
		return nil
	}
	dir := s.ArticleDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, pipeline.PolishedArticleFile), []byte("# Go\nGo is a language[1]."), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, pipeline.URLToInfoFile), []byte(`{"url_to_unified_index":{"https://go.dev":1}}`), 0o644)
}

var errPipeline = errors.New("llm quota exceeded")

func newTestArticle(stage domain.Stage) *domain.Article {
	return &domain.Article{
		ID:        "a1",
		OwnerID:   "o1",
		Topic:     "Go",
		Status:    domain.StatusActive,
		Stage:     stage,
		CreatedAt: time.Now(),
	}
}

func newTestChannel(t *testing.T) *progress.RedisChannel {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return progress.NewRedisChannel(rdb, time.Hour)
}

func drain(t *testing.T, ch progress.Channel, id string) []progress.Message {
	t.Helper()
	var msgs []progress.Message
	for {
		msg, err := ch.Pop(context.Background(), id)
		if errors.Is(err, progress.ErrEmpty) {
			return msgs
		}
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
