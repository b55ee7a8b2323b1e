package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuongbtq/article-gen/internal/domain"
	"github.com/cuongbtq/article-gen/internal/progress"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type progressUpdate struct {
	state, text string
}

type fakeStore struct {
	mu        sync.Mutex
	article   *domain.Article
	getErr    error
	updateErr error
	updates   []progressUpdate
}

func (s *fakeStore) GetArticle(_ context.Context, id string) (*domain.Article, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.article == nil || s.article.ID != id || !s.article.Active() {
		return nil, domain.ErrArticleNotFound
	}
	cp := *s.article
	return &cp, nil
}

func (s *fakeStore) UpdateProgress(_ context.Context, _ string, state, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, progressUpdate{state, text})
	return s.updateErr
}

func newTestConsumer(t *testing.T, store *fakeStore) (*Consumer, *progress.RedisChannel, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ch := progress.NewRedisChannel(rdb, time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewConsumer(store, ch, Config{PollInterval: 5 * time.Millisecond, MaxIdlePolls: 5}, logger)
	return c, ch, mr
}

func newArticle(stage domain.Stage) *domain.Article {
	return &domain.Article{ID: "a1", OwnerID: "o1", Topic: "Go", Status: domain.StatusActive, Stage: stage}
}

func collect(seq func(func(domain.Event) bool)) []domain.Event {
	var events []domain.Event
	for ev := range seq {
		events = append(events, ev)
	}
	return events
}

func TestConsumer_CompletedFastPath(t *testing.T) {
	store := &fakeStore{article: newArticle(domain.StageDone)}
	c, ch, _ := newTestConsumer(t, store)
	ctx := context.Background()

	require.NoError(t, ch.Push(ctx, "a1", domain.ProgressEvent("saving", "left over")))

	events := collect(c.Stream(ctx, "a1", "o1"))
	require.Len(t, events, 1)
	assert.True(t, events[0].IsDone)
	assert.Equal(t, http.StatusOK, events[0].Code)

	// channel untouched
	msg, err := ch.Pop(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "saving", msg.Event.State)
	assert.Empty(t, store.updates)
}

func TestConsumer_ChannelNeverCreated(t *testing.T) {
	store := &fakeStore{article: newArticle(domain.StageInit)}
	c, _, _ := newTestConsumer(t, store)

	start := time.Now()
	events := collect(c.Stream(context.Background(), "a1", "o1"))
	assert.Empty(t, events)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConsumer_DrainsUntilSentinel(t *testing.T) {
	store := &fakeStore{article: newArticle(domain.StagePreWriting)}
	c, ch, _ := newTestConsumer(t, store)
	ctx := context.Background()

	require.NoError(t, ch.Push(ctx, "a1", domain.ProgressEvent("researching", "one")))
	require.NoError(t, ch.Push(ctx, "a1", domain.ProgressEvent("research_end", "two")))
	require.NoError(t, ch.End(ctx, "a1"))
	require.NoError(t, ch.Push(ctx, "a1", domain.ProgressEvent("never", "after sentinel")))

	events := collect(c.Stream(ctx, "a1", "o1"))
	require.Len(t, events, 2)
	assert.Equal(t, "researching", events[0].State)
	assert.Equal(t, "research_end", events[1].State)

	assert.Equal(t, []progressUpdate{{"researching", "one"}, {"research_end", "two"}}, store.updates)
}

func TestConsumer_WaitsForLateEvents(t *testing.T) {
	store := &fakeStore{article: newArticle(domain.StagePreWriting)}
	c, ch, _ := newTestConsumer(t, store)
	c.config.MaxIdlePolls = 200
	ctx := context.Background()

	require.NoError(t, ch.Push(ctx, "a1", domain.ProgressEvent("preparing", "first")))

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = ch.Push(ctx, "a1", domain.CompletedEvent("done"))
		_ = ch.End(ctx, "a1")
	}()

	events := collect(c.Stream(ctx, "a1", "o1"))
	require.Len(t, events, 2)
	assert.Equal(t, "preparing", events[0].State)
	assert.True(t, events[1].IsDone)
}

func TestConsumer_IdleTimeout(t *testing.T) {
	store := &fakeStore{article: newArticle(domain.StagePreWriting)}
	c, ch, _ := newTestConsumer(t, store)
	ctx := context.Background()

	require.NoError(t, ch.Push(ctx, "a1", domain.ProgressEvent("researching", "one")))

	events := collect(c.Stream(ctx, "a1", "o1"))
	require.Len(t, events, 1)
	assert.False(t, events[0].IsDone)
	assert.False(t, events[0].Failed(), "idle end is not a failure")
}

func TestConsumer_PreconditionErrors(t *testing.T) {
	tests := []struct {
		name     string
		store    *fakeStore
		owner    string
		wantCode int
	}{
		{name: "not found", store: &fakeStore{}, owner: "o1", wantCode: http.StatusNotFound},
		{name: "forbidden", store: &fakeStore{article: newArticle(domain.StageInit)}, owner: "o2", wantCode: http.StatusForbidden},
		{name: "store error", store: &fakeStore{getErr: errors.New("db down")}, owner: "o1", wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestConsumer(t, tt.store)

			events := collect(c.Stream(context.Background(), "a1", tt.owner))
			require.Len(t, events, 1)
			assert.Equal(t, domain.EventError, events[0].State)
			assert.Equal(t, tt.wantCode, events[0].Code)
		})
	}
}

func TestConsumer_DeletedArticleNotFound(t *testing.T) {
	article := newArticle(domain.StagePreWriting)
	article.Status = domain.StatusDeleted
	c, _, _ := newTestConsumer(t, &fakeStore{article: article})

	events := collect(c.Stream(context.Background(), "a1", "o1"))
	require.Len(t, events, 1)
	assert.Equal(t, http.StatusNotFound, events[0].Code)
}

func TestConsumer_PersistenceFailureKeepsStreaming(t *testing.T) {
	store := &fakeStore{article: newArticle(domain.StagePreWriting), updateErr: errors.New("db down")}
	c, ch, _ := newTestConsumer(t, store)
	ctx := context.Background()

	require.NoError(t, ch.Push(ctx, "a1", domain.ProgressEvent("researching", "one")))
	require.NoError(t, ch.End(ctx, "a1"))

	events := collect(c.Stream(ctx, "a1", "o1"))
	assert.Len(t, events, 1)
}

func TestConsumer_CorruptEventEndsWithError(t *testing.T) {
	store := &fakeStore{article: newArticle(domain.StagePreWriting)}
	c, _, mr := newTestConsumer(t, store)

	_, err := mr.Push(progress.Key("a1"), "{not json")
	require.NoError(t, err)

	events := collect(c.Stream(context.Background(), "a1", "o1"))
	require.Len(t, events, 1)
	assert.Equal(t, http.StatusInternalServerError, events[0].Code)
}

func TestConsumer_StopsWhenCallerStops(t *testing.T) {
	store := &fakeStore{article: newArticle(domain.StagePreWriting)}
	c, ch, _ := newTestConsumer(t, store)
	ctx := context.Background()

	require.NoError(t, ch.Push(ctx, "a1", domain.ProgressEvent("one", "")))
	require.NoError(t, ch.Push(ctx, "a1", domain.ProgressEvent("two", "")))

	for range c.Stream(ctx, "a1", "o1") {
		break
	}

	msg, err := ch.Pop(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "two", msg.Event.State, "unread events stay queued")
}

func TestConsumer_ContextCanceled(t *testing.T) {
	store := &fakeStore{article: newArticle(domain.StagePreWriting)}
	c, ch, _ := newTestConsumer(t, store)
	c.config.MaxIdlePolls = 100000

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, ch.Push(ctx, "a1", domain.ProgressEvent("one", "")))

	done := make(chan []domain.Event)
	go func() { done <- collect(c.Stream(ctx, "a1", "o1")) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case events := <-done:
		assert.Len(t, events, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}
