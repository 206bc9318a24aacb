package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianmc/meridian-core/internal/events"
	"github.com/meridianmc/meridian-core/internal/rank"
	"github.com/meridianmc/meridian-core/internal/session"
	_ "github.com/meridianmc/meridian-core/testing"
)

type fakeSessionRepo struct {
	idle    []session.Session
	reapErr error
}

func (f *fakeSessionRepo) Upsert(context.Context, session.Session) error { return nil }
func (f *fakeSessionRepo) Delete(context.Context, string, string) (int64, error) {
	return 0, nil
}
func (f *fakeSessionRepo) Find(context.Context, string) (session.Session, error) {
	return session.Session{}, nil
}
func (f *fakeSessionRepo) Heartbeat(context.Context, string, string, time.Time) error {
	return nil
}
func (f *fakeSessionRepo) ReapIdle(context.Context, time.Time) ([]session.Session, error) {
	return f.idle, f.reapErr
}

type fakeBus struct {
	seq       uint64
	published []string
}

func (f *fakeBus) Publish(_ context.Context, _ string, entityID, eventType string, _ any) (events.Envelope, error) {
	f.seq++
	f.published = append(f.published, eventType)
	return events.Envelope{Origin: "test", Seq: f.seq, EntityID: entityID, Type: eventType}, nil
}

type fakeSessionCache struct{ closed int }

func (f *fakeSessionCache) ApplySessionConnect(string, uint64, session.Session) bool { return true }
func (f *fakeSessionCache) ApplySessionClose(string, uint64, session.Session) bool {
	f.closed++
	return true
}
func (f *fakeSessionCache) Owner(context.Context, string) (session.Session, error) {
	return session.Session{}, nil
}

func reapFixture(t *testing.T, repo *fakeSessionRepo) (*SessionReapJob, *fakeSessionCache) {
	t.Helper()
	cache := &fakeSessionCache{}
	registry := session.NewRegistry(repo, &fakeBus{}, cache, slog.Default(), nil)
	return NewSessionReapJob(registry, slog.Default(), nil, 5*time.Minute), cache
}

func TestSessionReapClosesIdleSessions(t *testing.T) {
	repo := &fakeSessionRepo{idle: []session.Session{
		{PlayerID: "p1", ServerID: "lobby-1"},
		{PlayerID: "p2", ServerID: "lobby-2"},
	}}
	job, cache := reapFixture(t, repo)

	task, err := NewSessionReapTask(SessionReapPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 2, cache.closed)
}

func TestSessionReapRejectsMalformedPayload(t *testing.T) {
	job, _ := reapFixture(t, &fakeSessionRepo{})
	err := job.Handle(context.Background(), asynq.NewTask(TaskSessionReap, []byte("{broken")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSessionReapReportsStoreFailure(t *testing.T) {
	repo := &fakeSessionRepo{reapErr: errors.New("store down")}
	job, _ := reapFixture(t, repo)

	task, err := NewSessionReapTask(SessionReapPayload{})
	require.NoError(t, err)
	assert.Error(t, job.Handle(context.Background(), task))
}

type fakeRankSource struct {
	ranks []rank.Rank
	err   error
}

func (f *fakeRankSource) ListRanks(context.Context) ([]rank.Rank, error) {
	return f.ranks, f.err
}

func TestRankRefreshStopsWhenListFails(t *testing.T) {
	catalog, err := rank.NewCatalog(nil)
	require.NoError(t, err)
	job := NewRankRefreshJob(&fakeRankSource{err: errors.New("store down")}, catalog, nil, slog.Default(), nil)

	task, err := NewRankRefreshTask(RankRefreshPayload{})
	require.NoError(t, err)
	assert.Error(t, job.Handle(context.Background(), task))
}

func TestRankRefreshRejectsCyclicCatalog(t *testing.T) {
	catalog, err := rank.NewCatalog(nil)
	require.NoError(t, err)
	a, b := "a", "b"
	src := &fakeRankSource{ranks: []rank.Rank{
		{ID: a, ParentID: &b},
		{ID: b, ParentID: &a},
	}}
	job := NewRankRefreshJob(src, catalog, nil, slog.Default(), nil)

	task, err := NewRankRefreshTask(RankRefreshPayload{})
	require.NoError(t, err)
	assert.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}

type fakeFlusher struct {
	flushed int64
	err     error
	calls   int
}

func (f *fakeFlusher) FlushSeen(context.Context) (int64, error) {
	f.calls++
	return f.flushed, f.err
}

func TestTouchFlushRunsOnce(t *testing.T) {
	flusher := &fakeFlusher{flushed: 7}
	job := NewTouchFlushJob(flusher, slog.Default(), nil)

	require.NoError(t, job.Handle(context.Background(), NewTouchFlushTask()))
	assert.Equal(t, 1, flusher.calls)
}

func TestTouchFlushReportsStoreFailure(t *testing.T) {
	flusher := &fakeFlusher{err: errors.New("store down")}
	job := NewTouchFlushJob(flusher, slog.Default(), nil)

	assert.Error(t, job.Handle(context.Background(), NewTouchFlushTask()))
}
