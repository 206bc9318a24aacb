package punishment

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianmc/meridian-core/internal/events"
	"github.com/meridianmc/meridian-core/internal/shared"
	_ "github.com/meridianmc/meridian-core/testing"
)

type fakeRepo struct {
	records   map[string]Punishment
	insertErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[string]Punishment)}
}

func (f *fakeRepo) Insert(ctx context.Context, p Punishment) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.records[p.ID] = p
	return nil
}

func (f *fakeRepo) MarkRemoved(ctx context.Context, id, revoker string, at time.Time) (Punishment, error) {
	p, ok := f.records[id]
	if !ok {
		return Punishment{}, shared.ErrNotFound
	}
	if p.RemovedAt != nil {
		return Punishment{}, shared.ErrNotFound
	}
	p.Active = false
	p.RemovedBy = &revoker
	p.RemovedAt = &at
	f.records[id] = p
	return p, nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id string) (Punishment, error) {
	p, ok := f.records[id]
	if !ok {
		return Punishment{}, shared.ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) ListByTarget(ctx context.Context, targetID string) ([]Punishment, error) {
	var out []Punishment
	for _, p := range f.records {
		if p.TargetID == targetID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeBus struct {
	seq        uint64
	published  []events.Envelope
	publishErr error
}

func (f *fakeBus) Publish(ctx context.Context, topic, entityID, eventType string, payload any) (events.Envelope, error) {
	if f.publishErr != nil {
		return events.Envelope{}, f.publishErr
	}
	f.seq++
	env := events.Envelope{Origin: "origin-test", Seq: f.seq, EntityID: entityID, Type: eventType}
	f.published = append(f.published, env)
	return env, nil
}

type fakeCache struct {
	applied []Punishment
}

func (f *fakeCache) ApplyPunishment(origin string, seq uint64, record Punishment) bool {
	for i := range f.applied {
		if f.applied[i].ID == record.ID {
			f.applied[i] = record
			return true
		}
	}
	f.applied = append(f.applied, record)
	return true
}

func (f *fakeCache) Punishments(ctx context.Context, playerID string) ([]Punishment, error) {
	var out []Punishment
	for _, p := range f.applied {
		if p.TargetID == playerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCache) SweepExpired(now time.Time) int { return 0 }

type fakePusher struct {
	broadcasts []events.Envelope
}

func (f *fakePusher) Broadcast(env events.Envelope) {
	f.broadcasts = append(f.broadcasts, env)
}

func newTestEngine(repo RepositoryPort, bus EventPublisher, cache CachePort, pusher Pusher) *Engine {
	return NewEngine(repo, bus, cache, pusher, slog.Default())
}

func TestIssuePersistsPublishesAndApplies(t *testing.T) {
	repo := newFakeRepo()
	bus := &fakeBus{}
	cache := &fakeCache{}
	engine := newTestEngine(repo, bus, cache, nil)

	record, err := engine.Issue(context.Background(), IssueParams{
		TargetID: "p1", IssuerID: "mod-1", Kind: KindMute, Reason: "spam",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.True(t, record.Active)

	assert.Contains(t, repo.records, record.ID)
	require.Len(t, bus.published, 1)
	assert.Equal(t, events.TypePunishmentIssued, bus.published[0].Type)
	require.Len(t, cache.applied, 1, "issuing process applies its own write locally")
}

func TestIssueRejectsUnknownKind(t *testing.T) {
	engine := newTestEngine(newFakeRepo(), &fakeBus{}, &fakeCache{}, nil)

	_, err := engine.Issue(context.Background(), IssueParams{TargetID: "p1", Kind: Kind("FROWN")})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestIssueStoreFailureAborts(t *testing.T) {
	repo := newFakeRepo()
	repo.insertErr = shared.ErrStoreUnavailable
	bus := &fakeBus{}
	engine := newTestEngine(repo, bus, &fakeCache{}, nil)

	_, err := engine.Issue(context.Background(), IssueParams{TargetID: "p1", IssuerID: "m", Kind: KindMute, Reason: "r"})
	require.ErrorIs(t, err, shared.ErrStoreUnavailable)
	assert.Empty(t, bus.published, "nothing is published when the store write fails")
}

func TestIssueBanBroadcastsForceKick(t *testing.T) {
	bus := &fakeBus{}
	pusher := &fakePusher{}
	engine := newTestEngine(newFakeRepo(), bus, &fakeCache{}, pusher)

	_, err := engine.Issue(context.Background(), IssueParams{TargetID: "p1", IssuerID: "m", Kind: KindBan, Reason: "cheating"})
	require.NoError(t, err)

	require.Len(t, bus.published, 2)
	assert.Equal(t, events.TypeForceKick, bus.published[1].Type)
	require.Len(t, pusher.broadcasts, 1)
	assert.Equal(t, events.TypeForceKick, pusher.broadcasts[0].Type)
}

func TestMuteDoesNotBroadcast(t *testing.T) {
	pusher := &fakePusher{}
	engine := newTestEngine(newFakeRepo(), &fakeBus{}, &fakeCache{}, pusher)

	_, err := engine.Issue(context.Background(), IssueParams{TargetID: "p1", IssuerID: "m", Kind: KindMute, Reason: "spam"})
	require.NoError(t, err)
	assert.Empty(t, pusher.broadcasts)
}

func TestRevokeDeactivatesAndPreservesAudit(t *testing.T) {
	repo := newFakeRepo()
	bus := &fakeBus{}
	cache := &fakeCache{}
	engine := newTestEngine(repo, bus, cache, nil)

	record, err := engine.Issue(context.Background(), IssueParams{TargetID: "p1", IssuerID: "m", Kind: KindMute, Reason: "spam"})
	require.NoError(t, err)

	revoked, err := engine.Revoke(context.Background(), record.ID, "admin-1")
	require.NoError(t, err)
	assert.False(t, revoked.Active)
	require.NotNil(t, revoked.RemovedBy)
	assert.Equal(t, "admin-1", *revoked.RemovedBy)
	assert.NotNil(t, revoked.RemovedAt)

	stored := repo.records[record.ID]
	assert.Equal(t, record.Reason, stored.Reason, "the record is amended, never deleted")
}

func TestRevokeUnknownRecord(t *testing.T) {
	engine := newTestEngine(newFakeRepo(), &fakeBus{}, &fakeCache{}, nil)

	_, err := engine.Revoke(context.Background(), "nope", "admin-1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestIsActiveReflectsRevocation(t *testing.T) {
	repo := newFakeRepo()
	bus := &fakeBus{}
	cache := &fakeCache{}
	engine := newTestEngine(repo, bus, cache, nil)

	record, err := engine.Issue(context.Background(), IssueParams{TargetID: "p1", IssuerID: "m", Kind: KindMute, Reason: "spam"})
	require.NoError(t, err)

	active, err := engine.IsActive(context.Background(), "p1", KindMute)
	require.NoError(t, err)
	assert.True(t, active)

	_, err = engine.Revoke(context.Background(), record.ID, "admin-1")
	require.NoError(t, err)

	active, err = engine.IsActive(context.Background(), "p1", KindMute)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestEnforcedSelectsLatestIssued(t *testing.T) {
	now := time.Now().UTC()
	records := []Punishment{
		{ID: "a", TargetID: "p1", Kind: KindMute, Active: true, IssuedAt: now.Add(-time.Hour)},
		{ID: "b", TargetID: "p1", Kind: KindMute, Active: true, IssuedAt: now},
	}
	p, ok := Enforced(records, KindMute, now)
	require.True(t, ok)
	assert.Equal(t, "b", p.ID)
}

func TestEnforcedTieBreaksDeterministically(t *testing.T) {
	now := time.Now().UTC()
	records := []Punishment{
		{ID: "aaa", TargetID: "p1", Kind: KindMute, Active: true, IssuedAt: now},
		{ID: "zzz", TargetID: "p1", Kind: KindMute, Active: true, IssuedAt: now},
	}
	p, ok := Enforced(records, KindMute, now)
	require.True(t, ok)
	assert.Equal(t, "zzz", p.ID)

	// Same outcome regardless of slice order.
	reversed := []Punishment{records[1], records[0]}
	p2, ok := Enforced(reversed, KindMute, now)
	require.True(t, ok)
	assert.Equal(t, p.ID, p2.ID)
}

func TestEnforcedIgnoresExpiredAndRevoked(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	records := []Punishment{
		{ID: "expired", TargetID: "p1", Kind: KindMute, Active: true, IssuedAt: now.Add(-time.Hour), ExpiresAt: &past},
		{ID: "revoked", TargetID: "p1", Kind: KindMute, Active: false, IssuedAt: now},
	}
	_, ok := Enforced(records, KindMute, now)
	assert.False(t, ok)
}

func TestEnforcedFiltersByKind(t *testing.T) {
	now := time.Now().UTC()
	records := []Punishment{
		{ID: "mute", TargetID: "p1", Kind: KindMute, Active: true, IssuedAt: now},
	}
	_, ok := Enforced(records, KindBan, now)
	assert.False(t, ok)
}

func TestPublishFailureSurfacesAfterDurableWrite(t *testing.T) {
	repo := newFakeRepo()
	bus := &fakeBus{publishErr: errors.New("broker down")}
	cache := &fakeCache{}
	engine := newTestEngine(repo, bus, cache, nil)

	_, err := engine.Issue(context.Background(), IssueParams{TargetID: "p1", IssuerID: "m", Kind: KindMute, Reason: "spam"})
	require.Error(t, err)
	assert.Len(t, repo.records, 1, "the store write stands even when the publish fails")
	assert.Empty(t, cache.applied)
}
