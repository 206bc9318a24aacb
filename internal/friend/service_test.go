package friend

import (
	"context"
	"fmt"
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
	rels map[string]Relationship
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rels: make(map[string]Relationship)}
}

func key(low, high string) string { return low + ":" + high }

func (f *fakeRepo) Insert(ctx context.Context, rel Relationship) error {
	k := key(rel.LowID, rel.HighID)
	if _, ok := f.rels[k]; ok {
		return ErrAlreadyExists
	}
	f.rels[k] = rel
	return nil
}

func (f *fakeRepo) Accept(ctx context.Context, low, high string, at time.Time) (Relationship, error) {
	rel, ok := f.rels[key(low, high)]
	if !ok || rel.Status != StatusPending {
		return Relationship{}, fmt.Errorf("friendship %s:%s: %w", low, high, shared.ErrNotFound)
	}
	rel.Status = StatusAccepted
	rel.AcceptedAt = &at
	f.rels[key(low, high)] = rel
	return rel, nil
}

func (f *fakeRepo) Delete(ctx context.Context, low, high string) error {
	delete(f.rels, key(low, high))
	return nil
}

func (f *fakeRepo) Find(ctx context.Context, low, high string) (Relationship, error) {
	rel, ok := f.rels[key(low, high)]
	if !ok {
		return Relationship{}, fmt.Errorf("friendship %s:%s: %w", low, high, shared.ErrNotFound)
	}
	return rel, nil
}

func (f *fakeRepo) ListByPlayer(ctx context.Context, playerID string) ([]Relationship, error) {
	var out []Relationship
	for _, rel := range f.rels {
		if rel.LowID == playerID || rel.HighID == playerID {
			out = append(out, rel)
		}
	}
	return out, nil
}

type fakeBus struct {
	seq       uint64
	published []events.Envelope
}

func (f *fakeBus) Publish(ctx context.Context, topic, entityID, eventType string, payload any) (events.Envelope, error) {
	f.seq++
	env := events.Envelope{Origin: "origin-test", Seq: f.seq, EntityID: entityID, Type: eventType}
	f.published = append(f.published, env)
	return env, nil
}

type fakeCache struct {
	applied []Event
}

func (f *fakeCache) ApplyFriend(origin string, seq uint64, ev Event) bool {
	f.applied = append(f.applied, ev)
	return true
}

func newTestService(repo RepositoryPort, bus EventPublisher, cache CachePort) *Service {
	return NewService(repo, bus, cache, slog.Default())
}

func TestRequestNormalizesPair(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeBus{}, &fakeCache{})

	rel, err := svc.Request(context.Background(), "zoe", "adam")
	require.NoError(t, err)
	assert.Equal(t, "adam", rel.LowID)
	assert.Equal(t, "zoe", rel.HighID)
	assert.Equal(t, "zoe", rel.RequestedBy)
	assert.Equal(t, StatusPending, rel.Status)
}

func TestRequestRejectsSelf(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeBus{}, &fakeCache{})

	_, err := svc.Request(context.Background(), "adam", "adam")
	assert.ErrorIs(t, err, ErrSelfRelation)
}

func TestRequestRejectsDuplicateEitherDirection(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeBus{}, &fakeCache{})

	_, err := svc.Request(context.Background(), "adam", "zoe")
	require.NoError(t, err)

	_, err = svc.Request(context.Background(), "zoe", "adam")
	assert.ErrorIs(t, err, ErrAlreadyExists, "the reverse direction is the same pair")
}

func TestAcceptByTarget(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeBus{}, &fakeCache{})

	_, err := svc.Request(context.Background(), "adam", "zoe")
	require.NoError(t, err)

	rel, err := svc.Accept(context.Background(), "zoe", "adam")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, rel.Status)
	assert.NotNil(t, rel.AcceptedAt)
}

func TestRequesterCannotAcceptOwnRequest(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeBus{}, &fakeCache{})

	_, err := svc.Request(context.Background(), "adam", "zoe")
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), "adam", "zoe")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestRemoveWorksForEitherMemberAndAnyStatus(t *testing.T) {
	repo := newFakeRepo()
	bus := &fakeBus{}
	svc := newTestService(repo, bus, &fakeCache{})

	// Decline: target removes a pending request.
	_, err := svc.Request(context.Background(), "adam", "zoe")
	require.NoError(t, err)
	require.NoError(t, svc.Remove(context.Background(), "zoe", "adam"))
	assert.Empty(t, repo.rels)

	// Unfriend: requester removes an accepted relationship.
	_, err = svc.Request(context.Background(), "adam", "zoe")
	require.NoError(t, err)
	_, err = svc.Accept(context.Background(), "zoe", "adam")
	require.NoError(t, err)
	require.NoError(t, svc.Remove(context.Background(), "adam", "zoe"))
	assert.Empty(t, repo.rels)
}

func TestRemoveUnknownPair(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeBus{}, &fakeCache{})

	err := svc.Remove(context.Background(), "adam", "zoe")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEventsUseStablePairKey(t *testing.T) {
	bus := &fakeBus{}
	svc := newTestService(newFakeRepo(), bus, &fakeCache{})

	_, err := svc.Request(context.Background(), "zoe", "adam")
	require.NoError(t, err)
	require.Len(t, bus.published, 1)
	assert.Equal(t, "adam:zoe", bus.published[0].EntityID)
}

func TestOtherAndPairKey(t *testing.T) {
	rel := Relationship{LowID: "adam", HighID: "zoe"}
	assert.Equal(t, "zoe", rel.Other("adam"))
	assert.Equal(t, "adam", rel.Other("zoe"))
	assert.Equal(t, "adam:zoe", rel.PairKey())
}
