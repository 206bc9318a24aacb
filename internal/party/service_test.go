package party

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
	parties map[string]Party
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{parties: make(map[string]Party)}
}

func (f *fakeRepo) Insert(ctx context.Context, p Party) error {
	f.parties[p.ID] = p
	return nil
}

func (f *fakeRepo) Find(ctx context.Context, id string) (Party, error) {
	p, ok := f.parties[id]
	if !ok {
		return Party{}, fmt.Errorf("party %s: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (f *fakeRepo) FindByMember(ctx context.Context, playerID string) (Party, error) {
	for _, p := range f.parties {
		if p.DisbandedAt == nil && p.HasMember(playerID) {
			return p, nil
		}
	}
	return Party{}, fmt.Errorf("party of %s: %w", playerID, shared.ErrNotFound)
}

func (f *fakeRepo) AddMember(ctx context.Context, partyID, playerID string, at time.Time) error {
	p := f.parties[partyID]
	p.Members = append(p.Members, Member{PlayerID: playerID, JoinedAt: at})
	f.parties[partyID] = p
	return nil
}

func (f *fakeRepo) RemoveMember(ctx context.Context, partyID, playerID string) error {
	p := f.parties[partyID]
	members := make([]Member, 0, len(p.Members))
	for _, m := range p.Members {
		if m.PlayerID != playerID {
			members = append(members, m)
		}
	}
	p.Members = members
	f.parties[partyID] = p
	return nil
}

func (f *fakeRepo) SetLeader(ctx context.Context, partyID, leaderID string) error {
	p := f.parties[partyID]
	p.LeaderID = leaderID
	f.parties[partyID] = p
	return nil
}

func (f *fakeRepo) Disband(ctx context.Context, partyID string, at time.Time) error {
	p := f.parties[partyID]
	p.DisbandedAt = &at
	p.Members = nil
	f.parties[partyID] = p
	return nil
}

type fakeBus struct {
	seq       uint64
	published []events.Envelope
	payloads  []Event
}

func (f *fakeBus) Publish(ctx context.Context, topic, entityID, eventType string, payload any) (events.Envelope, error) {
	f.seq++
	env := events.Envelope{Origin: "origin-test", Seq: f.seq, EntityID: entityID, Type: eventType}
	f.published = append(f.published, env)
	if ev, ok := payload.(Event); ok {
		f.payloads = append(f.payloads, ev)
	}
	return env, nil
}

type fakeCache struct {
	applied []Event
}

func (f *fakeCache) ApplyParty(origin string, seq uint64, ev Event) bool {
	f.applied = append(f.applied, ev)
	return true
}

func newTestService(repo RepositoryPort, bus EventPublisher, cache CachePort) *Service {
	return NewService(repo, bus, cache, slog.Default())
}

// buildParty creates a party and joins the extra members in order.
func buildParty(t *testing.T, svc *Service, leader string, members ...string) Party {
	t.Helper()
	pty, err := svc.Create(context.Background(), leader)
	require.NoError(t, err)
	for _, m := range members {
		pty, err = svc.Join(context.Background(), pty.ID, m)
		require.NoError(t, err)
	}
	return pty
}

func TestCreateMakesLeaderTheFirstMember(t *testing.T) {
	bus := &fakeBus{}
	svc := newTestService(newFakeRepo(), bus, &fakeCache{})

	pty, err := svc.Create(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", pty.LeaderID)
	require.Len(t, pty.Members, 1)
	require.Len(t, bus.published, 1)
	assert.Equal(t, events.TypePartyUpdated, bus.published[0].Type)
}

func TestCreateRejectsSecondParty(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeBus{}, &fakeCache{})

	_, err := svc.Create(context.Background(), "alice")
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrAlreadyInParty)
}

func TestJoinIsIdempotent(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeBus{}, &fakeCache{})
	pty := buildParty(t, svc, "alice", "bob")

	again, err := svc.Join(context.Background(), pty.ID, "bob")
	require.NoError(t, err)
	assert.Len(t, again.Members, 2, "re-joining the same party adds nothing")
}

func TestJoinRejectsMemberOfAnotherParty(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeBus{}, &fakeCache{})
	buildParty(t, svc, "alice")
	other := buildParty(t, svc, "carol")

	_, err := svc.Join(context.Background(), other.ID, "alice")
	assert.ErrorIs(t, err, ErrAlreadyInParty)
}

func TestLeaderLeavePromotesEarliestJoined(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeBus{}, &fakeCache{})
	pty := buildParty(t, svc, "alice", "bob", "carol")

	require.NoError(t, svc.Leave(context.Background(), "alice"))

	got, err := svc.Get(context.Background(), pty.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.LeaderID, "bob joined before carol")
	assert.Len(t, got.Members, 2)
}

func TestNonLeaderLeaveKeepsLeader(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeBus{}, &fakeCache{})
	pty := buildParty(t, svc, "alice", "bob", "carol")

	require.NoError(t, svc.Leave(context.Background(), "bob"))

	got, err := svc.Get(context.Background(), pty.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.LeaderID)
}

func TestLastMemberOutDisbands(t *testing.T) {
	bus := &fakeBus{}
	svc := newTestService(newFakeRepo(), bus, &fakeCache{})
	pty := buildParty(t, svc, "alice")

	require.NoError(t, svc.Leave(context.Background(), "alice"))

	got, err := svc.Get(context.Background(), pty.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.DisbandedAt)
	assert.Empty(t, got.Members)
	last := bus.published[len(bus.published)-1]
	assert.Equal(t, events.TypePartyDisbanded, last.Type)
}

func TestDisbandRequiresLeader(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeBus{}, &fakeCache{})
	pty := buildParty(t, svc, "alice", "bob")

	err := svc.Disband(context.Background(), pty.ID, "bob")
	assert.ErrorIs(t, err, ErrNotLeader)

	require.NoError(t, svc.Disband(context.Background(), pty.ID, "alice"))
	got, err := svc.Get(context.Background(), pty.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.DisbandedAt, "the record survives disband for later inspection")
}

func TestDisbandEventNamesRemovedMembers(t *testing.T) {
	bus := &fakeBus{}
	svc := newTestService(newFakeRepo(), bus, &fakeCache{})
	pty := buildParty(t, svc, "alice", "bob")

	require.NoError(t, svc.Disband(context.Background(), pty.ID, "alice"))

	last := bus.payloads[len(bus.payloads)-1]
	assert.ElementsMatch(t, []string{"alice", "bob"}, last.Removed)
}

func TestTransferToNonMemberFails(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeBus{}, &fakeCache{})
	pty := buildParty(t, svc, "alice", "bob")

	_, err := svc.Transfer(context.Background(), pty.ID, "alice", "mallory")
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = svc.Transfer(context.Background(), pty.ID, "bob", "alice")
	assert.ErrorIs(t, err, ErrNotLeader)

	got, err := svc.Transfer(context.Background(), pty.ID, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.LeaderID)
}

func TestEveryMutationAppliesLocally(t *testing.T) {
	cache := &fakeCache{}
	svc := newTestService(newFakeRepo(), &fakeBus{}, cache)
	pty := buildParty(t, svc, "alice", "bob")

	require.NoError(t, svc.Leave(context.Background(), "bob"))
	require.NoError(t, svc.Disband(context.Background(), pty.ID, "alice"))

	// create + join + leave + disband
	assert.Len(t, cache.applied, 4)
}

func TestSuccessorOrder(t *testing.T) {
	now := time.Now()
	pty := Party{
		LeaderID: "alice",
		Members: []Member{
			{PlayerID: "alice", JoinedAt: now},
			{PlayerID: "bob", JoinedAt: now.Add(time.Second)},
			{PlayerID: "carol", JoinedAt: now.Add(2 * time.Second)},
		},
	}
	successor, ok := pty.Successor()
	require.True(t, ok)
	assert.Equal(t, "bob", successor)

	solo := Party{LeaderID: "alice", Members: []Member{{PlayerID: "alice"}}}
	_, ok = solo.Successor()
	assert.False(t, ok)
}
