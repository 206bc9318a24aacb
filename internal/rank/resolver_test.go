package rank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	rankID    string
	overrides map[string]bool
	calls     int
}

func (f *fakeSource) RankID(ctx context.Context, playerID string) (string, error) {
	f.calls++
	return f.rankID, nil
}

func (f *fakeSource) Overrides(ctx context.Context, playerID string) (map[string]bool, error) {
	return f.overrides, nil
}

func ptr(s string) *string { return &s }

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := NewCatalog([]Rank{
		{ID: "default", Permissions: []string{"chat.global", "party.create"}},
		{ID: "vip", ParentID: ptr("default"), Permissions: []string{"chat.color"}},
		{ID: "mod", ParentID: ptr("vip"), Permissions: []string{"punish.mute", "-chat.color"}},
		{ID: "admin", ParentID: ptr("mod"), Permissions: []string{"punish.ban", "chat.color"}},
	})
	require.NoError(t, err)
	return catalog
}

func TestResolveUnionsParentChain(t *testing.T) {
	resolver := NewResolver(testCatalog(t), &fakeSource{rankID: "vip"})

	set, err := resolver.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, set.Has("chat.global"), "inherited from default")
	assert.True(t, set.Has("chat.color"))
	assert.False(t, set.Has("punish.mute"))
}

func TestResolveChildRevokeBeatsParentGrant(t *testing.T) {
	resolver := NewResolver(testCatalog(t), &fakeSource{rankID: "mod"})

	set, err := resolver.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, set.Has("punish.mute"))
	assert.False(t, set.Has("chat.color"), "mod revokes the vip grant")
}

func TestResolveDeeperGrantRestoresRevokedNode(t *testing.T) {
	resolver := NewResolver(testCatalog(t), &fakeSource{rankID: "admin"})

	set, err := resolver.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, set.Has("chat.color"), "admin re-grants below mod's revoke")
	assert.True(t, set.Has("punish.ban"))
}

func TestResolveOverridesWinLast(t *testing.T) {
	source := &fakeSource{rankID: "mod", overrides: map[string]bool{
		"chat.color":  true,
		"punish.mute": false,
	}}
	resolver := NewResolver(testCatalog(t), source)

	set, err := resolver.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, set.Has("chat.color"), "explicit grant beats the chain revoke")
	assert.False(t, set.Has("punish.mute"), "explicit revoke beats the chain grant")
}

func TestResolveUnknownRankYieldsOverridesOnly(t *testing.T) {
	source := &fakeSource{rankID: "ghost", overrides: map[string]bool{"special.node": true}}
	resolver := NewResolver(testCatalog(t), source)

	set, err := resolver.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, set.Has("chat.global"))
	assert.True(t, set.Has("special.node"))
}

func TestResolveMemoizesUntilInvalidated(t *testing.T) {
	source := &fakeSource{rankID: "vip"}
	resolver := NewResolver(testCatalog(t), source)

	_, err := resolver.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)

	resolver.Invalidate("p1")
	_, err = resolver.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestCatalogRejectsCycle(t *testing.T) {
	_, err := NewCatalog([]Rank{
		{ID: "a", ParentID: ptr("b")},
		{ID: "b", ParentID: ptr("a")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestCatalogRejectsUnknownParent(t *testing.T) {
	_, err := NewCatalog([]Rank{{ID: "a", ParentID: ptr("missing")}})
	require.Error(t, err)
}

func TestCatalogRejectsDuplicateIDs(t *testing.T) {
	_, err := NewCatalog([]Rank{{ID: "a"}, {ID: "a"}})
	require.Error(t, err)
}

func TestCatalogChainOrder(t *testing.T) {
	catalog := testCatalog(t)
	chain := catalog.Chain("admin")
	require.Len(t, chain, 4)
	assert.Equal(t, "default", chain[0].ID)
	assert.Equal(t, "admin", chain[3].ID)
}

func TestReplaceKeepsOldCatalogOnError(t *testing.T) {
	catalog := testCatalog(t)
	err := catalog.Replace([]Rank{{ID: "x", ParentID: ptr("missing")}})
	require.Error(t, err)
	assert.Equal(t, 4, catalog.Len(), "a rejected catalog leaves the old one in place")
}
