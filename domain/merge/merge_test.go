package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainledger/musicgraph/domain/graph"
	"github.com/chainledger/musicgraph/infrastructure/graphstore"
)

func seedGroups(t *testing.T, store *graphstore.Fake, ids ...string) {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, tx.Upsert(ctx, graph.Node{Kind: graph.KindGroup, ID: id, Status: graph.StatusActive}))
	}
	require.NoError(t, tx.Commit(ctx))
}

func TestMergeRejectsSelfMerge(t *testing.T) {
	store := graphstore.NewFake()
	seedGroups(t, store, "a")
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	e := New()
	_, err = e.MergeEntities(ctx, tx, "event-1", Input{SurvivorID: "a", AbsorbedIDs: []string{"a"}, Kind: graph.KindGroup})
	require.Error(t, err)
}

func TestMergeRejectsDirectCycle(t *testing.T) {
	store := graphstore.NewFake()
	seedGroups(t, store, "a", "b")
	ctx := context.Background()

	tx1, err := store.Begin(ctx)
	require.NoError(t, err)
	e := New()
	_, err = e.MergeEntities(ctx, tx1, "event-1", Input{SurvivorID: "b", AbsorbedIDs: []string{"a"}, Kind: graph.KindGroup})
	require.NoError(t, err)
	require.NoError(t, tx1.Commit(ctx))

	tx2, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = e.MergeEntities(ctx, tx2, "event-2", Input{SurvivorID: "a", AbsorbedIDs: []string{"b"}, Kind: graph.KindGroup})
	require.Error(t, err, "merging B into A after A was merged into B must be rejected as a cycle")
}

func TestMergeRejectsThreeCycle(t *testing.T) {
	store := graphstore.NewFake()
	seedGroups(t, store, "a", "b", "c")
	ctx := context.Background()
	e := New()

	tx1, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = e.MergeEntities(ctx, tx1, "event-1", Input{SurvivorID: "b", AbsorbedIDs: []string{"a"}, Kind: graph.KindGroup})
	require.NoError(t, err)
	require.NoError(t, tx1.Commit(ctx))

	tx2, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = e.MergeEntities(ctx, tx2, "event-2", Input{SurvivorID: "c", AbsorbedIDs: []string{"b"}, Kind: graph.KindGroup})
	require.NoError(t, err)
	require.NoError(t, tx2.Commit(ctx))

	tx3, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = e.MergeEntities(ctx, tx3, "event-3", Input{SurvivorID: "a", AbsorbedIDs: []string{"c"}, Kind: graph.KindGroup})
	require.Error(t, err, "closing the A->B->C->A loop must be rejected as a cycle")
}

func TestMergeRewiresEdgesAndTombstones(t *testing.T) {
	store := graphstore.NewFake()
	ctx := context.Background()
	tx0, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx0.Upsert(ctx, graph.Node{Kind: graph.KindGroup, ID: "g1", Status: graph.StatusActive}))
	require.NoError(t, tx0.Upsert(ctx, graph.Node{Kind: graph.KindGroup, ID: "g2", Status: graph.StatusActive}))
	require.NoError(t, tx0.Upsert(ctx, graph.Node{Kind: graph.KindTrack, ID: "t1", Status: graph.StatusActive}))
	require.NoError(t, tx0.Relate(ctx, graph.Edge{Kind: graph.EdgePerformedOn, From: "g1", To: "t1"}))
	require.NoError(t, tx0.Commit(ctx))

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	e := New()
	recs, err := e.MergeEntities(ctx, tx, "event-1", Input{SurvivorID: "g2", AbsorbedIDs: []string{"g1"}, Kind: graph.KindGroup})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NoError(t, tx.Commit(ctx))

	node, ok := store.NodeByID("g1")
	require.True(t, ok)
	assert.Equal(t, graph.StatusMerged, node.Status)
	assert.Equal(t, "g2", node.MergedInto)

	var rewired bool
	for _, ed := range store.Edges() {
		if ed.Kind == graph.EdgePerformedOn && ed.From == "g2" && ed.To == "t1" {
			rewired = true
		}
	}
	assert.True(t, rewired)
}

func TestMergeRejectsUnknownKind(t *testing.T) {
	store := graphstore.NewFake()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	e := New()
	_, err = e.MergeEntities(ctx, tx, "event-1", Input{SurvivorID: "a", AbsorbedIDs: []string{"b"}, Kind: graph.Kind("account")})
	require.Error(t, err)
}
