package graphstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainledger/musicgraph/domain/graph"
)

func TestFakeUpsertAndGet(t *testing.T) {
	store := NewFake()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.Upsert(ctx, graph.Node{Kind: graph.KindPerson, ID: "p1", Status: graph.StatusActive, Props: map[string]any{"name": "Jane"}}))
	require.NoError(t, tx.Commit(ctx))

	tx2, err := store.Begin(ctx)
	require.NoError(t, err)
	n, ok, err := tx2.Get(ctx, graph.KindPerson, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Jane", n.Props["name"])
}

func TestFakeRollbackDiscardsChanges(t *testing.T) {
	store := NewFake()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Upsert(ctx, graph.Node{Kind: graph.KindPerson, ID: "p1"}))
	require.NoError(t, tx.Rollback(ctx))

	assert.Empty(t, store.Nodes())
}

func TestFakeIdentityMapNeverRewritten(t *testing.T) {
	store := NewFake()
	ctx := context.Background()
	tx, _ := store.Begin(ctx)
	require.NoError(t, tx.RecordIdentity(ctx, "discogs", graph.KindPerson, "42", "prov:person:aaaa"))
	require.NoError(t, tx.RecordIdentity(ctx, "discogs", graph.KindPerson, "42", "prov:person:bbbb"))
	id, ok, err := tx.ResolveIdentity(ctx, "discogs", graph.KindPerson, "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "prov:person:aaaa", id)
}

func TestFakeResolveTombstoneChain(t *testing.T) {
	store := NewFake()
	ctx := context.Background()
	tx, _ := store.Begin(ctx)
	require.NoError(t, tx.Upsert(ctx, graph.Node{Kind: graph.KindGroup, ID: "a", Status: graph.StatusActive}))
	require.NoError(t, tx.Upsert(ctx, graph.Node{Kind: graph.KindGroup, ID: "b", Status: graph.StatusActive}))
	require.NoError(t, tx.Upsert(ctx, graph.Node{Kind: graph.KindGroup, ID: "c", Status: graph.StatusActive}))
	require.NoError(t, tx.Commit(ctx))

	tx2, _ := store.Begin(ctx)
	_, err := tx2.MergeEntity(ctx, "b", "a", graph.KindGroup, "hash1", time.Now())
	require.NoError(t, err)
	require.NoError(t, tx2.Commit(ctx))

	tx3, _ := store.Begin(ctx)
	_, err = tx3.MergeEntity(ctx, "c", "b", graph.KindGroup, "hash2", time.Now())
	require.NoError(t, err)
	require.NoError(t, tx3.Commit(ctx))

	tx4, _ := store.Begin(ctx)
	resolved, err := tx4.ResolveTombstone(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "c", resolved)
}

func TestFakeMergeRewiresEdges(t *testing.T) {
	store := NewFake()
	ctx := context.Background()
	tx, _ := store.Begin(ctx)
	require.NoError(t, tx.Upsert(ctx, graph.Node{Kind: graph.KindGroup, ID: "g1", Status: graph.StatusActive}))
	require.NoError(t, tx.Upsert(ctx, graph.Node{Kind: graph.KindGroup, ID: "g2", Status: graph.StatusActive}))
	require.NoError(t, tx.Upsert(ctx, graph.Node{Kind: graph.KindTrack, ID: "t1", Status: graph.StatusActive}))
	require.NoError(t, tx.Relate(ctx, graph.Edge{Kind: graph.EdgePerformedOn, From: "g1", To: "t1"}))
	require.NoError(t, tx.Commit(ctx))

	tx2, _ := store.Begin(ctx)
	_, err := tx2.MergeEntity(ctx, "g2", "g1", graph.KindGroup, "hash1", time.Now())
	require.NoError(t, err)
	require.NoError(t, tx2.Commit(ctx))

	found := false
	for _, e := range store.Edges() {
		if e.Kind == graph.EdgePerformedOn && e.From == "g2" && e.To == "t1" {
			found = true
		}
	}
	assert.True(t, found, "PERFORMED_ON edge should be rewired to survivor")
}
