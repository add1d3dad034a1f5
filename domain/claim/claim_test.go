package claim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainledger/musicgraph/domain/graph"
	"github.com/chainledger/musicgraph/infrastructure/graphstore"
)

func setupPerson(t *testing.T, store *graphstore.Fake, id string) {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Upsert(ctx, graph.Node{Kind: graph.KindPerson, ID: id, Status: graph.StatusActive, Props: map[string]any{"name": "Someone"}}))
	require.NoError(t, tx.Commit(ctx))
}

// TestAddClaimRejectsProtectedField implements spec §8 scenario 4.
func TestAddClaimRejectsProtectedField(t *testing.T) {
	store := graphstore.NewFake()
	setupPerson(t, store, "prov:person:p1")
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	e := New()
	_, err = e.AddClaim(ctx, tx, "event-1", AddInput{
		Target: Target{Kind: graph.KindPerson, ID: "prov:person:p1"},
		Field:  "  id  ",
		Value:  "x",
		Author: "alice",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protected")
}

func TestAddClaimRejectsUnknownKind(t *testing.T) {
	store := graphstore.NewFake()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	e := New()
	_, err = e.AddClaim(ctx, tx, "event-1", AddInput{
		Target: Target{Kind: graph.Kind("account"), ID: "acct:1"},
		Field:  "bio",
		Value:  "x",
	})
	require.Error(t, err)
}

func TestAddClaimRejectsUnsafeFieldName(t *testing.T) {
	store := graphstore.NewFake()
	setupPerson(t, store, "prov:person:p1")
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	e := New()
	_, err = e.AddClaim(ctx, tx, "event-1", AddInput{
		Target: Target{Kind: graph.KindPerson, ID: "prov:person:p1"},
		Field:  "bio; DROP",
		Value:  "x",
	})
	require.Error(t, err)
}

// TestEditSupersession implements spec §8 scenario 5: ADD_CLAIM bio="A",
// then EDIT_CLAIM value="B" produces a supersession chain of length 1 with
// the target's bio updated to "B" and the old claim pointing at the new one.
func TestEditSupersession(t *testing.T) {
	store := graphstore.NewFake()
	setupPerson(t, store, "prov:person:p1")
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	e := New()
	c1, err := e.AddClaim(ctx, tx, "event-1", AddInput{
		Target: Target{Kind: graph.KindPerson, ID: "prov:person:p1"},
		Field:  "bio", Value: "A", Author: "alice",
	})
	require.NoError(t, err)

	c2, err := e.EditClaim(ctx, tx, "event-2", EditInput{ClaimID: c1, Value: "B", Author: "alice"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx2, err := store.Begin(ctx)
	require.NoError(t, err)

	node, ok, err := tx2.Get(ctx, graph.KindPerson, "prov:person:p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B", node.Props["bio"])

	oldClaim, ok, err := tx2.GetClaim(ctx, c1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c2, oldClaim.SupersededBy)

	newClaim, ok, err := tx2.GetClaim(ctx, c2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, newClaim.SupersededBy, "only the terminal claim has no outgoing SUPERSEDES")
}

// TestEditClaimReplayIsIdempotent: same new id, same supersession edge
// count, per spec §4.6 "Replay is idempotent".
func TestEditClaimReplayIsIdempotent(t *testing.T) {
	store := graphstore.NewFake()
	setupPerson(t, store, "prov:person:p1")
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	e := New()
	c1, err := e.AddClaim(ctx, tx, "event-1", AddInput{
		Target: Target{Kind: graph.KindPerson, ID: "prov:person:p1"},
		Field:  "bio", Value: "A",
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx2, err := store.Begin(ctx)
	require.NoError(t, err)
	c2First, err := e.EditClaim(ctx, tx2, "event-2", EditInput{ClaimID: c1, Value: "B"})
	require.NoError(t, err)
	require.NoError(t, tx2.Commit(ctx))

	edgesAfterFirst := len(store.Edges())

	tx3, err := store.Begin(ctx)
	require.NoError(t, err)
	c2Second, err := e.EditClaim(ctx, tx3, "event-2", EditInput{ClaimID: c1, Value: "B"})
	require.NoError(t, err)
	require.NoError(t, tx3.Commit(ctx))

	assert.Equal(t, c2First, c2Second)
	assert.Equal(t, edgesAfterFirst, len(store.Edges()))
}

func TestAddClaimWritesSourcedFrom(t *testing.T) {
	store := graphstore.NewFake()
	setupPerson(t, store, "prov:person:p1")
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	e := New()
	claimID, err := e.AddClaim(ctx, tx, "event-1", AddInput{
		Target: Target{Kind: graph.KindPerson, ID: "prov:person:p1"},
		Field:  "bio", Value: "A", Source: "src:discogs:1",
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	var sawSourcedFrom bool
	for _, ed := range store.Edges() {
		if ed.Kind == graph.EdgeSourcedFrom && ed.From == claimID && ed.To == "src:discogs:1" {
			sawSourcedFrom = true
		}
	}
	assert.True(t, sawSourcedFrom)
}
