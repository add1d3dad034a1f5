package intake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainledger/musicgraph/domain/role"
	"github.com/chainledger/musicgraph/infrastructure/eventstore"
	"github.com/chainledger/musicgraph/infrastructure/graphstore"
)

// memDedup is a minimal in-memory dedupCache for tests, avoiding a
// dependency on the LRU-backed production cache's eviction behavior.
type memDedup struct {
	seen map[string]bool
}

func newMemDedup() *memDedup { return &memDedup{seen: map[string]bool{}} }

func (d *memDedup) Seen(hash string) bool { return d.seen[hash] }
func (d *memDedup) Mark(hash string)      { d.seen[hash] = true }

func newTestIntake() (*Intake, eventstore.Store) {
	store := graphstore.NewFake()
	events := eventstore.NewFake()
	in := New(store, events, newMemDedup(), role.DefaultTable, nil)
	return in, events
}

const bundlePayload = `{
	"type": "CREATE_RELEASE_BUNDLE",
	"release": {"release_name": "The Beatles", "releaseDate": "1968-11-22", "albumArt": "u"},
	"tracks": [{"title": "Back in the U.S.S.R.", "duration": 164}],
	"tracklist": [{"position": "A1", "track_title": "Back in the U.S.S.R."}]
}`

func testEvent(contentHash, payload string) AnchoredEvent {
	return AnchoredEvent{
		ContentHash:     contentHash,
		Payload:         payload,
		BlockNum:        1,
		BlockID:         "block-1",
		TrxID:           "trx-1",
		ActionOrdinal:   0,
		Timestamp:       1700000000,
		Source:          "account.one",
		ContractAccount: "musicgraph.contract",
		ActionName:      actionNamePut,
	}
}

func TestHandleCreateReleaseBundle(t *testing.T) {
	in, events := newTestIntake()
	ctx := context.Background()

	out, err := in.Handle(ctx, testEvent("hash-1", bundlePayload))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, out.Status)
	assert.NotEmpty(t, out.ReleaseID)

	stored, found, err := events.GetEvent(ctx, "hash-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, eventstore.StatusProcessed, stored.Status)
	assert.True(t, stored.BlockchainVerified)
}

// Universal invariant (spec §8): intake(intake(E)) == intake(E), and the
// second call returns duplicate.
func TestHandleIsIdempotent(t *testing.T) {
	in, _ := newTestIntake()
	ctx := context.Background()
	ev := testEvent("hash-dup", bundlePayload)

	first, err := in.Handle(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, first.Status)

	second, err := in.Handle(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, second.Status)
}

func TestHandleUnknownActionNameFails(t *testing.T) {
	in, events := newTestIntake()
	ctx := context.Background()
	ev := testEvent("hash-bad-action", bundlePayload)
	ev.ActionName = "burn"

	_, err := in.Handle(ctx, ev)
	require.Error(t, err)

	stored, found, err := events.GetEvent(ctx, "hash-bad-action")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, eventstore.StatusFailed, stored.Status)
	assert.NotEmpty(t, stored.LastError)
}

func TestComputeEventHashDeterministic(t *testing.T) {
	ev := testEvent("hash-2", bundlePayload)
	h1, err := ComputeEventHash(ev)
	require.NoError(t, err)
	h2, err := ComputeEventHash(ev)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestComputeEventHashIgnoresSignature(t *testing.T) {
	withoutSig := testEvent("hash-3", bundlePayload)
	withSig := testEvent("hash-3", `{
		"type": "CREATE_RELEASE_BUNDLE",
		"release": {"release_name": "The Beatles", "releaseDate": "1968-11-22", "albumArt": "u"},
		"tracks": [{"title": "Back in the U.S.S.R.", "duration": 164}],
		"tracklist": [{"position": "A1", "track_title": "Back in the U.S.S.R."}],
		"signature": "deadbeef"
	}`)

	h1, err := ComputeEventHash(withoutSig)
	require.NoError(t, err)
	h2, err := ComputeEventHash(withSig)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHandleDispatchesAddClaim(t *testing.T) {
	in, _ := newTestIntake()
	ctx := context.Background()

	bundleOut, err := in.Handle(ctx, testEvent("hash-bundle", bundlePayload))
	require.NoError(t, err)
	require.Equal(t, StatusOK, bundleOut.Status)

	addPayload := `{"type": "ADD_CLAIM", "target": {"kind": "release", "id": "` + bundleOut.ReleaseID + `"}, "field": "promo_note", "value": "A"}`
	addOut, err := in.Handle(ctx, testEvent("hash-add", addPayload))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, addOut.Status)
}
