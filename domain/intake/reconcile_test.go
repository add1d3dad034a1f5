package intake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainledger/musicgraph/infrastructure/eventstore"
)

func TestSweepRetriesFailedEvents(t *testing.T) {
	in, events := newTestIntake()
	ctx := context.Background()

	// Seed a failed event directly into the store, as if an earlier
	// TransientGraphError had left it there (spec §4.10).
	require.NoError(t, events.PutEvent(ctx, eventstore.Event{
		ContentHash:     "hash-retry",
		Payload:         bundlePayload,
		BlockNum:        1,
		BlockID:         "block-1",
		TrxID:           "trx-1",
		ActionOrdinal:   0,
		Timestamp:       time.Unix(1700000000, 0).UTC(),
		Source:          "account.one",
		ContractAccount: "musicgraph.contract",
		ActionName:      actionNamePut,
		Status:          eventstore.StatusFailed,
		LastError:       "transient failure",
	}))

	r, err := NewReconciler(in, "@every 1h", 5*time.Second, time.Millisecond)
	require.NoError(t, err)

	n, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, found, err := events.GetEvent(ctx, "hash-retry")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, eventstore.StatusProcessed, stored.Status)
}

func TestSweepSkipsWhenNothingFailed(t *testing.T) {
	in, _ := newTestIntake()
	r, err := NewReconciler(in, "@every 1h", 5*time.Second, time.Millisecond)
	require.NoError(t, err)

	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
