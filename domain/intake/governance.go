package intake

import (
	"context"
	"time"

	"github.com/chainledger/musicgraph/infrastructure/eventstore"
	"github.com/chainledger/musicgraph/internal/apperr"
)

// recordGovernance implements the §4.9 supplement: vote/finalize anchored
// events are stored through the event store with a BlockchainVerified
// marker and the vote/finalize Prometheus counter incremented, but are
// never dispatched to the Projector/Claim Engine/Merge Engine. spec.md's
// Open Questions leave this "stored, not projected" — this is the
// observable trace of that path the distilled spec never wired up.
func (in *Intake) recordGovernance(ctx context.Context, ev AnchoredEvent, eventHash string) (Outcome, error) {
	if err := in.events.PutEvent(ctx, eventstore.Event{
		ContentHash:        ev.ContentHash,
		Payload:            ev.Payload,
		BlockNum:           ev.BlockNum,
		BlockID:            ev.BlockID,
		TrxID:              ev.TrxID,
		ActionOrdinal:      ev.ActionOrdinal,
		Timestamp:          time.Unix(ev.Timestamp, 0).UTC(),
		Source:             ev.Source,
		ContractAccount:    ev.ContractAccount,
		ActionName:         ev.ActionName,
		EventHash:          eventHash,
		BlockchainVerified: true,
		Status:             eventstore.StatusStored,
		ProcessedAt:        time.Now().UTC(),
	}); err != nil {
		return Outcome{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to store governance event", err)
	}

	in.dedup.Mark(ev.ContentHash)
	if in.metrics != nil {
		switch ev.ActionName {
		case actionNameVote:
			in.metrics.VoteEventsTotal.Inc()
		case actionNameFinalize:
			in.metrics.FinalizeEventsTotal.Inc()
		}
	}
	return Outcome{Status: StatusStored, EventHash: eventHash}, nil
}
