// Package merge implements the Merge Engine (spec §4.7): folding one or
// more absorbed entities into a survivor, with cycle detection and
// tombstoning instead of deletion.
package merge

import (
	"context"
	"time"

	"github.com/chainledger/musicgraph/domain/graph"
	"github.com/chainledger/musicgraph/infrastructure/graphstore"
	"github.com/chainledger/musicgraph/internal/apperr"
)

// Input is the payload for mergeEntities (spec §4.7).
type Input struct {
	SurvivorID  string
	AbsorbedIDs []string
	Kind        graph.Kind
}

// Engine applies merges within a caller-owned graphstore.Tx.
type Engine struct{}

// New builds an Engine.
func New() *Engine { return &Engine{} }

// MergeEntities implements mergeEntities(survivorId, absorbedIds[], options)
// (spec §4.7). Every absorbed id is validated for self-merge and cycles
// before any write happens, so a rejected merge leaves no partial state.
func (e *Engine) MergeEntities(ctx context.Context, tx graphstore.Tx, eventHash string, in Input) ([]graphstore.MergeRecord, error) {
	if !graph.IsMergeable(in.Kind) {
		return nil, apperr.New(apperr.CodeUnknownKind, "unknown merge target kind: "+string(in.Kind))
	}
	if len(in.AbsorbedIDs) == 0 {
		return nil, apperr.New(apperr.CodeSelfMerge, "no absorbed ids supplied")
	}

	for _, absorbedID := range in.AbsorbedIDs {
		if absorbedID == in.SurvivorID {
			return nil, apperr.New(apperr.CodeSelfMerge, "cannot merge an entity into itself: "+absorbedID)
		}
		if err := checkCycle(ctx, tx, in.SurvivorID, absorbedID); err != nil {
			return nil, err
		}
	}

	at := time.Now().UTC()
	records := make([]graphstore.MergeRecord, 0, len(in.AbsorbedIDs))
	for _, absorbedID := range in.AbsorbedIDs {
		rec, err := tx.MergeEntity(ctx, in.SurvivorID, absorbedID, in.Kind, eventHash, at)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeTransientGraph, "failed to merge entity "+absorbedID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// checkCycle implements spec §4.7's cycle check — "direct A↔B and
// transitive A→B→C→A cycles, both detectable by following merged_into
// chains before committing" — reduced to two ResolveTombstone calls:
//
//  1. if absorbedID is already a tombstone whose chain reaches survivorID,
//     this merge would be a no-op re-absorption of an already-subsumed
//     entity into itself through the chain — reject as a cycle.
//  2. if survivorID is itself a tombstone whose chain reaches absorbedID,
//     committing this merge would close a loop (absorbed -> ... ->
//     survivor -> ... -> absorbed) — reject as a cycle.
func checkCycle(ctx context.Context, tx graphstore.Tx, survivorID, absorbedID string) error {
	resolvedAbsorbed, err := tx.ResolveTombstone(ctx, absorbedID)
	if err != nil {
		return apperr.Wrap(apperr.CodeTransientGraph, "failed to resolve tombstone chain", err)
	}
	if resolvedAbsorbed == survivorID {
		return apperr.New(apperr.CodeCycle, "merge would create a cycle: "+absorbedID+" already resolves to "+survivorID)
	}

	resolvedSurvivor, err := tx.ResolveTombstone(ctx, survivorID)
	if err != nil {
		return apperr.Wrap(apperr.CodeTransientGraph, "failed to resolve tombstone chain", err)
	}
	if resolvedSurvivor == absorbedID {
		return apperr.New(apperr.CodeCycle, "merge would create a cycle: "+survivorID+" already resolves to "+absorbedID)
	}
	return nil
}
