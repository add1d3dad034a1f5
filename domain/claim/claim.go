// Package claim implements the Claim Engine (spec §4.6): immutable,
// audit-trailed field assertions against whitelisted entity kinds, with a
// supersession chain for edits.
package claim

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/chainledger/musicgraph/domain/graph"
	"github.com/chainledger/musicgraph/infrastructure/graphstore"
	"github.com/chainledger/musicgraph/internal/apperr"
)

// protectedFields is the whitelist of target-node fields no claim may ever
// touch (spec §4.6): identity, audit, and merge bookkeeping columns.
var protectedFields = map[string]bool{
	"id": true, "claim_id": true, "source_id": true,
	"created_at": true, "created_by": true, "creation_source": true,
	"event_hash": true, "updated_at": true, "updated_by": true,
	"last_updated": true, "last_updated_by": true, "last_seen_at": true,
	"status": true, "blockchain_verified": true,
	"_just_created": true, "_merged_into": true,
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// isProtected reports whether field (after trimming) may never be claimed,
// including every kind's own `<kind>_id` column.
func isProtected(field string) bool {
	trimmed := strings.TrimSpace(field)
	if protectedFields[trimmed] {
		return true
	}
	for _, k := range graph.MergeableKinds {
		if trimmed == k.IDField() {
			return true
		}
	}
	return false
}

// Target names the node an ADD_CLAIM/EDIT_CLAIM writes to.
type Target struct {
	Kind graph.Kind
	ID   string
}

// AddInput is the payload for ADD_CLAIM.
type AddInput struct {
	Target Target
	Field  string
	Value  any
	Source string // optional Source id, becomes a SOURCED_FROM edge
	Author string
}

// EditInput is the payload for EDIT_CLAIM.
type EditInput struct {
	ClaimID string
	Value   any
	Source  string
	Author  string
}

// Engine applies ADD_CLAIM/EDIT_CLAIM operations within a caller-owned
// graphstore.Tx.
type Engine struct{}

// New builds an Engine. It holds no state: every call takes its own tx and
// eventHash, matching the teacher's stateless service-method convention.
func New() *Engine { return &Engine{} }

// AddClaim implements ADD_CLAIM(eventHash, input) (spec §4.6).
func (e *Engine) AddClaim(ctx context.Context, tx graphstore.Tx, eventHash string, in AddInput) (string, error) {
	if !graph.IsMergeable(in.Target.Kind) {
		return "", apperr.New(apperr.CodeUnknownKind, "unknown claim target kind: "+string(in.Target.Kind))
	}
	field := strings.TrimSpace(in.Field)
	if isProtected(field) {
		return "", apperr.New(apperr.CodeProtectedField, "Invalid claim field: '"+in.Field+"' is protected")
	}
	if !fieldNamePattern.MatchString(field) {
		return "", apperr.New(apperr.CodeUnsafeFieldName, "invalid claim field name: "+in.Field)
	}

	claimID := claimID0(eventHash)
	value := graph.NewValue(in.Value)
	now := time.Now().UTC()

	if err := tx.PutClaim(ctx, graphstore.Claim{
		ClaimID: claimID, NodeKind: in.Target.Kind, NodeID: in.Target.ID, Field: field,
		Value: value, Author: in.Author, EventHash: eventHash, SourceID: in.Source, CreatedAt: now,
	}); err != nil {
		return "", apperr.Wrap(apperr.CodeTransientGraph, "failed to write claim", err)
	}
	if err := tx.Relate(ctx, graph.Edge{Kind: graph.EdgeClaimsAbout, From: claimID, To: in.Target.ID}); err != nil {
		return "", apperr.Wrap(apperr.CodeTransientGraph, "failed to link claim", err)
	}
	if in.Source != "" {
		if err := tx.Relate(ctx, graph.Edge{Kind: graph.EdgeSourcedFrom, From: claimID, To: in.Source}); err != nil {
			return "", apperr.Wrap(apperr.CodeTransientGraph, "failed to link claim source", err)
		}
	}
	if err := applyFieldUpdate(ctx, tx, in.Target.Kind, in.Target.ID, field, value); err != nil {
		return "", err
	}
	return claimID, nil
}

// EditClaim implements EDIT_CLAIM(eventHash, input) (spec §4.6): loads the
// old claim to recover kind/id/field, re-checks field safety, mints a new
// claim deterministically from eventHash, and supersedes the old one.
func (e *Engine) EditClaim(ctx context.Context, tx graphstore.Tx, eventHash string, in EditInput) (string, error) {
	old, found, err := tx.GetClaim(ctx, in.ClaimID)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeTransientGraph, "failed to load claim", err)
	}
	if !found {
		return "", apperr.New(apperr.CodeClaimNotFound, "claim not found: "+in.ClaimID)
	}
	if !graph.IsMergeable(old.NodeKind) {
		return "", apperr.New(apperr.CodeUnknownKind, "unknown claim target kind: "+string(old.NodeKind))
	}
	if isProtected(old.Field) {
		return "", apperr.New(apperr.CodeProtectedField, "Invalid claim field: '"+old.Field+"' is protected")
	}
	if !fieldNamePattern.MatchString(old.Field) {
		return "", apperr.New(apperr.CodeUnsafeFieldName, "invalid claim field name: "+old.Field)
	}

	newClaimID := claimID0(eventHash)
	value := graph.NewValue(in.Value)
	now := time.Now().UTC()

	if err := tx.PutClaim(ctx, graphstore.Claim{
		ClaimID: newClaimID, NodeKind: old.NodeKind, NodeID: old.NodeID, Field: old.Field,
		Value: value, Author: in.Author, EventHash: eventHash, SourceID: in.Source, CreatedAt: now,
	}); err != nil {
		return "", apperr.Wrap(apperr.CodeTransientGraph, "failed to write claim", err)
	}
	if err := tx.Relate(ctx, graph.Edge{Kind: graph.EdgeClaimsAbout, From: newClaimID, To: old.NodeID}); err != nil {
		return "", apperr.Wrap(apperr.CodeTransientGraph, "failed to link claim", err)
	}
	if in.Source != "" {
		if err := tx.Relate(ctx, graph.Edge{Kind: graph.EdgeSourcedFrom, From: newClaimID, To: in.Source}); err != nil {
			return "", apperr.Wrap(apperr.CodeTransientGraph, "failed to link claim source", err)
		}
	}
	if err := tx.SupersedeClaim(ctx, in.ClaimID, newClaimID, now); err != nil {
		return "", apperr.Wrap(apperr.CodeTransientGraph, "failed to supersede claim", err)
	}
	if err := applyFieldUpdate(ctx, tx, old.NodeKind, old.NodeID, old.Field, value); err != nil {
		return "", err
	}
	return newClaimID, nil
}

// applyFieldUpdate writes the claimed value onto the target node's field,
// preserving its current status/id-kind rather than resetting them —
// Upsert overwrites whatever Status it is given, and a claim is never the
// operation that changes a node's lifecycle state. The target is expected
// to already be resolved through any merged_into tombstone (spec §4.7
// tombstone policy); if it does not exist yet, the claim effectively
// creates it as ACTIVE.
func applyFieldUpdate(ctx context.Context, tx graphstore.Tx, kind graph.Kind, nodeID, field string, value graph.Value) error {
	status := graph.StatusActive
	idKind := graph.IDKindProvisional
	if existing, ok, err := tx.Get(ctx, kind, nodeID); err == nil && ok {
		status = existing.Status
		idKind = existing.IDKind
	}
	if err := tx.Upsert(ctx, graph.Node{
		Kind: kind, ID: nodeID, Status: status, IDKind: idKind,
		Props: map[string]any{field: value.StorageValue()},
	}); err != nil {
		return apperr.Wrap(apperr.CodeTransientGraph, "failed to apply claim to target node", err)
	}
	return nil
}

// claimID0 is SHA-256(eventHash || ":0") per spec §4.6 — every claim
// operation (ADD or EDIT) for a given anchored event mints exactly one
// claim id, scoped to sub-operation index 0 within that event.
func claimID0(eventHash string) string {
	sum := sha256.Sum256([]byte(eventHash + ":0"))
	return hex.EncodeToString(sum[:])
}
