// Package graphstore is the property-graph driver contract the core
// depends on (spec §6): labeled nodes, typed relationships, property maps,
// parameterized queries, unique constraints, and multi-statement ACID
// transactions. Production code only ever sees the Store/Tx interfaces;
// Neo4jStore and Fake are the two implementations (one real, one for
// dependency-free unit tests), mirroring the teacher's
// infrastructure/database split between its Supabase-backed repository and
// its in-memory mock_repository.
package graphstore

import (
	"context"
	"time"

	"github.com/chainledger/musicgraph/domain/graph"
)

// Claim is the persisted shape of a Claim node plus its supersession state.
type Claim struct {
	ClaimID       string
	NodeKind      graph.Kind
	NodeID        string
	Field         string
	Value         graph.Value
	Author        string
	EventHash     string
	SourceID      string
	CreatedAt     time.Time
	SupersededBy  string
	SupersededAt  time.Time
}

// MergeRecord is created by the Merge Engine on every successful merge.
type MergeRecord struct {
	SurvivorID string
	AbsorbedID string
	EventHash  string
	MergedAt   time.Time
}

// Store is the graph driver contract. Begin opens one session/transaction
// pair; EnsureSchema installs the constraints and indexes spec §6 requires.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	EnsureSchema(ctx context.Context) error
	Close(ctx context.Context) error
}

// Tx is a single graph transaction. Every anchored event runs inside
// exactly one Tx (spec §4.5/§5): it either fully commits or fully rolls
// back. Methods are safe to call only between Begin and Commit/Rollback.
type Tx interface {
	// Upsert creates or updates a node, keyed by (Kind, ID). Implementations
	// MERGE on the kind-specific id field and on the universal id.
	Upsert(ctx context.Context, n graph.Node) error

	// Get reads a node by kind and id, resolving through any merged_into
	// tombstone first so callers always observe the live survivor's state.
	Get(ctx context.Context, kind graph.Kind, id string) (graph.Node, bool, error)

	// Relate creates or updates a directed edge. Implementations MERGE on
	// (Kind, From, To) plus any caller-supplied disambiguating properties
	// (e.g. claim_id), matching spec §4.5's "MERGE semantics on
	// (group, track, claim_id)" tie-break.
	Relate(ctx context.Context, e graph.Edge) error

	// ResolveIdentity looks up the IdentityMap by (source, kind, externalID).
	ResolveIdentity(ctx context.Context, source string, kind graph.Kind, externalID string) (canonicalID string, found bool, err error)

	// RecordIdentity establishes a new IdentityMap entry. It never
	// overwrites an existing mapping (spec §4.1: "created but never
	// rewritten") — callers must call ResolveIdentity first.
	RecordIdentity(ctx context.Context, source string, kind graph.Kind, externalID, canonicalID string) error

	// ResolveTombstone follows a node's merged_into chain (if any) to the
	// live survivor. For a node that is not tombstoned, it returns id
	// itself. The Merge Engine uses this for cycle detection (spec §4.7).
	ResolveTombstone(ctx context.Context, id string) (string, error)

	// PutClaim creates a claim (idempotent MERGE on ClaimID).
	PutClaim(ctx context.Context, c Claim) error

	// GetClaim reads a claim by id.
	GetClaim(ctx context.Context, claimID string) (Claim, bool, error)

	// SupersedeClaim marks old claim superseded and creates the SUPERSEDES
	// edge from newClaimID to oldClaimID.
	SupersedeClaim(ctx context.Context, oldClaimID, newClaimID string, at time.Time) error

	// MergeEntity rewires every edge touching absorbedID onto survivorID
	// (preserving edge kind/properties), transfers CLAIMS_ABOUT edges,
	// copies missing scalar attributes from absorbed to survivor, and
	// tombstones absorbedID. Implemented as one storage-layer operation so
	// the mechanical rewiring itself is not domain logic (spec §4.7).
	MergeEntity(ctx context.Context, survivorID, absorbedID string, survivorKind graph.Kind, eventHash string, at time.Time) (MergeRecord, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
