package graphstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chainledger/musicgraph/domain/graph"
	"github.com/chainledger/musicgraph/internal/apperr"
)

// Fake is an in-memory adjacency-list Store, letting every domain
// package's tests run without a live Neo4j instance (spec §6: "storage-
// engine design itself stays a Non-goal"). It mirrors the teacher's
// infrastructure/database mock_repository.go: a hand-written fake
// implementing the same interface as the production adapter.
type Fake struct {
	mu       sync.Mutex
	nodes    map[string]graph.Node // key: string(kind)+":"+id
	edges    map[string]graph.Edge // key: kind+":"+from+":"+to+":"+disambiguator
	identity map[string]string     // key: source+":"+kind+":"+externalID
	claims   map[string]Claim
	merges   []MergeRecord
}

// NewFake builds an empty store.
func NewFake() *Fake {
	return &Fake{
		nodes:    map[string]graph.Node{},
		edges:    map[string]graph.Edge{},
		identity: map[string]string{},
		claims:   map[string]Claim{},
	}
}

func nodeKey(kind graph.Kind, id string) string { return string(kind) + ":" + id }

func edgeKey(e graph.Edge) string {
	disambiguator := ""
	if cid, ok := e.Props["claim_id"]; ok {
		disambiguator = fmt.Sprintf("%v", cid)
	}
	return string(e.Kind) + ":" + e.From + ":" + e.To + ":" + disambiguator
}

func (s *Fake) EnsureSchema(ctx context.Context) error { return nil }
func (s *Fake) Close(ctx context.Context) error        { return nil }

// Begin snapshots the store's state into a fakeTx. Commit atomically
// replaces the store's state with the tx's working copy; Rollback
// discards it — giving the "fully commits or fully rolls back" guarantee
// spec §4.5 requires without a real transactional engine underneath.
func (s *Fake) Begin(ctx context.Context) (Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &fakeTx{
		store:    s,
		nodes:    cloneNodes(s.nodes),
		edges:    cloneEdges(s.edges),
		identity: cloneStrings(s.identity),
		claims:   cloneClaims(s.claims),
	}, nil
}

func cloneNodes(m map[string]graph.Node) map[string]graph.Node {
	out := make(map[string]graph.Node, len(m))
	for k, v := range m {
		cp := v
		cp.Props = cloneProps(v.Props)
		out[k] = cp
	}
	return out
}

func cloneEdges(m map[string]graph.Edge) map[string]graph.Edge {
	out := make(map[string]graph.Edge, len(m))
	for k, v := range m {
		cp := v
		cp.Props = cloneProps(v.Props)
		out[k] = cp
	}
	return out
}

func cloneProps(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneClaims(m map[string]Claim) map[string]Claim {
	out := make(map[string]Claim, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// fakeTx is the working copy one in-flight transaction mutates.
type fakeTx struct {
	store    *Fake
	nodes    map[string]graph.Node
	edges    map[string]graph.Edge
	identity map[string]string
	claims   map[string]Claim
	merges   []MergeRecord
	done     bool
}

func (tx *fakeTx) Upsert(ctx context.Context, n graph.Node) error {
	key := nodeKey(n.Kind, n.ID)
	if existing, ok := tx.nodes[key]; ok {
		merged := existing
		for k, v := range n.Props {
			if merged.Props == nil {
				merged.Props = map[string]any{}
			}
			merged.Props[k] = v
		}
		merged.Status = n.Status
		merged.UpdatedAt = n.UpdatedAt
		tx.nodes[key] = merged
		return nil
	}
	tx.nodes[key] = n
	return nil
}

func (tx *fakeTx) Get(ctx context.Context, kind graph.Kind, id string) (graph.Node, bool, error) {
	resolved, err := tx.ResolveTombstone(ctx, id)
	if err != nil {
		return graph.Node{}, false, err
	}
	n, ok := tx.nodes[nodeKey(kind, resolved)]
	return n, ok, nil
}

func (tx *fakeTx) Relate(ctx context.Context, e graph.Edge) error {
	tx.edges[edgeKey(e)] = e
	return nil
}

func (tx *fakeTx) ResolveIdentity(ctx context.Context, source string, kind graph.Kind, externalID string) (string, bool, error) {
	id, ok := tx.identity[identityKey(source, kind, externalID)]
	return id, ok, nil
}

func (tx *fakeTx) RecordIdentity(ctx context.Context, source string, kind graph.Kind, externalID, canonicalID string) error {
	key := identityKey(source, kind, externalID)
	if _, ok := tx.identity[key]; ok {
		return nil // never rewritten, per spec §4.1
	}
	tx.identity[key] = canonicalID
	return nil
}

func identityKey(source string, kind graph.Kind, externalID string) string {
	return source + ":" + string(kind) + ":" + externalID
}

// ResolveTombstone follows merged_into pointers across all kinds (the node's
// kind is unknown to the caller in general) until reaching a node whose
// status isn't MERGED, or a node that doesn't exist (returned unchanged).
func (tx *fakeTx) ResolveTombstone(ctx context.Context, id string) (string, error) {
	seen := map[string]bool{}
	current := id
	for {
		if seen[current] {
			return current, nil // defensive: a cycle already in stored state, stop rather than loop forever
		}
		seen[current] = true
		n, ok := tx.findByID(current)
		if !ok || n.Status != graph.StatusMerged || n.MergedInto == "" {
			return current, nil
		}
		current = n.MergedInto
	}
}

func (tx *fakeTx) findByID(id string) (graph.Node, bool) {
	for _, n := range tx.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return graph.Node{}, false
}

func (tx *fakeTx) PutClaim(ctx context.Context, c Claim) error {
	if _, ok := tx.claims[c.ClaimID]; ok {
		return nil // idempotent MERGE on claim_id
	}
	tx.claims[c.ClaimID] = c
	return nil
}

func (tx *fakeTx) GetClaim(ctx context.Context, claimID string) (Claim, bool, error) {
	c, ok := tx.claims[claimID]
	return c, ok, nil
}

func (tx *fakeTx) SupersedeClaim(ctx context.Context, oldClaimID, newClaimID string, at time.Time) error {
	old, ok := tx.claims[oldClaimID]
	if !ok {
		return apperr.New(apperr.CodeClaimNotFound, "claim not found: "+oldClaimID)
	}
	old.SupersededBy = newClaimID
	old.SupersededAt = at
	tx.claims[oldClaimID] = old
	tx.edges[edgeKey(graph.Edge{Kind: graph.EdgeSupersedes, From: newClaimID, To: oldClaimID})] = graph.Edge{
		Kind: graph.EdgeSupersedes, From: newClaimID, To: oldClaimID,
	}
	return nil
}

func (tx *fakeTx) MergeEntity(ctx context.Context, survivorID, absorbedID string, survivorKind graph.Kind, eventHash string, at time.Time) (MergeRecord, error) {
	absorbed, ok := tx.findByID(absorbedID)
	if !ok {
		return MergeRecord{}, apperr.New(apperr.CodeResolution, "absorbed node not found: "+absorbedID)
	}
	survivor, ok := tx.findByID(survivorID)
	if !ok {
		return MergeRecord{}, apperr.New(apperr.CodeResolution, "survivor node not found: "+survivorID)
	}

	// rewire every edge touching absorbedID onto survivorID, preserving
	// kind and properties (spec §4.7).
	for key, e := range tx.edges {
		changed := false
		if e.From == absorbedID {
			e.From = survivorID
			changed = true
		}
		if e.To == absorbedID {
			e.To = survivorID
			changed = true
		}
		if changed {
			delete(tx.edges, key)
			tx.edges[edgeKey(e)] = e
		}
	}

	// copy missing scalar attributes from absorbed to survivor; union
	// alt_names.
	if survivor.Props == nil {
		survivor.Props = map[string]any{}
	}
	for k, v := range absorbed.Props {
		if k == "alt_names" {
			continue
		}
		if _, exists := survivor.Props[k]; !exists {
			survivor.Props[k] = v
		}
	}
	survivor.Props["alt_names"] = unionAltNames(survivor.Props["alt_names"], absorbed.Props["alt_names"], absorbed.ID)
	tx.nodes[nodeKey(survivorKind, survivorID)] = survivor

	absorbed.Status = graph.StatusMerged
	absorbed.MergedInto = survivorID
	absorbed.MergeEventHash = eventHash
	absorbed.UpdatedAt = at
	tx.nodes[nodeKey(findKind(tx.nodes, absorbedID), absorbedID)] = absorbed

	rec := MergeRecord{SurvivorID: survivorID, AbsorbedID: absorbedID, EventHash: eventHash, MergedAt: at}
	tx.merges = append(tx.merges, rec)
	return rec, nil
}

func findKind(nodes map[string]graph.Node, id string) graph.Kind {
	for _, n := range nodes {
		if n.ID == id {
			return n.Kind
		}
	}
	return ""
}

func unionAltNames(survivorAlt, absorbedAlt any, absorbedID string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(v any) {
		if ss, ok := v.([]string); ok {
			for _, s := range ss {
				if !seen[s] {
					seen[s] = true
					out = append(out, s)
				}
			}
		}
	}
	add(survivorAlt)
	add(absorbedAlt)
	if !seen[absorbedID] {
		out = append(out, absorbedID)
	}
	return out
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	tx.store.nodes = tx.nodes
	tx.store.edges = tx.edges
	tx.store.identity = tx.identity
	tx.store.claims = tx.claims
	tx.store.merges = append(tx.store.merges, tx.merges...)
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	tx.done = true
	return nil
}

// --- test inspection helpers (not part of the Store/Tx interface) ---------

// Nodes returns a snapshot of every node, for assertions in tests.
func (s *Fake) Nodes() []graph.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]graph.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	return out
}

// Edges returns a snapshot of every edge, for assertions in tests.
func (s *Fake) Edges() []graph.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]graph.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	return out
}

// NodeByID finds a node by its universal id across all kinds, for tests.
func (s *Fake) NodeByID(id string) (graph.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return graph.Node{}, false
}
