package graph

import "time"

// Node is the universal envelope every entity kind shares (spec §3
// "Universal invariants"). Kind-specific attributes travel in Props.
type Node struct {
	Kind   Kind
	ID     string // universal `id`; equals the kind-specific id at creation
	IDKind IDKind
	Status Status

	// MergedInto/MergeEventHash are only set once Status == StatusMerged.
	MergedInto     string
	MergeEventHash string

	Props map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// KindID returns the kind-specific identity field value, which equals Node.ID
// at creation time and is never rewritten afterward.
func (n Node) KindID() string { return n.ID }

// Edge is a directed relationship instance between two resolved node ids.
type Edge struct {
	Kind  EdgeKind
	From  string
	To    string
	Props map[string]any
}

// Ref is the outcome of entity-id resolution (spec §4.1 policy): a resolved
// id, how it was resolved, and — when resolution fell through to a
// provisional id while an external reference was present — the external
// reference to remember on the created node.
type Ref struct {
	ID             string
	IDKind         IDKind
	ExternalSource string
	ExternalID     string
}
