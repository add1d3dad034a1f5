// Package graph holds the shared vocabulary every engine compiles against:
// entity kinds, relationship kinds, and the tagged claim-value type. Kinds
// are a closed Go enum rather than interpolated strings, so no query ever
// builds a label from untrusted input.
package graph

// Kind identifies one of the entity labels the projector, claim engine, and
// merge engine operate over. It is the sum type called for in the design
// notes: {Person, Group, Song, Track, Release, Master, Label, City} plus the
// bookkeeping kinds (Account, Source) that participate in the same identity
// and claim machinery but are never merge targets.
type Kind string

const (
	KindPerson  Kind = "person"
	KindGroup   Kind = "group"
	KindSong    Kind = "song"
	KindTrack   Kind = "track"
	KindRelease Kind = "release"
	KindMaster  Kind = "master"
	KindLabel   Kind = "label"
	KindCity    Kind = "city"
	KindAccount Kind = "account"
	KindSource  Kind = "source"
)

// IDField returns the kind-specific identity field name, e.g. "person_id".
func (k Kind) IDField() string {
	return string(k) + "_id"
}

// Label returns the node label used in the graph store, e.g. "Person".
func (k Kind) Label() string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return ""
}

var kindLabels = map[Kind]string{
	KindPerson:  "Person",
	KindGroup:   "Group",
	KindSong:    "Song",
	KindTrack:   "Track",
	KindRelease: "Release",
	KindMaster:  "Master",
	KindLabel:   "Label",
	KindCity:    "City",
	KindAccount: "Account",
	KindSource:  "Source",
}

// MergeableKinds is the whitelist the Claim Engine and Merge Engine check
// incoming targets against (spec §4.6/§4.7). Order is insignificant; it is
// a set, kept as a slice for deterministic iteration in diagnostics.
var MergeableKinds = []Kind{
	KindPerson, KindGroup, KindSong, KindTrack, KindRelease, KindMaster, KindLabel, KindCity,
}

// IsMergeable reports whether kind is in the claim/merge whitelist.
func IsMergeable(k Kind) bool {
	for _, mk := range MergeableKinds {
		if mk == k {
			return true
		}
	}
	return false
}

// ParseKind resolves a case-insensitive kind string to a Kind, returning ok=false
// for anything outside the mergeable whitelist.
func ParseKind(s string) (Kind, bool) {
	k := Kind(normalizeKindString(s))
	return k, IsMergeable(k)
}

func normalizeKindString(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// Status is the lifecycle state of an entity node (spec §3 universal invariants).
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusProvisional Status = "PROVISIONAL"
	StatusMerged      Status = "MERGED"
)

// IDKind classifies how an entity's `id` was produced.
type IDKind string

const (
	IDKindCanonical   IDKind = "canonical"
	IDKindProvisional IDKind = "provisional"
	IDKindExternal    IDKind = "external"
)

// EdgeKind enumerates the directed relationship types from spec §3.
type EdgeKind string

const (
	EdgeMemberOf     EdgeKind = "MEMBER_OF"
	EdgePerformedOn  EdgeKind = "PERFORMED_ON"
	EdgeGuestOn      EdgeKind = "GUEST_ON"
	EdgeWrote        EdgeKind = "WROTE"
	EdgeProduced     EdgeKind = "PRODUCED"
	EdgeArranged     EdgeKind = "ARRANGED"
	EdgeRecordingOf  EdgeKind = "RECORDING_OF"
	EdgeCoverOf      EdgeKind = "COVER_OF"
	EdgeSamples      EdgeKind = "SAMPLES"
	EdgeInRelease    EdgeKind = "IN_RELEASE"
	EdgeInMaster     EdgeKind = "IN_MASTER"
	EdgeReleased     EdgeKind = "RELEASED"
	EdgeOrigin       EdgeKind = "ORIGIN"
	EdgeSubmitted    EdgeKind = "SUBMITTED"
	EdgeClaimsAbout  EdgeKind = "CLAIMS_ABOUT"
	EdgeSupersedes   EdgeKind = "SUPERSEDES"
	EdgeSourcedFrom  EdgeKind = "SOURCED_FROM"
	EdgeMergedInto   EdgeKind = "MERGED_INTO"
)

// LineupSource records why a derived PERFORMED_ON edge exists (spec §3/§4.5).
type LineupSource string

const (
	LineupTrackExplicit          LineupSource = "track_explicit"
	LineupReleaseDefault         LineupSource = "release_default"
	LineupReleaseDefaultByName   LineupSource = "release_default_by_name"
)
