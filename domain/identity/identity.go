// Package identity classifies identifier strings, fingerprints entities for
// provisional-id minting, and resolves external references against the
// graph store's IdentityMap. It mirrors the teacher's chain-id resolution
// helpers (internal/chain) in spirit: small, dependency-free parsing
// functions plus one narrow collaborator interface.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/chainledger/musicgraph/domain/graph"
)

// ParsedID is the classification result for an arbitrary identifier string.
type ParsedID struct {
	Kind         IDForm
	EntityKind   graph.Kind
	Source       string // set when Kind == FormExternal
	ExternalType string // the optional "subkind" segment, e.g. "artist" in discogs:release:artist:123
	ExternalID   string // set when Kind == FormExternal
	Valid        bool
}

// IDForm is the closed set of identifier shapes spec §4.1 recognizes.
type IDForm string

const (
	FormCanonical   IDForm = "canonical"
	FormProvisional IDForm = "provisional"
	FormExternal    IDForm = "external"
	FormInvalid     IDForm = "invalid"
)

var provisionalPattern = regexp.MustCompile(`^prov:([a-z]+)(?::isrc)?:([0-9a-zA-Z_-]+)$`)

// knownSources lists the external registries spec §4.1 names; an id whose
// first segment is in this set is always parsed as external. A source
// outside this set is parsed as external only when the id is not already
// canonical (a 3-segment id whose middle segment is a known kind is
// canonical) and it matches the `<source>:<kind>[:<subkind>]:<id>` shape.
var knownSources = map[string]bool{
	"discogs": true, "musicbrainz": true, "isni": true, "wikidata": true, "spotify": true,
}

// ParseID classifies s per spec §4.1: canonical / provisional / external / invalid.
//
// canonical:    <namespace>:<kind>:<uuid-like>
// provisional:  prov:<kind>:<hex16>  (or the ISRC fast path prov:track:isrc:<isrc>)
// external:     <source>:<kind>[:<subkind>]:<externalId>
func ParseID(s string) ParsedID {
	s = strings.TrimSpace(s)
	if s == "" {
		return ParsedID{Kind: FormInvalid}
	}
	parts := strings.Split(s, ":")
	if len(parts) < 3 {
		return ParsedID{Kind: FormInvalid}
	}

	if parts[0] == "prov" {
		if m := provisionalPattern.FindStringSubmatch(s); m != nil {
			k, ok := graph.ParseKind(m[1])
			if !ok {
				return ParsedID{Kind: FormInvalid}
			}
			return ParsedID{Kind: FormProvisional, EntityKind: k, Valid: true}
		}
		return ParsedID{Kind: FormInvalid}
	}

	if knownSources[parts[0]] {
		return parseExternal(parts)
	}

	// Canonical: <namespace>:<kind>:<uuid-like>, exactly 3 segments and the
	// middle segment names a known entity kind.
	if len(parts) == 3 {
		if k, ok := graph.ParseKind(parts[1]); ok && parts[2] != "" {
			return ParsedID{Kind: FormCanonical, EntityKind: k, Valid: true}
		}
	}

	// Anything else shaped like <source>:<kind>[:<subkind>]:<id> with an
	// unrecognized source, and not matched as canonical above, is treated as
	// external.
	if len(parts) >= 3 {
		if parsed := parseExternal(parts); parsed.Valid {
			return parsed
		}
	}

	return ParsedID{Kind: FormInvalid}
}

func parseExternal(parts []string) ParsedID {
	if len(parts) < 3 {
		return ParsedID{Kind: FormInvalid}
	}
	source := parts[0]
	k, ok := graph.ParseKind(parts[1])
	if !ok {
		return ParsedID{Kind: FormInvalid}
	}
	if len(parts) == 3 {
		if parts[2] == "" {
			return ParsedID{Kind: FormInvalid}
		}
		return ParsedID{Kind: FormExternal, EntityKind: k, Source: source, ExternalID: parts[2], Valid: true}
	}
	// source:kind:subkind:id(:more...) — external id is everything after the subkind.
	externalID := strings.Join(parts[3:], ":")
	if externalID == "" {
		return ParsedID{Kind: FormInvalid}
	}
	return ParsedID{Kind: FormExternal, EntityKind: k, Source: source, ExternalType: parts[2], ExternalID: externalID, Valid: true}
}

// Fingerprint is the normalized, canonical-JSON input to MakeProvisionalID.
// Callers build one per kind from the rules in spec §4.1.
type Fingerprint map[string]any

// normalizeField lowercases and collapses internal whitespace, the
// normalization spec §4.1 requires of every fingerprint field.
func normalizeField(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, " ")
}

// PersonFingerprint builds the {name, birth_year?} fingerprint.
func PersonFingerprint(name string, birthYear int) Fingerprint {
	fp := Fingerprint{"name": normalizeField(name)}
	if birthYear != 0 {
		fp["birth_year"] = birthYear
	}
	return fp
}

// GroupFingerprint builds the {name} fingerprint.
func GroupFingerprint(name string) Fingerprint {
	return Fingerprint{"name": normalizeField(name)}
}

// SongFingerprint builds the {title, primary_writer?} fingerprint.
func SongFingerprint(title, primaryWriter string) Fingerprint {
	fp := Fingerprint{"title": normalizeField(title)}
	if primaryWriter != "" {
		fp["primary_writer"] = normalizeField(primaryWriter)
	}
	return fp
}

// TrackFingerprint builds the {title, release_id?, position?} fingerprint.
func TrackFingerprint(title, releaseID, position string) Fingerprint {
	fp := Fingerprint{"title": normalizeField(title)}
	if releaseID != "" {
		fp["release_id"] = releaseID
	}
	if position != "" {
		fp["position"] = normalizeField(position)
	}
	return fp
}

// TrackISRCID builds the fingerprint-free ISRC fast path: prov:track:isrc:<isrc>.
func TrackISRCID(isrc string) string {
	return "prov:track:isrc:" + strings.ToLower(strings.TrimSpace(isrc))
}

// ReleaseFingerprint builds the {title, date?, catalog_number?} fingerprint.
func ReleaseFingerprint(title, date, catalogNumber string) Fingerprint {
	fp := Fingerprint{"title": normalizeField(title)}
	if date != "" {
		fp["date"] = date
	}
	if catalogNumber != "" {
		fp["catalog_number"] = normalizeField(catalogNumber)
	}
	return fp
}

// NameFingerprint builds the plain {name} fingerprint used for Label.
func NameFingerprint(name string) Fingerprint {
	return Fingerprint{"name": normalizeField(name)}
}

// CityFingerprint builds the {name, lat?, lon?} fingerprint.
func CityFingerprint(name string, lat, lon *float64) Fingerprint {
	fp := Fingerprint{"name": normalizeField(name)}
	if lat != nil {
		fp["lat"] = *lat
	}
	if lon != nil {
		fp["lon"] = *lon
	}
	return fp
}

// SourceFingerprint builds the {name, url?} fingerprint.
func SourceFingerprint(name, url string) Fingerprint {
	fp := Fingerprint{"name": normalizeField(name)}
	if url != "" {
		fp["url"] = url
	}
	return fp
}

// MakeProvisionalID mints prov:<kind>:<first-16-hex-of-sha256(canonical_json(fp))>.
func MakeProvisionalID(kind graph.Kind, fp Fingerprint) string {
	return "prov:" + string(kind) + ":" + fingerprintHash(fp)
}

func fingerprintHash(fp Fingerprint) string {
	// encoding/json sorts map keys alphabetically, giving us the
	// canonical_json(fingerprint) the spec calls for without a bespoke
	// canonicalizer.
	b, err := json.Marshal(fp)
	if err != nil {
		b = []byte(err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}

// Resolver is the narrow collaborator the graph store's transaction
// satisfies: a read-through lookup against the IdentityMap, keyed by
// (source, kind, externalId). It has no method for recording a mapping.
// Declared here (consumer side) rather than in
// infrastructure/graphstore so this package stays free of an infra import.
type Resolver interface {
	ResolveIdentity(ctx context.Context, source string, kind graph.Kind, externalID string) (canonicalID string, found bool, err error)
}

// ResolveExternalID implements resolveExternalId(source, kind, externalId):
// a lookup against the IdentityMap. It never writes — establishing a new
// mapping happens where the node is actually created, per §4.1 step 2.
func ResolveExternalID(ctx context.Context, r Resolver, source string, kind graph.Kind, externalID string) (string, bool, error) {
	return r.ResolveIdentity(ctx, source, kind, externalID)
}

// Resolve implements the three-step entity-id resolution policy (spec §4.1):
//  1. a canonical id in the input wins outright;
//  2. an external id is looked up; a hit wins, a miss falls through to (3)
//     but the external reference is remembered on the Ref for the caller to
//     attach to the node it creates;
//  3. otherwise mint a provisional id from fp.
//
// raw is the identifier string as it appeared in the bundle, or "" if none
// was given (fp is then the only source of identity).
func Resolve(ctx context.Context, r Resolver, raw string, kind graph.Kind, fp Fingerprint) (graph.Ref, error) {
	if raw != "" {
		parsed := ParseID(raw)
		switch parsed.Kind {
		case FormCanonical:
			return graph.Ref{ID: raw, IDKind: graph.IDKindCanonical}, nil
		case FormExternal:
			canonicalID, found, err := ResolveExternalID(ctx, r, parsed.Source, kind, parsed.ExternalID)
			if err != nil {
				return graph.Ref{}, err
			}
			if found {
				return graph.Ref{ID: canonicalID, IDKind: graph.IDKindCanonical}, nil
			}
			provID := MakeProvisionalID(kind, fp)
			return graph.Ref{
				ID: provID, IDKind: graph.IDKindProvisional,
				ExternalSource: parsed.Source, ExternalID: parsed.ExternalID,
			}, nil
		case FormProvisional:
			return graph.Ref{ID: raw, IDKind: graph.IDKindProvisional}, nil
		}
	}
	return graph.Ref{ID: MakeProvisionalID(kind, fp), IDKind: graph.IDKindProvisional}, nil
}
