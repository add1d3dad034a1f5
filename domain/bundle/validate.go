package bundle

import (
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
	"github.com/go-playground/validator/v10"

	"github.com/chainledger/musicgraph/internal/apperr"
)

var structValidator = validator.New()

// Validate implements the Bundle Validator (spec §4.4): a pure schema check
// over the canonical shape (required fields, type/range constraints) plus
// the "unknown fields at any depth are rejected" rule over the original
// submission. It reports every offending path, not just the first.
func Validate(payload []byte, b *Bundle) error {
	var diag apperr.Diagnostic

	if err := structValidator.Struct(b); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				diag.Add(fe.Namespace(), translateTag(fe))
			}
		} else {
			diag.Add("", err.Error())
		}
	}

	ids := indexTrackIDs(b.Tracks)
	for i, tl := range b.Tracklist {
		if !ids[tl.TrackID] {
			diag.Add(fmt.Sprintf("tracklist[%d].track_id", i), "references a track not in the same bundle's track catalog")
		}
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err == nil {
		checkAdditionalProperties("", raw, bundleSchema(), &diag)
		checkCoordinateRanges(raw, &diag)
	}

	return diag.Err()
}

// checkCoordinateRanges uses jsonpath's recursive-descent wildcard — a
// query shape gjson's dot-path accessors don't give cheaply — to pull every
// lat/lon value at any depth (release, group, and label origin cities
// alike) in one pass, rather than re-walking the tree by hand a second
// time just to range-check coordinates.
func checkCoordinateRanges(raw map[string]any, diag *apperr.Diagnostic) {
	checkCoordinateField(raw, "$..lat", -90, 90, "lat", diag)
	checkCoordinateField(raw, "$..lon", -180, 180, "lon", diag)
}

func checkCoordinateField(raw map[string]any, path string, min, max float64, label string, diag *apperr.Diagnostic) {
	result, err := jsonpath.Get(path, raw)
	if err != nil {
		return
	}
	values, ok := result.([]any)
	if !ok {
		values = []any{result}
	}
	for _, v := range values {
		f, ok := v.(float64)
		if !ok {
			continue
		}
		if f < min || f > max {
			diag.Add(label, fmt.Sprintf("%g out of range [%g, %g]", f, min, max))
		}
	}
}

func indexTrackIDs(tracks []Track) map[string]bool {
	out := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		out[t.TrackID] = true
	}
	return out
}

func translateTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min":
		return "must have at least " + fe.Param() + " element(s)"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	default:
		return "failed validation: " + fe.Tag()
	}
}

// --- additionalProperties:false enforcement --------------------------------
//
// jsonpath queries (github.com/PaesslerAG/jsonpath) are used above only for
// the coordinate range audit, and aliased paths are read with gjson in
// normalize.go; exhaustively auditing *unknown* keys at every
// depth is the opposite operation — it requires enumerating the keys
// actually present, which a compiled path query isn't built for — so this
// walk is a direct recursive traversal against a schema tree describing
// every name the normalizer recognizes (canonical and legacy alike) at
// each depth.

// schemaNode describes the keys an object may carry at one point in the
// tree, plus, for keys whose value is itself an object or array-of-object,
// the schema governing that nested shape.
type schemaNode struct {
	allowed  map[string]bool
	objects  map[string]*schemaNode // key -> schema when the value is a single object
	elements map[string]*schemaNode // key -> schema when the value is an array of objects
}

func node(allowedKeys ...string) *schemaNode {
	n := &schemaNode{
		allowed:  make(map[string]bool, len(allowedKeys)),
		objects:  map[string]*schemaNode{},
		elements: map[string]*schemaNode{},
	}
	for _, k := range allowedKeys {
		n.allowed[k] = true
	}
	return n
}

var citySchemaNode = node("name", "lat", "lon", "id")

func labelSchemaNode() *schemaNode {
	n := node("name", "origin_city", "city", "id")
	n.objects["origin_city"] = citySchemaNode
	n.objects["city"] = citySchemaNode
	return n
}

var (
	memberSchemaNode = node("name", "person_id", "role", "roles", "instruments", "from_date", "to_date")
	guestSchemaNode  = node("name", "person_id", "role", "role_detail", "roles", "instruments", "credited_as")
	writerSchemaNode = node("name", "person_id", "role", "roles", "role_detail", "credited_as", "share_percentage")
	sampleSchemaNode = node("track_id", "portion_used", "cleared", "source")
	sourceSchemaNode = node("name", "url", "id")
	songSchemaNode   = func() *schemaNode {
		n := node("title", "id", "primary_writer", "writers")
		n.elements["writers"] = writerSchemaNode
		return n
	}()
	performingGroupSchemaNode = func() *schemaNode {
		n := node("name", "group_name", "id", "credited_as", "role", "members", "members_are_complete")
		n.elements["members"] = memberSchemaNode
		return n
	}()
	groupSchemaNode = func() *schemaNode {
		n := node("name", "id", "origin_city", "city", "members")
		n.objects["origin_city"] = citySchemaNode
		n.objects["city"] = citySchemaNode
		n.elements["members"] = memberSchemaNode
		return n
	}()
	trackSchemaNode = func() *schemaNode {
		n := node(
			"track_id", "title", "duration", "isrc",
			"performed_by_groups", "groups", "performed_by",
			"guests", "producers", "arrangers", "recording_of", "cover_of", "samples",
		)
		n.elements["performed_by_groups"] = performingGroupSchemaNode
		n.elements["groups"] = performingGroupSchemaNode
		n.elements["guests"] = guestSchemaNode
		n.elements["producers"] = writerSchemaNode
		n.elements["arrangers"] = writerSchemaNode
		n.elements["samples"] = sampleSchemaNode
		return n
	}()
	tracklistItemSchemaNode = node(
		"position", "track_title", "title", "track_id", "duration",
		"disc_number", "track_number", "side", "is_bonus",
	)
	releaseSchemaNode = func() *schemaNode {
		n := node(
			"name", "release_name", "release_date", "releaseDate", "album_art", "albumArt",
			"catalog_number", "catalogNumber", "parent_label", "origin_city", "city",
			"guests", "labels", "master", "id", "tracks",
		)
		n.objects["origin_city"] = citySchemaNode
		n.objects["city"] = citySchemaNode
		n.objects["parent_label"] = labelSchemaNode()
		n.objects["master"] = node("title", "id")
		n.elements["guests"] = guestSchemaNode
		n.elements["labels"] = labelSchemaNode()
		n.elements["tracks"] = trackSchemaNode
		return n
	}()
)

func bundleSchema() *schemaNode {
	// "type" is the envelope's action discriminator (domain/intake dispatches
	// on it before Normalize/Validate ever see the payload); it rides along
	// in the same raw bytes, so the schema must allow it at the top level.
	n := node("type", "release", "groups", "tracks", "tracklist", "songs", "sources")
	n.objects["release"] = releaseSchemaNode
	n.elements["groups"] = groupSchemaNode
	n.elements["tracks"] = trackSchemaNode
	n.elements["tracklist"] = tracklistItemSchemaNode
	n.elements["songs"] = songSchemaNode
	n.elements["sources"] = sourceSchemaNode
	return n
}

// checkAdditionalProperties walks raw depth-first, rejecting any object key
// not present in the schema for its context.
func checkAdditionalProperties(path string, raw map[string]any, n *schemaNode, diag *apperr.Diagnostic) {
	if n == nil {
		return
	}
	for k, v := range raw {
		childPath := joinPath(path, k)
		if !n.allowed[k] {
			diag.Add(childPath, "unknown field")
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			if child := n.objects[k]; child != nil {
				checkAdditionalProperties(childPath, val, child, diag)
			}
		case []any:
			elemSchema := n.elements[k]
			if elemSchema == nil {
				continue
			}
			for i, item := range val {
				if m, ok := item.(map[string]any); ok {
					checkAdditionalProperties(fmt.Sprintf("%s[%d]", childPath, i), m, elemSchema, diag)
				}
			}
		}
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
