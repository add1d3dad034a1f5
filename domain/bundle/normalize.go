package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/chainledger/musicgraph/domain/role"
	"github.com/chainledger/musicgraph/internal/apperr"
)

// Normalize implements the Bundle Normalizer (spec §4.3): it folds a
// permissive, legacy-tolerant submission into the canonical Bundle shape,
// or returns a single aggregated *apperr.GraphError listing every offending
// path. roleTable is the synonym table used for every role/instrument list
// normalized along the way; pass nil to use role.DefaultTable.
func Normalize(payload []byte, roleTable role.Table) (*Bundle, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, "bundle is not valid JSON", err)
	}

	var diag apperr.Diagnostic
	payloadStr := string(payload)

	b := &Bundle{}
	b.Release = normalizeRelease(payloadStr, raw, roleTable, &diag)
	b.Groups = normalizeGroups(raw, roleTable, &diag)
	b.Songs = normalizeSongs(raw, roleTable, &diag)

	catalog, order := buildTrackCatalog(raw, &diag)
	b.Tracks = normalizeTracks(catalog, order, roleTable, &diag)
	b.Tracklist = reconcileTracklist(raw, catalog, order, &diag)
	b.Sources = normalizeSources(raw, &diag)

	if err := diag.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// --- release --------------------------------------------------------------

func normalizeRelease(payloadStr string, raw map[string]any, roleTable role.Table, diag *apperr.Diagnostic) Release {
	rel, _ := raw["release"].(map[string]any)

	name := firstNonEmpty(
		gjson.Get(payloadStr, "release.name").String(),
		gjson.Get(payloadStr, "release.release_name").String(),
	)
	if name == "" {
		diag.Add("release.name", "required")
	}

	date := firstNonEmpty(
		gjson.Get(payloadStr, "release.release_date").String(),
		gjson.Get(payloadStr, "release.releaseDate").String(),
	)
	art := firstNonEmpty(
		gjson.Get(payloadStr, "release.album_art").String(),
		gjson.Get(payloadStr, "release.albumArt").String(),
	)
	catalogNumber := firstNonEmpty(
		gjson.Get(payloadStr, "release.catalog_number").String(),
		gjson.Get(payloadStr, "release.catalogNumber").String(),
	)

	r := Release{
		Name:          name,
		ReleaseDate:   date,
		AlbumArt:      art,
		CatalogNumber: catalogNumber,
		ID:            asString(rel["id"]),
	}

	if city := foldCity(rel["origin_city"], rel["city"]); city != nil {
		r.OriginCity = city
	}

	if pl, ok := rel["parent_label"]; ok {
		r.ParentLabel = foldLabel(pl)
	}
	for _, item := range asMapSlice(rel["labels"]) {
		if l := foldLabel(item); l != nil {
			r.Labels = append(r.Labels, *l)
		}
	}

	if m, ok := rel["master"].(map[string]any); ok {
		r.Master = &Master{Title: asString(m["title"]), ID: asString(m["id"])}
	}

	for _, g := range asMapSlice(rel["guests"]) {
		r.Guests = append(r.Guests, normalizeGuest(g, "release", roleTable))
	}

	return r
}

// foldCity accepts either the canonical origin_city object/string or the
// deprecated bare "city" alias (spec §4.3 "a deprecated city alias for
// origin_city").
func foldCity(originCity, cityAlias any) *City {
	if originCity != nil {
		return foldCityValue(originCity)
	}
	if cityAlias != nil {
		return foldCityValue(cityAlias)
	}
	return nil
}

func foldCityValue(v any) *City {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return &City{Name: t}
	case map[string]any:
		c := &City{Name: asString(t["name"])}
		if lat, ok := asFloatPtr(t["lat"]); ok {
			c.Lat = lat
		}
		if lon, ok := asFloatPtr(t["lon"]); ok {
			c.Lon = lon
		}
		c.ID = asString(t["id"])
		if c.Name == "" {
			return nil
		}
		return c
	default:
		return nil
	}
}

// foldLabel accepts either a bare label-name string or a full label object
// (spec §4.3 "a string-or-object parent_label").
func foldLabel(v any) *Label {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return &Label{Name: t}
	case map[string]any:
		name := asString(t["name"])
		if name == "" {
			return nil
		}
		l := &Label{Name: name, ID: asString(t["id"])}
		if city := foldCity(t["origin_city"], t["city"]); city != nil {
			l.OriginCity = city
		}
		return l
	default:
		return nil
	}
}

// --- groups -----------------------------------------------------------

func normalizeGroups(raw map[string]any, roleTable role.Table, diag *apperr.Diagnostic) []Group {
	var out []Group
	for i, g := range asMapSlice(raw["groups"]) {
		name := asString(g["name"])
		if name == "" {
			diag.Add(fmt.Sprintf("groups[%d].name", i), "required")
			continue
		}
		grp := Group{Name: name, ID: asString(g["id"])}
		if city := foldCity(g["origin_city"], g["city"]); city != nil {
			grp.OriginCity = city
		}
		for j, m := range asMapSlice(g["members"]) {
			mem, ok := normalizeMember(m, roleTable)
			if !ok {
				diag.Add(fmt.Sprintf("groups[%d].members[%d].name", i, j), "required")
				continue
			}
			grp.Members = append(grp.Members, mem)
		}
		out = append(out, grp)
	}
	return out
}

func normalizeMember(m map[string]any, roleTable role.Table) (Member, bool) {
	name := asString(m["name"])
	if name == "" {
		return Member{}, false
	}
	return Member{
		Name:        name,
		PersonID:    asString(m["person_id"]),
		Role:        asString(m["role"]),
		Roles:       role.Normalize(firstNonNilRoleInput(m["roles"], m["role"]), roleTable),
		Instruments: asStringSlice(m["instruments"]),
		FromDate:    asString(m["from_date"]),
		ToDate:      asString(m["to_date"]),
	}, true
}

func firstNonNilRoleInput(roles, single any) any {
	if roles != nil {
		return roles
	}
	return single
}

// --- songs --------------------------------------------------------------

func normalizeSongs(raw map[string]any, roleTable role.Table, diag *apperr.Diagnostic) []Song {
	var out []Song
	for i, s := range asMapSlice(raw["songs"]) {
		title := asString(s["title"])
		if title == "" {
			diag.Add(fmt.Sprintf("songs[%d].title", i), "required")
			continue
		}
		song := Song{Title: title, ID: asString(s["id"]), PrimaryWriter: asString(s["primary_writer"])}
		for j, w := range asMapSlice(s["writers"]) {
			wr, ok := normalizeWriter(w, roleTable)
			if !ok {
				diag.Add(fmt.Sprintf("songs[%d].writers[%d].name", i, j), "required")
				continue
			}
			song.Writers = append(song.Writers, wr)
		}
		out = append(out, song)
	}
	return out
}

func normalizeWriter(w map[string]any, roleTable role.Table) (Writer, bool) {
	name := asString(w["name"])
	if name == "" {
		return Writer{}, false
	}
	return Writer{
		Name:            name,
		PersonID:        asString(w["person_id"]),
		Role:            asString(w["role"]),
		Roles:           role.Normalize(firstNonNilRoleInput(w["roles"], w["role"]), roleTable),
		RoleDetail:      asString(w["role_detail"]),
		CreditedAs:      asString(w["credited_as"]),
		SharePercentage: asFloat(w["share_percentage"]),
	}, true
}

// --- track catalog --------------------------------------------------------

// buildTrackCatalog implements the priority bundle.tracks > bundle.release.tracks
// > derive-from-tracklist (spec §4.3), assigning a stable track_id to every
// entry and dropping duplicate ids (first wins; a duplicate is not an error
// and leaves no entry in diag).
func buildTrackCatalog(raw map[string]any, diag *apperr.Diagnostic) (map[string]map[string]any, []string) {
	var entries []map[string]any
	switch {
	case len(asMapSlice(raw["tracks"])) > 0:
		entries = asMapSlice(raw["tracks"])
	default:
		if rel, ok := raw["release"].(map[string]any); ok && len(asMapSlice(rel["tracks"])) > 0 {
			entries = asMapSlice(rel["tracks"])
		} else {
			entries = deriveTracksFromTracklist(raw)
		}
	}

	catalog := make(map[string]map[string]any, len(entries))
	order := make([]string, 0, len(entries))
	for i, t := range entries {
		title := asString(t["title"])
		if title == "" {
			diag.Add(fmt.Sprintf("tracks[%d].title", i), "required")
			continue
		}
		id := asString(t["track_id"])
		if id == "" {
			id = stableTrackID(t)
		}
		if _, exists := catalog[id]; exists {
			continue
		}
		t["track_id"] = id
		catalog[id] = t
		order = append(order, id)
	}
	return catalog, order
}

func deriveTracksFromTracklist(raw map[string]any) []map[string]any {
	var out []map[string]any
	for _, item := range asMapSlice(raw["tracklist"]) {
		title := firstNonEmpty(asString(item["track_title"]), asString(item["title"]))
		if title == "" {
			continue
		}
		out = append(out, map[string]any{
			"title":    title,
			"duration": item["duration"],
			"isrc":     item["isrc"],
			"track_id": item["track_id"],
		})
	}
	return out
}

var trackIDPattern = regexp.MustCompile(`^track:[^:]*:[0-9]+$`)

// stableTrackID yields the ISRC-based id when available, else a
// sha256-16-hex over the normalized title and duration, per spec §4.3.
func stableTrackID(t map[string]any) string {
	if isrc := asString(t["isrc"]); isrc != "" {
		return "prov:track:isrc:" + strings.ToLower(strings.TrimSpace(isrc))
	}
	title := strings.Join(strings.Fields(strings.ToLower(asString(t["title"]))), " ")
	duration := int64(asFloat(t["duration"])) // missing durations default to 0 for fingerprint purposes only
	fp := fmt.Sprintf("track:%s:%d", title, duration)
	sum := sha256.Sum256([]byte(fp))
	return "prov:track:" + hex.EncodeToString(sum[:])[:16]
}

func normalizeTracks(catalog map[string]map[string]any, order []string, roleTable role.Table, diag *apperr.Diagnostic) []Track {
	out := make([]Track, 0, len(order))
	for _, id := range order {
		t := catalog[id]
		out = append(out, Track{
			TrackID:          id,
			Title:            asString(t["title"]),
			Duration:         asFloat(t["duration"]),
			ISRC:             asString(t["isrc"]),
			PerformingGroups: normalizePerformingGroups(t, roleTable),
			Guests:           normalizeGuestList(t["guests"], "track", roleTable),
			Producers:        normalizeWriterList(t["producers"], roleTable),
			Arrangers:        normalizeWriterList(t["arrangers"], roleTable),
			RecordingOf:      asString(t["recording_of"]),
			CoverOf:          asString(t["cover_of"]),
			Samples:          normalizeSamples(t["samples"]),
		})
	}
	return out
}

// normalizePerformingGroups folds the 3-way legacy shape — canonical
// performed_by_groups[], legacy groups[], or a bare performed_by string —
// into the canonical performed_by_groups[] form (spec §4.3).
func normalizePerformingGroups(t map[string]any, roleTable role.Table) []PerformingGroup {
	if pg := asMapSlice(t["performed_by_groups"]); len(pg) > 0 {
		return foldPerformingGroups(pg, roleTable)
	}
	if legacy := asMapSlice(t["groups"]); len(legacy) > 0 {
		return foldPerformingGroups(legacy, roleTable)
	}
	if s, ok := t["performed_by"].(string); ok && strings.TrimSpace(s) != "" {
		return []PerformingGroup{{Name: strings.TrimSpace(s)}}
	}
	return nil
}

func foldPerformingGroups(entries []map[string]any, roleTable role.Table) []PerformingGroup {
	out := make([]PerformingGroup, 0, len(entries))
	for _, g := range entries {
		name := firstNonEmpty(asString(g["name"]), asString(g["group_name"]))
		if name == "" {
			continue
		}
		pg := PerformingGroup{
			Name:               name,
			ID:                 asString(g["id"]),
			CreditedAs:         asString(g["credited_as"]),
			Role:               asString(g["role"]),
			MembersAreComplete: asBool(g["members_are_complete"]),
		}
		for _, m := range asMapSlice(g["members"]) {
			if mem, ok := normalizeMember(m, roleTable); ok {
				pg.Members = append(pg.Members, mem)
			}
		}
		out = append(out, pg)
	}
	return out
}

func normalizeGuestList(v any, scope string, roleTable role.Table) []Guest {
	var out []Guest
	for _, g := range asMapSlice(v) {
		out = append(out, normalizeGuest(g, scope, roleTable))
	}
	return out
}

func normalizeGuest(g map[string]any, scope string, roleTable role.Table) Guest {
	return Guest{
		Name:        asString(g["name"]),
		PersonID:    asString(g["person_id"]),
		Role:        asString(g["role"]),
		RoleDetail:  asString(g["role_detail"]),
		Roles:       role.Normalize(firstNonNilRoleInput(g["roles"], g["role"]), roleTable),
		Instruments: asStringSlice(g["instruments"]),
		CreditedAs:  asString(g["credited_as"]),
		Scope:       scope,
	}
}

func normalizeWriterList(v any, roleTable role.Table) []Writer {
	var out []Writer
	for _, w := range asMapSlice(v) {
		if wr, ok := normalizeWriter(w, roleTable); ok {
			out = append(out, wr)
		}
	}
	return out
}

func normalizeSamples(v any) []Sample {
	var out []Sample
	for _, s := range asMapSlice(v) {
		out = append(out, Sample{
			TrackID:     asString(s["track_id"]),
			PortionUsed: asString(s["portion_used"]),
			Cleared:     asBool(s["cleared"]),
			Source:      asString(s["source"]),
		})
	}
	return out
}

// --- tracklist ------------------------------------------------------------

var (
	vinylPosition  = regexp.MustCompile(`^[A-Za-z]\d+$`)
	numericOnly    = regexp.MustCompile(`^\d+$`)
	discSidePos    = regexp.MustCompile(`^(\d+)[- ]?([A-Za-z])(\d+)$`)
)

// reconcileTracklist implements spec §4.3's tracklist reconciliation: resolve
// missing track_ids by case-insensitive title match, verify every
// referenced id exists in the catalog, and derive position when missing.
func reconcileTracklist(raw map[string]any, catalog map[string]map[string]any, order []string, diag *apperr.Diagnostic) []TracklistItem {
	titleIndex := make(map[string]string, len(order))
	for _, id := range order {
		titleIndex[strings.ToLower(strings.TrimSpace(asString(catalog[id]["title"])))] = id
	}

	items := asMapSlice(raw["tracklist"])
	out := make([]TracklistItem, 0, len(items))
	for i, item := range items {
		trackTitle := firstNonEmpty(asString(item["track_title"]), asString(item["title"]))
		trackID := asString(item["track_id"])
		if trackID == "" {
			id, ok := titleIndex[strings.ToLower(strings.TrimSpace(trackTitle))]
			if !ok {
				diag.Add(fmt.Sprintf("tracklist[%d].track_id", i), "could not resolve track by title: "+trackTitle)
				continue
			}
			trackID = id
		} else if _, ok := catalog[trackID]; !ok {
			diag.Add(fmt.Sprintf("tracklist[%d].track_id", i), "references unknown track_id "+trackID)
			continue
		}

		disc, side, num := parsePosition(asString(item["position"]), i)
		ti := TracklistItem{
			Position:    asString(item["position"]),
			TrackTitle:  trackTitle,
			TrackID:     trackID,
			Duration:    asFloat(item["duration"]),
			DiscNumber:  disc,
			Side:        side,
			TrackNumber: num,
			IsBonus:     asBool(item["is_bonus"]),
		}
		if ti.Position == "" {
			ti.Position = derivedPositionString(disc, side, num)
		}
		// explicit fields in input override parsed values
		if v, ok := item["disc_number"]; ok {
			ti.DiscNumber = int(asFloat(v))
		}
		if v, ok := item["track_number"]; ok {
			ti.TrackNumber = int(asFloat(v))
		}
		if v, ok := item["side"]; ok {
			ti.Side = asString(v)
		}
		out = append(out, ti)
	}
	return out
}

// parsePosition implements the deterministic grammar from spec §4.5 (also
// used by the normalizer to derive a position string when absent):
//
//	/^[A-Za-z]\d+$/         -> vinyl side + number (disc=1)
//	/^\d+$/                 -> numeric-only
//	/^\d+[- ]?[A-Za-z]\d+$/ -> disc + side + number
//	anything else           -> track_no = index+1, disc = 1
func parsePosition(pos string, index int) (disc int, side string, num int) {
	p := strings.TrimSpace(pos)
	switch {
	case vinylPosition.MatchString(p):
		return 1, strings.ToUpper(p[:1]), mustAtoi(p[1:])
	case numericOnly.MatchString(p):
		return 1, "", mustAtoi(p)
	default:
		if m := discSidePos.FindStringSubmatch(p); m != nil {
			return mustAtoi(m[1]), strings.ToUpper(m[2]), mustAtoi(m[3])
		}
		return 1, "", index + 1
	}
}

func derivedPositionString(disc int, side string, num int) string {
	if side != "" {
		if disc > 1 {
			return fmt.Sprintf("%d-%s%d", disc, side, num)
		}
		return fmt.Sprintf("%s%d", side, num)
	}
	return strconv.Itoa(num)
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// --- sources ----------------------------------------------------------

func normalizeSources(raw map[string]any, diag *apperr.Diagnostic) []Source {
	var out []Source
	for i, s := range asMapSlice(raw["sources"]) {
		name := asString(s["name"])
		if name == "" {
			diag.Add(fmt.Sprintf("sources[%d].name", i), "required")
			continue
		}
		out = append(out, Source{Name: name, URL: asString(s["url"]), ID: asString(s["id"])})
	}
	return out
}

// --- primitive coercion helpers --------------------------------------------

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func asFloatPtr(v any) (*float64, bool) {
	if v == nil {
		return nil, false
	}
	f := asFloat(v)
	return &f, true
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asStringSlice(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}

func asMapSlice(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
