// Package bundle implements the Bundle Normalizer and Bundle Validator
// (spec §4.3/§4.4): folding a permissive, legacy-field-tolerant submission
// into the strict canonical shape the Graph Projector consumes.
package bundle

// Bundle is the canonical shape produced by Normalize. Every field name here
// is the canonical one — legacy/aliased input names are folded into these
// during normalization, never carried through.
type Bundle struct {
	Release   Release           `json:"release" validate:"required"`
	Groups    []Group           `json:"groups,omitempty"`
	Tracks    []Track           `json:"tracks" validate:"required,min=1,dive"`
	Tracklist []TracklistItem   `json:"tracklist" validate:"required,min=1,dive"`
	Songs     []Song            `json:"songs,omitempty"`
	Sources   []Source          `json:"sources,omitempty"`
}

// Release is the canonical release shape.
type Release struct {
	Name          string   `json:"name" validate:"required"`
	ReleaseDate   string   `json:"release_date,omitempty"`
	AlbumArt      string   `json:"album_art,omitempty"`
	CatalogNumber string   `json:"catalog_number,omitempty"`
	ParentLabel   *Label   `json:"parent_label,omitempty"`
	OriginCity    *City    `json:"origin_city,omitempty"`
	Guests        []Guest  `json:"guests,omitempty"`
	Labels        []Label  `json:"labels,omitempty"`
	Master        *Master  `json:"master,omitempty"`
	ID            string   `json:"id,omitempty"`
}

// Master is the release-group-level entity a Release links via IN_MASTER.
type Master struct {
	Title string `json:"title" validate:"required"`
	ID    string `json:"id,omitempty"`
}

// Label is a record label; ParentLabel/Release.Labels both use this shape.
// The legacy shape allows a bare string name, folded into Name here.
type Label struct {
	Name       string `json:"name" validate:"required"`
	OriginCity *City  `json:"origin_city,omitempty"`
	ID         string `json:"id,omitempty"`
}

// City is an ORIGIN target for Person/Group/Label.
type City struct {
	Name string   `json:"name" validate:"required"`
	Lat  *float64 `json:"lat,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Lon  *float64 `json:"lon,omitempty" validate:"omitempty,gte=-180,lte=180"`
	ID   string   `json:"id,omitempty"`
}

// Source is an external reference a Release or Claim can be SOURCED_FROM.
type Source struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url,omitempty"`
	ID   string `json:"id,omitempty"`
}

// Guest is a per-release or per-track guest credit (GUEST_ON).
type Guest struct {
	Name        string   `json:"name" validate:"required"`
	PersonID    string   `json:"person_id,omitempty"`
	Role        string   `json:"role,omitempty"`
	RoleDetail  string   `json:"role_detail,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Instruments []string `json:"instruments,omitempty"`
	CreditedAs  string   `json:"credited_as,omitempty"`
	Scope       string   `json:"scope,omitempty"` // "release" | "track", set by the normalizer
}

// Member is a group's release-level lineup entry, or a per-track explicit
// performer override when it appears under PerformingGroup.Members.
type Member struct {
	Name        string   `json:"name" validate:"required"`
	PersonID    string   `json:"person_id,omitempty"`
	Role        string   `json:"role,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Instruments []string `json:"instruments,omitempty"`
	FromDate    string   `json:"from_date,omitempty"`
	ToDate      string   `json:"to_date,omitempty"`
}

// Group is a performing ensemble.
type Group struct {
	Name       string   `json:"name" validate:"required"`
	ID         string   `json:"id,omitempty"`
	OriginCity *City    `json:"origin_city,omitempty"`
	Members    []Member `json:"members,omitempty"`
}

// Writer is a WROTE edge source for a Song.
type Writer struct {
	Name            string   `json:"name" validate:"required"`
	PersonID        string   `json:"person_id,omitempty"`
	Role            string   `json:"role,omitempty"`
	Roles           []string `json:"roles,omitempty"`
	RoleDetail      string   `json:"role_detail,omitempty"`
	CreditedAs      string   `json:"credited_as,omitempty"`
	SharePercentage float64  `json:"share_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// Song is the work-level entity a Track records.
type Song struct {
	Title         string   `json:"title" validate:"required"`
	ID            string   `json:"id,omitempty"`
	PrimaryWriter string   `json:"primary_writer,omitempty"`
	Writers       []Writer `json:"writers,omitempty"`
}

// PerformingGroup names a group performing on a track, with an optional
// explicit member override list (spec §4.5 "explicit member overrides").
type PerformingGroup struct {
	Name                string   `json:"name" validate:"required"`
	ID                  string   `json:"id,omitempty"`
	CreditedAs          string   `json:"credited_as,omitempty"`
	Role                string   `json:"role,omitempty"`
	Members             []Member `json:"members,omitempty"`
	MembersAreComplete  bool     `json:"members_are_complete,omitempty"`
}

// Track is the canonical track shape after catalog construction/folding.
type Track struct {
	TrackID          string            `json:"track_id" validate:"required"`
	Title            string            `json:"title" validate:"required"`
	Duration         float64           `json:"duration,omitempty" validate:"omitempty,gte=0"`
	ISRC             string            `json:"isrc,omitempty"`
	PerformingGroups []PerformingGroup `json:"performed_by_groups,omitempty"`
	Guests           []Guest           `json:"guests,omitempty"`
	Producers        []Writer          `json:"producers,omitempty"`
	Arrangers        []Writer          `json:"arrangers,omitempty"`
	RecordingOf      string            `json:"recording_of,omitempty"`
	CoverOf          string            `json:"cover_of,omitempty"`
	Samples          []Sample          `json:"samples,omitempty"`
}

// Sample is a SAMPLES edge from this track to another.
type Sample struct {
	TrackID     string `json:"track_id" validate:"required"`
	PortionUsed string `json:"portion_used,omitempty"`
	Cleared     bool   `json:"cleared,omitempty"`
	Source      string `json:"source,omitempty"`
}

// TracklistItem is one reconciled position in the release's running order.
type TracklistItem struct {
	Position    string  `json:"position" validate:"required"`
	TrackTitle  string  `json:"track_title" validate:"required"`
	TrackID     string  `json:"track_id" validate:"required"`
	Duration    float64 `json:"duration,omitempty" validate:"omitempty,gte=0"`
	DiscNumber  int     `json:"disc_number"`
	TrackNumber int     `json:"track_number"`
	Side        string  `json:"side,omitempty"`
	IsBonus     bool    `json:"is_bonus,omitempty"`
}
