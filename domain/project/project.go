// Package project implements the Graph Projector (spec §4.5): folding one
// normalized Bundle into graph writes inside a single transaction that
// either fully commits or fully rolls back.
package project

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/chainledger/musicgraph/domain/bundle"
	"github.com/chainledger/musicgraph/domain/graph"
	"github.com/chainledger/musicgraph/domain/identity"
	"github.com/chainledger/musicgraph/domain/role"
	"github.com/chainledger/musicgraph/infrastructure/graphstore"
	"github.com/chainledger/musicgraph/internal/apperr"
	"github.com/chainledger/musicgraph/internal/logging"
)

// Result is what ProjectBundle returns on success.
type Result struct {
	ReleaseID string
	Stats     Stats
}

// Stats counts the writes one ProjectBundle call made, for logging/metrics.
type Stats struct {
	NodesUpserted int
	EdgesCreated  int
	ClaimsWritten int
	Warnings      []string
}

// Projector folds bundles into graph writes.
type Projector struct {
	store     graphstore.Store
	roleTable role.Table
	log       *logging.Logger
}

// New builds a Projector. roleTable is stored on the Projector but the
// projector itself performs no role normalization with it (role
// normalization happens in domain/bundle).
func New(store graphstore.Store, roleTable role.Table) *Projector {
	return &Projector{store: store, roleTable: roleTable, log: logging.NewFromEnv("project")}
}

// ctxState carries the per-call mutable bookkeeping the processing order in
// spec §4.5 needs to share across its numbered steps.
type ctxState struct {
	tx       graphstore.Tx
	ops      *opCounter
	eventHash string
	eventTs  time.Time
	stats    Stats

	// groupRefs indexes every group resolved in step 1 (and any later
	// upserted ad hoc in step 4) by lowercased name, for the release-level
	// lineup fallback lookup.
	groupRefs map[string]graph.Ref
	// releaseLineup is each resolved group id's release-level member list,
	// remembered in step 1 for step 4's derived-propagation fallback.
	releaseLineup map[string][]bundle.Member
	// releaseLineupByName mirrors releaseLineup keyed by lowercased group
	// name instead of resolved id, so step 4 can fall back to a name match
	// when a track-level group reference doesn't carry the same id (spec
	// §4.5 step 1: "keyed by resolved id and by lowercased name").
	releaseLineupByName map[string][]bundle.Member
	// songRefs indexes songs resolved in step 3 by lowercased title, so
	// RECORDING_OF/COVER_OF can find an existing Song before minting a new
	// provisional one.
	songRefs map[string]graph.Ref
}

// ProjectBundle implements projectBundle(eventHash, bundle, submitter, eventTs)
// -> {releaseId, stats} (spec §4.5). eventTs may arrive as Unix seconds or
// milliseconds; submitterAccountID is the already-resolved Account id.
func (p *Projector) ProjectBundle(ctx context.Context, eventHash string, b *bundle.Bundle, submitterAccountID string, eventTs int64) (Result, error) {
	tx, err := p.store.Begin(ctx)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to open transaction", err)
	}

	st := &ctxState{
		tx:            tx,
		ops:           newOpCounter(eventHash),
		eventHash:     eventHash,
		eventTs:       normalizeEventTimestamp(eventTs),
		groupRefs:           map[string]graph.Ref{},
		releaseLineup:       map[string][]bundle.Member{},
		releaseLineupByName: map[string][]bundle.Member{},
		songRefs:            map[string]graph.Ref{},
	}

	releaseID, err := p.project(ctx, st, b, submitterAccountID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, apperr.Wrap(apperr.CodeTransientGraph, "commit failed", err)
	}
	return Result{ReleaseID: releaseID, Stats: st.stats}, nil
}

// normalizeEventTimestamp implements spec §4.5's Unix seconds/milliseconds
// disambiguation: values under 10^12 are seconds and are upscaled.
func normalizeEventTimestamp(eventTs int64) time.Time {
	if eventTs <= 0 {
		return time.Now().UTC()
	}
	ms := eventTs
	if ms < 1_000_000_000_000 {
		ms *= 1000
	}
	return time.UnixMilli(ms).UTC()
}

func (p *Projector) project(ctx context.Context, st *ctxState, b *bundle.Bundle, submitterAccountID string) (string, error) {
	if err := p.projectGroups(ctx, st, b.Groups); err != nil {
		return "", err
	}
	releaseRef, err := p.projectRelease(ctx, st, b.Release, submitterAccountID)
	if err != nil {
		return "", err
	}
	if err := p.projectSongs(ctx, st, b.Songs); err != nil {
		return "", err
	}
	if err := p.projectTracks(ctx, st, b.Tracks, b.Groups); err != nil {
		return "", err
	}
	if err := p.projectTracklist(ctx, st, b.Tracklist, releaseRef.ID); err != nil {
		return "", err
	}
	if err := p.projectLabelsAndMaster(ctx, st, b.Release, releaseRef.ID); err != nil {
		return "", err
	}
	if err := p.projectSources(ctx, st, b.Sources, releaseRef.ID); err != nil {
		return "", err
	}
	return releaseRef.ID, nil
}

// --- 1. groups --------------------------------------------------------

func (p *Projector) projectGroups(ctx context.Context, st *ctxState, groups []bundle.Group) error {
	for _, g := range groups {
		ref, err := p.upsertGroup(ctx, st, g.ID, g.Name, g.OriginCity)
		if err != nil {
			return err
		}
		st.groupRefs[strings.ToLower(g.Name)] = ref
		st.releaseLineup[ref.ID] = g.Members
		st.releaseLineupByName[strings.ToLower(g.Name)] = g.Members

		for _, m := range g.Members {
			personRef, err := p.resolvePerson(ctx, st, m.PersonID, m.Name)
			if err != nil {
				st.stats.Warnings = append(st.stats.Warnings, "unresolvable member "+m.Name+": "+err.Error())
				continue
			}
			if err := st.tx.Relate(ctx, graph.Edge{
				Kind: graph.EdgeMemberOf, From: personRef.ID, To: ref.ID,
				Props: map[string]any{
					"from_date": m.FromDate, "to_date": m.ToDate,
					"role": m.Role, "roles": m.Roles, "instruments": m.Instruments,
				},
			}); err != nil {
				return apperr.Wrap(apperr.CodeTransientGraph, "failed to write MEMBER_OF", err)
			}
			st.stats.EdgesCreated++
		}
	}
	return nil
}

func (p *Projector) upsertGroup(ctx context.Context, st *ctxState, rawID, name string, city *bundle.City) (graph.Ref, error) {
	ref, err := identity.Resolve(ctx, st.tx, rawID, graph.KindGroup, identity.GroupFingerprint(name))
	if err != nil {
		return graph.Ref{}, apperr.Wrap(apperr.CodeResolution, "failed to resolve group id", err)
	}
	if err := p.recordExternalIfAny(ctx, st, ref, graph.KindGroup); err != nil {
		return graph.Ref{}, err
	}
	if err := st.tx.Upsert(ctx, graph.Node{
		Kind: graph.KindGroup, ID: ref.ID, IDKind: ref.IDKind,
		Status: statusFor(ref.IDKind), UpdatedAt: st.eventTs, CreatedAt: st.eventTs,
		Props: map[string]any{"name": name},
	}); err != nil {
		return graph.Ref{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to upsert group", err)
	}
	st.stats.NodesUpserted++
	p.writeAuditClaim(ctx, st, graph.KindGroup, ref.ID, map[string]any{"name": name})

	if city != nil {
		cityRef, err := p.upsertCity(ctx, st, city)
		if err == nil {
			_ = st.tx.Relate(ctx, graph.Edge{Kind: graph.EdgeOrigin, From: ref.ID, To: cityRef.ID})
			st.stats.EdgesCreated++
		}
	}
	return ref, nil
}

func (p *Projector) resolvePerson(ctx context.Context, st *ctxState, rawID, name string) (graph.Ref, error) {
	ref, err := identity.Resolve(ctx, st.tx, rawID, graph.KindPerson, identity.PersonFingerprint(name, 0))
	if err != nil {
		return graph.Ref{}, apperr.Wrap(apperr.CodeResolution, "failed to resolve person id", err)
	}
	if err := p.recordExternalIfAny(ctx, st, ref, graph.KindPerson); err != nil {
		return graph.Ref{}, err
	}
	if err := st.tx.Upsert(ctx, graph.Node{
		Kind: graph.KindPerson, ID: ref.ID, IDKind: ref.IDKind,
		Status: statusFor(ref.IDKind), UpdatedAt: st.eventTs, CreatedAt: st.eventTs,
		Props: map[string]any{"name": name},
	}); err != nil {
		return graph.Ref{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to upsert person", err)
	}
	st.stats.NodesUpserted++
	return ref, nil
}

func (p *Projector) upsertCity(ctx context.Context, st *ctxState, c *bundle.City) (graph.Ref, error) {
	ref, err := identity.Resolve(ctx, st.tx, c.ID, graph.KindCity, identity.CityFingerprint(c.Name, c.Lat, c.Lon))
	if err != nil {
		return graph.Ref{}, apperr.Wrap(apperr.CodeResolution, "failed to resolve city id", err)
	}
	props := map[string]any{"name": c.Name}
	if c.Lat != nil {
		props["lat"] = *c.Lat
	}
	if c.Lon != nil {
		props["lon"] = *c.Lon
	}
	if err := st.tx.Upsert(ctx, graph.Node{
		Kind: graph.KindCity, ID: ref.ID, IDKind: ref.IDKind,
		Status: statusFor(ref.IDKind), UpdatedAt: st.eventTs, CreatedAt: st.eventTs, Props: props,
	}); err != nil {
		return graph.Ref{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to upsert city", err)
	}
	st.stats.NodesUpserted++
	return ref, nil
}

// --- 2. release ---------------------------------------------------------

func (p *Projector) projectRelease(ctx context.Context, st *ctxState, r bundle.Release, submitterAccountID string) (graph.Ref, error) {
	ref, err := identity.Resolve(ctx, st.tx, r.ID, graph.KindRelease, identity.ReleaseFingerprint(r.Name, r.ReleaseDate, r.CatalogNumber))
	if err != nil {
		return graph.Ref{}, apperr.Wrap(apperr.CodeResolution, "failed to resolve release id", err)
	}
	if err := p.recordExternalIfAny(ctx, st, ref, graph.KindRelease); err != nil {
		return graph.Ref{}, err
	}
	props := map[string]any{"name": r.Name, "release_date": r.ReleaseDate, "album_art": r.AlbumArt, "catalog_number": r.CatalogNumber}
	if err := st.tx.Upsert(ctx, graph.Node{
		Kind: graph.KindRelease, ID: ref.ID, IDKind: ref.IDKind,
		Status: statusFor(ref.IDKind), UpdatedAt: st.eventTs, CreatedAt: st.eventTs, Props: props,
	}); err != nil {
		return graph.Ref{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to upsert release", err)
	}
	st.stats.NodesUpserted++
	p.writeAuditClaim(ctx, st, graph.KindRelease, ref.ID, props)

	if submitterAccountID != "" {
		if err := st.tx.Upsert(ctx, graph.Node{Kind: graph.KindAccount, ID: submitterAccountID, IDKind: graph.IDKindCanonical, Status: graph.StatusActive, UpdatedAt: st.eventTs, CreatedAt: st.eventTs}); err != nil {
			return graph.Ref{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to upsert submitter account", err)
		}
		if err := st.tx.Relate(ctx, graph.Edge{
			Kind: graph.EdgeSubmitted, From: submitterAccountID, To: ref.ID,
			Props: map[string]any{"event_hash": st.eventHash, "timestamp": st.eventTs.UnixMilli()},
		}); err != nil {
			return graph.Ref{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to write SUBMITTED", err)
		}
		st.stats.EdgesCreated++
	}

	if err := p.projectGuests(ctx, st, r.Guests, ref.ID, "release"); err != nil {
		return graph.Ref{}, err
	}
	if r.OriginCity != nil {
		cityRef, err := p.upsertCity(ctx, st, r.OriginCity)
		if err == nil {
			_ = st.tx.Relate(ctx, graph.Edge{Kind: graph.EdgeOrigin, From: ref.ID, To: cityRef.ID})
			st.stats.EdgesCreated++
		}
	}
	return ref, nil
}

func (p *Projector) projectGuests(ctx context.Context, st *ctxState, guests []bundle.Guest, targetID, scope string) error {
	for _, g := range guests {
		personRef, err := p.resolvePerson(ctx, st, g.PersonID, g.Name)
		if err != nil {
			st.stats.Warnings = append(st.stats.Warnings, "unresolvable guest "+g.Name+": "+err.Error())
			continue
		}
		if err := st.tx.Relate(ctx, graph.Edge{
			Kind: graph.EdgeGuestOn, From: personRef.ID, To: targetID,
			Props: map[string]any{
				"roles": g.Roles, "role": g.Role, "role_detail": g.RoleDetail,
				"instruments": g.Instruments, "credited_as": g.CreditedAs, "scope": scope,
			},
		}); err != nil {
			return apperr.Wrap(apperr.CodeTransientGraph, "failed to write GUEST_ON", err)
		}
		st.stats.EdgesCreated++
	}
	return nil
}

// --- 3. songs -------------------------------------------------------------

func (p *Projector) projectSongs(ctx context.Context, st *ctxState, songs []bundle.Song) error {
	for _, s := range songs {
		ref, err := p.upsertSong(ctx, st, s.ID, s.Title, s.PrimaryWriter)
		if err != nil {
			return err
		}
		st.songRefs[strings.ToLower(s.Title)] = ref
		for _, w := range s.Writers {
			personRef, err := p.resolvePerson(ctx, st, w.PersonID, w.Name)
			if err != nil {
				st.stats.Warnings = append(st.stats.Warnings, "unresolvable writer "+w.Name+": "+err.Error())
				continue
			}
			if err := st.tx.Relate(ctx, graph.Edge{
				Kind: graph.EdgeWrote, From: personRef.ID, To: ref.ID,
				Props: map[string]any{
					"role": w.Role, "roles": w.Roles, "role_detail": w.RoleDetail,
					"credited_as": w.CreditedAs, "share_percentage": w.SharePercentage,
				},
			}); err != nil {
				return apperr.Wrap(apperr.CodeTransientGraph, "failed to write WROTE", err)
			}
			st.stats.EdgesCreated++
		}
	}
	return nil
}

func (p *Projector) upsertSong(ctx context.Context, st *ctxState, rawID, title, primaryWriter string) (graph.Ref, error) {
	ref, err := identity.Resolve(ctx, st.tx, rawID, graph.KindSong, identity.SongFingerprint(title, primaryWriter))
	if err != nil {
		return graph.Ref{}, apperr.Wrap(apperr.CodeResolution, "failed to resolve song id", err)
	}
	if err := st.tx.Upsert(ctx, graph.Node{
		Kind: graph.KindSong, ID: ref.ID, IDKind: ref.IDKind,
		Status: statusFor(ref.IDKind), UpdatedAt: st.eventTs, CreatedAt: st.eventTs,
		Props: map[string]any{"title": title},
	}); err != nil {
		return graph.Ref{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to upsert song", err)
	}
	st.stats.NodesUpserted++
	return ref, nil
}

// --- 4. tracks --------------------------------------------------------

func (p *Projector) projectTracks(ctx context.Context, st *ctxState, tracks []bundle.Track, bundleGroups []bundle.Group) error {
	for _, t := range tracks {
		trackRef := graph.Ref{ID: t.TrackID, IDKind: identityKindOf(t.TrackID)}
		if err := st.tx.Upsert(ctx, graph.Node{
			Kind: graph.KindTrack, ID: trackRef.ID, IDKind: trackRef.IDKind,
			Status: statusFor(trackRef.IDKind), UpdatedAt: st.eventTs, CreatedAt: st.eventTs,
			Props: map[string]any{"title": t.Title, "duration": t.Duration, "isrc": t.ISRC},
		}); err != nil {
			return apperr.Wrap(apperr.CodeTransientGraph, "failed to upsert track", err)
		}
		st.stats.NodesUpserted++

		performing := t.PerformingGroups
		if len(performing) == 0 && len(bundleGroups) > 0 {
			for _, g := range bundleGroups {
				performing = append(performing, bundle.PerformingGroup{Name: g.Name, ID: g.ID, Members: g.Members, MembersAreComplete: true})
			}
		}

		trackGuestIdentities := guestIdentitySet(t.Guests)

		for _, pg := range performing {
			if err := p.projectPerformingGroup(ctx, st, pg, trackRef.ID, trackGuestIdentities); err != nil {
				return err
			}
		}

		if err := p.projectGuests(ctx, st, t.Guests, trackRef.ID, "track"); err != nil {
			return err
		}
		for _, prod := range t.Producers {
			personRef, err := p.resolvePerson(ctx, st, prod.PersonID, prod.Name)
			if err != nil {
				st.stats.Warnings = append(st.stats.Warnings, "unresolvable producer "+prod.Name+": "+err.Error())
				continue
			}
			_ = st.tx.Relate(ctx, graph.Edge{Kind: graph.EdgeProduced, From: personRef.ID, To: trackRef.ID, Props: map[string]any{"role": prod.Role}})
			st.stats.EdgesCreated++
		}
		for _, arr := range t.Arrangers {
			personRef, err := p.resolvePerson(ctx, st, arr.PersonID, arr.Name)
			if err != nil {
				st.stats.Warnings = append(st.stats.Warnings, "unresolvable arranger "+arr.Name+": "+err.Error())
				continue
			}
			_ = st.tx.Relate(ctx, graph.Edge{Kind: graph.EdgeArranged, From: personRef.ID, To: trackRef.ID, Props: map[string]any{"role": arr.Role}})
			st.stats.EdgesCreated++
		}

		if t.RecordingOf != "" {
			songRef, err := p.resolveSongReference(ctx, st, t.RecordingOf)
			if err == nil {
				_ = st.tx.Relate(ctx, graph.Edge{Kind: graph.EdgeRecordingOf, From: trackRef.ID, To: songRef.ID})
				st.stats.EdgesCreated++
			}
		}
		if t.CoverOf != "" {
			songRef, err := p.resolveSongReference(ctx, st, t.CoverOf)
			if err == nil {
				_ = st.tx.Relate(ctx, graph.Edge{Kind: graph.EdgeCoverOf, From: trackRef.ID, To: songRef.ID})
				st.stats.EdgesCreated++
			}
		}
		for _, s := range t.Samples {
			if s.TrackID == "" {
				continue
			}
			_ = st.tx.Relate(ctx, graph.Edge{
				Kind: graph.EdgeSamples, From: trackRef.ID, To: s.TrackID,
				Props: map[string]any{"portion_used": s.PortionUsed, "cleared": s.Cleared, "source": s.Source},
			})
			st.stats.EdgesCreated++
		}
	}
	return nil
}

// resolveSongReference resolves recording_of/cover_of, which may be a title
// or an id (spec §9 Open Question): a song of the same bundle whose title
// matches (case-insensitively) is reused first; otherwise, for a non-id
// title, a new provisional Song is minted.
func (p *Projector) resolveSongReference(ctx context.Context, st *ctxState, raw string) (graph.Ref, error) {
	if ref, ok := st.songRefs[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return ref, nil
	}
	parsed := identity.ParseID(raw)
	if parsed.Valid {
		return identity.Resolve(ctx, st.tx, raw, graph.KindSong, identity.SongFingerprint(raw, ""))
	}
	return p.upsertSong(ctx, st, "", raw, "")
}

// projectPerformingGroup implements the per-track performing-group fan-out
// from spec §4.5 step 4: resolve/upsert the group, link PERFORMED_ON from
// the group itself, then apply explicit overrides and derived propagation.
func (p *Projector) projectPerformingGroup(ctx context.Context, st *ctxState, pg bundle.PerformingGroup, trackID string, trackGuests map[string]bool) error {
	var groupRef graph.Ref
	if existing, ok := st.groupRefs[strings.ToLower(pg.Name)]; ok {
		groupRef = existing
	} else {
		ref, err := p.upsertGroup(ctx, st, pg.ID, pg.Name, nil)
		if err != nil {
			return err
		}
		groupRef = ref
		st.groupRefs[strings.ToLower(pg.Name)] = ref
	}

	claimID := st.ops.ID()
	if err := st.tx.Relate(ctx, graph.Edge{
		Kind: graph.EdgePerformedOn, From: groupRef.ID, To: trackID,
		Props: map[string]any{"credited_as": pg.CreditedAs, "role": pg.Role, "claim_id": claimID},
	}); err != nil {
		return apperr.Wrap(apperr.CodeTransientGraph, "failed to write group PERFORMED_ON", err)
	}
	st.stats.EdgesCreated++

	explicitIDs := map[string]bool{}
	for _, m := range pg.Members {
		personRef, err := p.resolvePerson(ctx, st, m.PersonID, m.Name)
		if err != nil {
			st.stats.Warnings = append(st.stats.Warnings, "unresolvable performer "+m.Name+": "+err.Error())
			continue
		}
		if trackGuests[guestIdentityKey(m.Name, m.PersonID)] {
			continue // already credited as a guest, skip to avoid double-crediting
		}
		explicitIDs[personRef.ID] = true
		if err := st.tx.Relate(ctx, graph.Edge{
			Kind: graph.EdgePerformedOn, From: personRef.ID, To: trackID,
			Props: map[string]any{
				"derived": false, "roles": m.Roles, "role": m.Role, "instruments": m.Instruments,
				"lineup_source": string(graph.LineupTrackExplicit), "via_group_id": groupRef.ID,
			},
		}); err != nil {
			return apperr.Wrap(apperr.CodeTransientGraph, "failed to write explicit PERFORMED_ON", err)
		}
		st.stats.EdgesCreated++
	}

	if pg.MembersAreComplete {
		return nil
	}

	lineup, found := st.releaseLineup[groupRef.ID]
	source := graph.LineupReleaseDefault
	if !found {
		lineup = st.releaseLineupByName[strings.ToLower(pg.Name)]
		source = graph.LineupReleaseDefaultByName
	}

	for _, m := range lineup {
		personRef, err := p.resolvePerson(ctx, st, m.PersonID, m.Name)
		if err != nil {
			st.stats.Warnings = append(st.stats.Warnings, "unresolvable derived member "+m.Name+": "+err.Error())
			continue
		}
		if explicitIDs[personRef.ID] || trackGuests[guestIdentityKey(m.Name, m.PersonID)] {
			continue
		}
		if err := st.tx.Relate(ctx, graph.Edge{
			Kind: graph.EdgePerformedOn, From: personRef.ID, To: trackID,
			Props: map[string]any{
				"derived": true, "roles": m.Roles, "role": m.Role, "instruments": m.Instruments,
				"lineup_source": string(source), "via_group_id": groupRef.ID,
			},
		}); err != nil {
			return apperr.Wrap(apperr.CodeTransientGraph, "failed to write derived PERFORMED_ON", err)
		}
		st.stats.EdgesCreated++
	}
	return nil
}

func guestIdentitySet(guests []bundle.Guest) map[string]bool {
	out := make(map[string]bool, len(guests))
	for _, g := range guests {
		out[guestIdentityKey(g.Name, g.PersonID)] = true
	}
	return out
}

func guestIdentityKey(name, personID string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + personID
}

// --- 5. tracklist -------------------------------------------------------

func (p *Projector) projectTracklist(ctx context.Context, st *ctxState, items []bundle.TracklistItem, releaseID string) error {
	for _, item := range items {
		if err := st.tx.Relate(ctx, graph.Edge{
			Kind: graph.EdgeInRelease, From: item.TrackID, To: releaseID,
			Props: map[string]any{
				"position": item.Position, "disc_number": item.DiscNumber,
				"track_number": item.TrackNumber, "side": item.Side, "is_bonus": item.IsBonus,
			},
		}); err != nil {
			return apperr.Wrap(apperr.CodeTransientGraph, "failed to write IN_RELEASE", err)
		}
		st.stats.EdgesCreated++
	}
	return nil
}

// --- 6. labels and master -------------------------------------------------

func (p *Projector) projectLabelsAndMaster(ctx context.Context, st *ctxState, r bundle.Release, releaseID string) error {
	if r.Master != nil {
		masterRef, err := identity.Resolve(ctx, st.tx, r.Master.ID, graph.KindMaster, identity.NameFingerprint(r.Master.Title))
		if err == nil {
			if uerr := st.tx.Upsert(ctx, graph.Node{
				Kind: graph.KindMaster, ID: masterRef.ID, IDKind: masterRef.IDKind,
				Status: statusFor(masterRef.IDKind), UpdatedAt: st.eventTs, CreatedAt: st.eventTs,
				Props: map[string]any{"title": r.Master.Title},
			}); uerr == nil {
				st.stats.NodesUpserted++
				_ = st.tx.Relate(ctx, graph.Edge{Kind: graph.EdgeInMaster, From: releaseID, To: masterRef.ID})
				st.stats.EdgesCreated++
			}
		}
	}

	labels := r.Labels
	if r.ParentLabel != nil {
		labels = append(labels, *r.ParentLabel)
	}
	for _, l := range labels {
		labelRef, err := p.upsertLabel(ctx, st, l)
		if err != nil {
			st.stats.Warnings = append(st.stats.Warnings, "unresolvable label "+l.Name+": "+err.Error())
			continue
		}
		if err := st.tx.Relate(ctx, graph.Edge{Kind: graph.EdgeReleased, From: labelRef.ID, To: releaseID}); err != nil {
			return apperr.Wrap(apperr.CodeTransientGraph, "failed to write RELEASED", err)
		}
		st.stats.EdgesCreated++
	}
	return nil
}

func (p *Projector) upsertLabel(ctx context.Context, st *ctxState, l bundle.Label) (graph.Ref, error) {
	ref, err := identity.Resolve(ctx, st.tx, l.ID, graph.KindLabel, identity.NameFingerprint(l.Name))
	if err != nil {
		return graph.Ref{}, apperr.Wrap(apperr.CodeResolution, "failed to resolve label id", err)
	}
	if err := st.tx.Upsert(ctx, graph.Node{
		Kind: graph.KindLabel, ID: ref.ID, IDKind: ref.IDKind,
		Status: statusFor(ref.IDKind), UpdatedAt: st.eventTs, CreatedAt: st.eventTs,
		Props: map[string]any{"name": l.Name},
	}); err != nil {
		return graph.Ref{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to upsert label", err)
	}
	st.stats.NodesUpserted++
	if l.OriginCity != nil {
		cityRef, err := p.upsertCity(ctx, st, l.OriginCity)
		if err == nil {
			_ = st.tx.Relate(ctx, graph.Edge{Kind: graph.EdgeOrigin, From: ref.ID, To: cityRef.ID})
			st.stats.EdgesCreated++
		}
	}
	return ref, nil
}

// --- 7. sources -------------------------------------------------------

func (p *Projector) projectSources(ctx context.Context, st *ctxState, sources []bundle.Source, releaseID string) error {
	for _, s := range sources {
		ref, err := identity.Resolve(ctx, st.tx, s.ID, graph.KindSource, identity.SourceFingerprint(s.Name, s.URL))
		if err != nil {
			st.stats.Warnings = append(st.stats.Warnings, "unresolvable source "+s.Name+": "+err.Error())
			continue
		}
		if err := st.tx.Upsert(ctx, graph.Node{
			Kind: graph.KindSource, ID: ref.ID, IDKind: ref.IDKind,
			Status: statusFor(ref.IDKind), UpdatedAt: st.eventTs, CreatedAt: st.eventTs,
			Props: map[string]any{"name": s.Name, "url": s.URL},
		}); err != nil {
			return apperr.Wrap(apperr.CodeTransientGraph, "failed to upsert source", err)
		}
		st.stats.NodesUpserted++
		if err := st.tx.Relate(ctx, graph.Edge{Kind: graph.EdgeSourcedFrom, From: releaseID, To: ref.ID}); err != nil {
			return apperr.Wrap(apperr.CodeTransientGraph, "failed to write SOURCED_FROM", err)
		}
		st.stats.EdgesCreated++
	}
	return nil
}

// --- 8. audit claims ------------------------------------------------------

// writeAuditClaim implements spec §4.5 step 8: inserts a Claim node for the
// "created" operation with the serialized source payload. It is called for
// group and release upserts only; persons, tracks, songs, labels, cities,
// masters and sources get no audit claim. Failures here are logged and never abort the transaction — the
// audit trail is informational, not a graph invariant.
func (p *Projector) writeAuditClaim(ctx context.Context, st *ctxState, kind graph.Kind, nodeID string, payload map[string]any) {
	blob, err := json.Marshal(payload)
	if err != nil {
		return
	}
	claimID := st.ops.ID()
	if err := st.tx.PutClaim(ctx, graphstore.Claim{
		ClaimID: claimID, NodeKind: kind, NodeID: nodeID, Field: "created",
		Value: graph.Value{Kind: graph.ValueBlob, Blob: string(blob)},
		EventHash: st.eventHash, CreatedAt: st.eventTs,
	}); err != nil {
		p.log.WithContext(ctx).Warnf("failed to write audit claim for %s %s: %v", kind, nodeID, err)
		return
	}
	if err := st.tx.Relate(ctx, graph.Edge{Kind: graph.EdgeClaimsAbout, From: claimID, To: nodeID}); err != nil {
		p.log.WithContext(ctx).Warnf("failed to link audit claim for %s %s: %v", kind, nodeID, err)
		return
	}
	st.stats.ClaimsWritten++
}

// --- helpers ------------------------------------------------------------

func (p *Projector) recordExternalIfAny(ctx context.Context, st *ctxState, ref graph.Ref, kind graph.Kind) error {
	if ref.ExternalSource == "" {
		return nil
	}
	if err := st.tx.RecordIdentity(ctx, ref.ExternalSource, kind, ref.ExternalID, ref.ID); err != nil {
		return apperr.Wrap(apperr.CodeTransientGraph, "failed to record identity mapping", err)
	}
	return nil
}

func statusFor(kind graph.IDKind) graph.Status {
	if kind == graph.IDKindProvisional {
		return graph.StatusProvisional
	}
	return graph.StatusActive
}

func identityKindOf(id string) graph.IDKind {
	parsed := identity.ParseID(id)
	switch parsed.Kind {
	case identity.FormCanonical:
		return graph.IDKindCanonical
	case identity.FormExternal:
		return graph.IDKindExternal
	default:
		return graph.IDKindProvisional
	}
}
