package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainledger/musicgraph/domain/graph"
)

func TestParseIDCanonical(t *testing.T) {
	p := ParseID("chainledger:person:9f1c2e4a-1111-4444-8888-abcdefabcdef")
	assert.Equal(t, FormCanonical, p.Kind)
	assert.Equal(t, graph.KindPerson, p.EntityKind)
	assert.True(t, p.Valid)
}

func TestParseIDProvisional(t *testing.T) {
	p := ParseID("prov:track:abcdef0123456789")
	assert.Equal(t, FormProvisional, p.Kind)
	assert.Equal(t, graph.KindTrack, p.EntityKind)
}

func TestParseIDProvisionalISRCFastPath(t *testing.T) {
	p := ParseID("prov:track:isrc:usrc17607839")
	assert.Equal(t, FormProvisional, p.Kind)
	assert.Equal(t, graph.KindTrack, p.EntityKind)
}

func TestParseIDExternal(t *testing.T) {
	p := ParseID("discogs:person:1234")
	assert.Equal(t, FormExternal, p.Kind)
	assert.Equal(t, graph.KindPerson, p.EntityKind)
	assert.Equal(t, "discogs", p.Source)
	assert.Equal(t, "1234", p.ExternalID)
}

func TestParseIDExternalWithSubkind(t *testing.T) {
	p := ParseID("musicbrainz:release:group:abcd-1234")
	assert.Equal(t, FormExternal, p.Kind)
	assert.Equal(t, "group", p.ExternalType)
	assert.Equal(t, "abcd-1234", p.ExternalID)
}

func TestParseIDInvalid(t *testing.T) {
	for _, s := range []string{"", "nope", "prov:unknownkind:abc", "chainledger:bogus:xyz"} {
		p := ParseID(s)
		assert.Equal(t, FormInvalid, p.Kind, "expected %q to be invalid", s)
	}
}

func TestMakeProvisionalIDDeterministic(t *testing.T) {
	fp1 := PersonFingerprint("  John  Lennon ", 1940)
	fp2 := PersonFingerprint("john lennon", 1940)
	id1 := MakeProvisionalID(graph.KindPerson, fp1)
	id2 := MakeProvisionalID(graph.KindPerson, fp2)
	assert.Equal(t, id1, id2, "fingerprint normalization should make whitespace/case irrelevant")
	assert.Regexp(t, `^prov:person:[0-9a-f]{16}$`, id1)
}

func TestTrackFingerprintDiffersByReleaseAndPosition(t *testing.T) {
	a := MakeProvisionalID(graph.KindTrack, TrackFingerprint("Yesterday", "rel-1", "A1"))
	b := MakeProvisionalID(graph.KindTrack, TrackFingerprint("Yesterday", "rel-2", "A1"))
	assert.NotEqual(t, a, b)
}

func TestTrackISRCID(t *testing.T) {
	assert.Equal(t, "prov:track:isrc:usrc17607839", TrackISRCID("USRC17607839"))
}

type fakeResolver struct {
	mapping map[string]string
	calls   int
}

func (f *fakeResolver) ResolveIdentity(_ context.Context, source string, kind graph.Kind, externalID string) (string, bool, error) {
	f.calls++
	key := source + ":" + string(kind) + ":" + externalID
	if id, ok := f.mapping[key]; ok {
		return id, true, nil
	}
	return "", false, nil
}

func TestResolveCanonicalWins(t *testing.T) {
	r := &fakeResolver{mapping: map[string]string{}}
	ref, err := Resolve(context.Background(), r, "chainledger:person:abc", graph.KindPerson, PersonFingerprint("x", 0))
	require.NoError(t, err)
	assert.Equal(t, "chainledger:person:abc", ref.ID)
	assert.Equal(t, graph.IDKindCanonical, ref.IDKind)
	assert.Equal(t, 0, r.calls, "canonical id should never touch the resolver")
}

func TestResolveExternalHit(t *testing.T) {
	r := &fakeResolver{mapping: map[string]string{"discogs:person:42": "chainledger:person:resolved"}}
	ref, err := Resolve(context.Background(), r, "discogs:person:42", graph.KindPerson, PersonFingerprint("x", 0))
	require.NoError(t, err)
	assert.Equal(t, "chainledger:person:resolved", ref.ID)
	assert.Equal(t, graph.IDKindCanonical, ref.IDKind)
}

func TestResolveExternalMissFallsBackToProvisional(t *testing.T) {
	r := &fakeResolver{mapping: map[string]string{}}
	fp := PersonFingerprint("Jane Doe", 1990)
	ref, err := Resolve(context.Background(), r, "discogs:person:99", graph.KindPerson, fp)
	require.NoError(t, err)
	assert.Equal(t, graph.IDKindProvisional, ref.IDKind)
	assert.Equal(t, MakeProvisionalID(graph.KindPerson, fp), ref.ID)
	assert.Equal(t, "discogs", ref.ExternalSource)
	assert.Equal(t, "99", ref.ExternalID)
}

func TestResolveNoInputMintsProvisional(t *testing.T) {
	r := &fakeResolver{}
	fp := GroupFingerprint("The Beatles")
	ref, err := Resolve(context.Background(), r, "", graph.KindGroup, fp)
	require.NoError(t, err)
	assert.Equal(t, graph.IDKindProvisional, ref.IDKind)
	assert.Equal(t, MakeProvisionalID(graph.KindGroup, fp), ref.ID)
}
