package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() []byte {
	return []byte(`{
		"release": {"name": "R", "release_date": "2000-01-01"},
		"tracks": [{"track_id": "t1", "title": "A", "duration": 100}],
		"tracklist": [{"position": "A1", "track_title": "A", "track_id": "t1"}]
	}`)
}

func TestValidateAcceptsWellFormedBundle(t *testing.T) {
	payload := validPayload()
	b, err := Normalize(payload, nil)
	require.NoError(t, err)
	assert.NoError(t, Validate(payload, b))
}

func TestValidateRejectsUnknownField(t *testing.T) {
	payload := []byte(`{
		"release": {"name": "R", "bogus_field": 1},
		"tracks": [{"track_id": "t1", "title": "A"}],
		"tracklist": [{"position": "1", "track_title": "A", "track_id": "t1"}]
	}`)
	b, err := Normalize(payload, nil)
	require.NoError(t, err)
	err = Validate(payload, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release.bogus_field")
}

func TestValidateRejectsEmptyTracks(t *testing.T) {
	b := &Bundle{Release: Release{Name: "R"}}
	err := Validate([]byte(`{"release":{"name":"R"}}`), b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tracks")
}

func TestValidateRejectsOutOfRangeLatitude(t *testing.T) {
	payload := []byte(`{
		"release": {"name": "R", "origin_city": {"name": "X", "lat": 200, "lon": 10}},
		"tracks": [{"track_id": "t1", "title": "A"}],
		"tracklist": [{"position": "1", "track_title": "A", "track_id": "t1"}]
	}`)
	b, err := Normalize(payload, nil)
	require.NoError(t, err)
	err = Validate(payload, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lat")
}

func TestValidateRejectsTracklistReferencingUnknownTrack(t *testing.T) {
	b := &Bundle{
		Release:   Release{Name: "R"},
		Tracks:    []Track{{TrackID: "t1", Title: "A"}},
		Tracklist: []TracklistItem{{Position: "1", TrackTitle: "B", TrackID: "t2"}},
	}
	err := Validate([]byte(`{"release":{"name":"R"}}`), b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracklist[0].track_id")
}
