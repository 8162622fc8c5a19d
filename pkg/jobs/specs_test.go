package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stumpapp/stump/pkg/models"
)

func TestUnmarshalSpec(t *testing.T) {
	spec, err := UnmarshalSpec(models.JobKindLibraryScan, []byte(`{"library_id":"lib-1","visit_strategy":"REGEN_META"}`))
	require.NoError(t, err)
	scan, ok := spec.(*LibraryScanSpec)
	require.True(t, ok)
	assert.Equal(t, "lib-1", scan.LibraryID)
	assert.Equal(t, models.VisitStrategyRegenMeta, scan.VisitStrategy)

	spec, err = UnmarshalSpec(models.JobKindSeriesScan, []byte(`{"series_id":"ser-1"}`))
	require.NoError(t, err)
	series, ok := spec.(*SeriesScanSpec)
	require.True(t, ok)
	assert.Equal(t, "ser-1", series.SeriesID)

	spec, err = UnmarshalSpec(models.JobKindThumbnailGeneration, []byte(`{"media_ids":["m1","m2"],"force":true}`))
	require.NoError(t, err)
	thumbs, ok := spec.(*ThumbnailGenerationSpec)
	require.True(t, ok)
	assert.Equal(t, []string{"m1", "m2"}, thumbs.MediaIDs)
	assert.True(t, thumbs.Force)

	spec, err = UnmarshalSpec(models.JobKindAnalyzeMedia, []byte(`{"media_id":"m1"}`))
	require.NoError(t, err)
	analyze, ok := spec.(*AnalyzeMediaSpec)
	require.True(t, ok)
	assert.Equal(t, "m1", analyze.MediaID)
}

func TestUnmarshalSpec_EmptyParams(t *testing.T) {
	spec, err := UnmarshalSpec(models.JobKindLibraryScan, nil)
	require.NoError(t, err)
	scan, ok := spec.(*LibraryScanSpec)
	require.True(t, ok)
	assert.Empty(t, scan.LibraryID)
}

func TestUnmarshalSpec_UnknownKind(t *testing.T) {
	_, err := UnmarshalSpec("defragment", nil)
	assert.Error(t, err)
}

func TestUnmarshalSpec_InvalidParams(t *testing.T) {
	_, err := UnmarshalSpec(models.JobKindLibraryScan, []byte(`{"library_id":`))
	assert.Error(t, err)
}

func TestFingerprints(t *testing.T) {
	a := &LibraryScanSpec{LibraryID: "lib-1"}
	b := &LibraryScanSpec{LibraryID: "lib-1", VisitStrategy: models.VisitStrategyRegenHashes}
	c := &LibraryScanSpec{LibraryID: "lib-2"}

	// The visit strategy does not change which work is in flight.
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	// A series scan of the same target is distinct work.
	s := &SeriesScanSpec{SeriesID: "lib-1"}
	assert.NotEqual(t, a.Fingerprint(), s.Fingerprint())

	// Forced thumbnail regeneration never collapses onto a non-forced run.
	t1 := &ThumbnailGenerationSpec{LibraryID: "lib-1"}
	t2 := &ThumbnailGenerationSpec{LibraryID: "lib-1", Force: true}
	assert.NotEqual(t, t1.Fingerprint(), t2.Fingerprint())

	m1 := &ThumbnailGenerationSpec{MediaIDs: []string{"m1", "m2"}}
	m2 := &ThumbnailGenerationSpec{MediaIDs: []string{"m1", "m2"}}
	m3 := &ThumbnailGenerationSpec{MediaIDs: []string{"m3"}}
	assert.Equal(t, m1.Fingerprint(), m2.Fingerprint())
	assert.NotEqual(t, m1.Fingerprint(), m3.Fingerprint())
}

func TestSpecKindsMatchJobKinds(t *testing.T) {
	assert.Equal(t, models.JobKindLibraryScan, (&LibraryScanSpec{}).Kind())
	assert.Equal(t, models.JobKindSeriesScan, (&SeriesScanSpec{}).Kind())
	assert.Equal(t, models.JobKindThumbnailGeneration, (&ThumbnailGenerationSpec{}).Kind())
	assert.Equal(t, models.JobKindAnalyzeMedia, (&AnalyzeMediaSpec{}).Kind())
}
