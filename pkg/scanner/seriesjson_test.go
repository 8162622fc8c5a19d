package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stumpapp/stump/internal/testgen"
	"github.com/stumpapp/stump/pkg/mediafile"
	"github.com/stumpapp/stump/pkg/models"
)

func TestReadSeriesMetadata(t *testing.T) {
	dir := t.TempDir()
	testgen.WriteFile(t, dir, SeriesMetadataFilename, []byte(`{
		"type": "comicSeries",
		"name": "Monstress",
		"description": "Set in an alternate world.",
		"publisher": "Image Comics",
		"imprint": "Image",
		"age_rating": 17,
		"status": "ONGOING"
	}`))

	meta, err := ReadSeriesMetadata(dir)
	require.NoError(t, err)
	require.NotNil(t, meta)

	assert.Equal(t, "comicSeries", *meta.Type)
	assert.Equal(t, "Monstress", *meta.Name)
	assert.Equal(t, "Image Comics", *meta.Publisher)
	require.NotNil(t, meta.AgeRating)
	require.NotNil(t, meta.AgeRating.Age)
	assert.Equal(t, 17, *meta.AgeRating.Age)
	assert.Equal(t, "ONGOING", *meta.Status)
}

func TestReadSeriesMetadata_Missing(t *testing.T) {
	meta, err := ReadSeriesMetadata(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestReadSeriesMetadata_Malformed(t *testing.T) {
	dir := t.TempDir()
	testgen.WriteFile(t, dir, SeriesMetadataFilename, []byte(`{"name": `))

	_, err := ReadSeriesMetadata(dir)
	require.Error(t, err)
	assert.True(t, mediafile.IsKind(err, mediafile.ErrorKindMetadataParse))
}

func TestAgeRating_Phrases(t *testing.T) {
	cases := []struct {
		raw  string
		want *int
	}{
		{`{"age_rating": 12}`, testgen.IntPtr(12)},
		{`{"age_rating": "16+"}`, testgen.IntPtr(16)},
		{`{"age_rating": "Mature 17+"}`, testgen.IntPtr(17)},
		{`{"age_rating": "all ages"}`, testgen.IntPtr(0)},
		{`{"age_rating": "not a rating"}`, nil},
	}

	dir := t.TempDir()
	for _, tc := range cases {
		testgen.WriteFile(t, dir, SeriesMetadataFilename, []byte(tc.raw))
		meta, err := ReadSeriesMetadata(dir)
		require.NoError(t, err, tc.raw)
		require.NotNil(t, meta.AgeRating, tc.raw)
		if tc.want == nil {
			assert.Nil(t, meta.AgeRating.Age, tc.raw)
		} else {
			require.NotNil(t, meta.AgeRating.Age, tc.raw)
			assert.Equal(t, *tc.want, *meta.AgeRating.Age, tc.raw)
		}
	}
}

func TestSeriesMetadata_Apply(t *testing.T) {
	series := &models.Series{Name: "Series A"}

	meta := &SeriesMetadata{
		Name:        testgen.StringPtr("Monstress"),
		Description: testgen.StringPtr("Set in an alternate world."),
		Publisher:   testgen.StringPtr("Image Comics"),
		AgeRating:   &AgeRating{Age: testgen.IntPtr(17)},
		Status:      testgen.StringPtr("ONGOING"),
	}
	meta.Apply(series)

	assert.Equal(t, "Monstress", series.Name)
	assert.Equal(t, "Set in an alternate world.", *series.Description)
	assert.Equal(t, "Image Comics", *series.Publisher)
	assert.Equal(t, 17, *series.AgeRating)
	assert.Equal(t, "ONGOING", *series.MetaStatus)
}

func TestSeriesMetadata_ApplyBlankNameKeepsFolderName(t *testing.T) {
	series := &models.Series{Name: "Series A"}

	meta := &SeriesMetadata{Name: testgen.StringPtr("   ")}
	meta.Apply(series)

	assert.Equal(t, "Series A", series.Name)
}
