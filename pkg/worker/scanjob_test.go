package worker

import (
	"os"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stumpapp/stump/internal/testgen"
	"github.com/stumpapp/stump/pkg/events"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/stumpapp/stump/pkg/libraries"
	"github.com/stumpapp/stump/pkg/models"
	"github.com/stumpapp/stump/pkg/scanner"
)

func TestLibraryScanJob_FreshTree(t *testing.T) {
	tc := newTestContext(t)
	ch := tc.subscribeEvents()

	dir := testgen.TempLibraryDir(t)
	seriesDir := testgen.CreateSubDir(t, dir, "Space Saga")
	testgen.GenerateCBZ(t, seriesDir, "01.cbz", testgen.CBZOptions{
		PageCount:    5,
		HasComicInfo: true,
		Title:        "Issue One",
		Writer:       "Ada Vale",
	})
	testgen.GenerateCBZ(t, seriesDir, "02.cbz", testgen.CBZOptions{PageCount: 3})

	library := tc.createLibrary(dir, func(l *models.Library) {
		l.ProcessMetadata = true
	})

	job := tc.runAndWait(&jobs.LibraryScanSpec{LibraryID: library.ID})
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.TotalTasks)
	assert.Equal(t, 3, job.CompletedTasks)
	require.NotNil(t, job.CompletedAt)

	allSeries := tc.listSeries(library.ID)
	require.Len(t, allSeries, 1)
	assert.Equal(t, "Space Saga", allSeries[0].Name)
	assert.Equal(t, models.EntityStatusReady, allSeries[0].Status)

	byName := tc.mediaByName(library.ID)
	require.Len(t, byName, 2)

	first := byName["01.cbz"]
	require.NotNil(t, first)
	assert.Equal(t, 5, first.Pages)
	assert.Equal(t, models.EntityStatusReady, first.Status)
	require.NotNil(t, first.Title)
	assert.Equal(t, "Issue One", *first.Title)
	require.NotNil(t, first.Writers)
	assert.Equal(t, "Ada Vale", *first.Writers)

	second := byName["02.cbz"]
	require.NotNil(t, second)
	assert.Equal(t, 3, second.Pages)
	assert.Nil(t, second.Title)

	var counts scanCounts
	require.NoError(t, json.Unmarshal([]byte(job.OutputData), &counts))
	assert.Equal(t, 1, counts.SeriesCreated)
	assert.Equal(t, 2, counts.MediaCreated)
	assert.Equal(t, 0, counts.FileErrors)

	// The bus saw the whole lifecycle.
	kinds := tc.collectEventsUntil(ch, events.KindJobCompleted)
	assert.Equal(t, 1, kinds[events.KindJobStarted])
	assert.Equal(t, 1, kinds[events.KindSeriesCreated])
	assert.Equal(t, 2, kinds[events.KindMediaCreated])
	assert.Equal(t, 3, kinds[events.KindJobProgress])
	assert.Equal(t, 1, kinds[events.KindScanCompleted])
}

func TestLibraryScanJob_RescanIsIdempotent(t *testing.T) {
	tc := newTestContext(t)

	dir := testgen.TempLibraryDir(t)
	seriesDir := testgen.CreateSubDir(t, dir, "Series A")
	testgen.GenerateCBZ(t, seriesDir, "01.cbz", testgen.CBZOptions{PageCount: 2})

	library := tc.createLibrary(dir, nil)
	first := tc.runAndWait(&jobs.LibraryScanSpec{LibraryID: library.ID})
	require.Equal(t, models.JobStatusCompleted, first.Status)

	second := tc.runAndWait(&jobs.LibraryScanSpec{LibraryID: library.ID})
	assert.Equal(t, models.JobStatusCompleted, second.Status)
	assert.Equal(t, 0, second.TotalTasks)

	assert.Len(t, tc.listSeries(library.ID), 1)
	assert.Len(t, tc.listMedia(library.ID), 1)
}

func TestLibraryScanJob_RemovedAndReappearedFile(t *testing.T) {
	tc := newTestContext(t)

	dir := testgen.TempLibraryDir(t)
	seriesDir := testgen.CreateSubDir(t, dir, "Series A")
	testgen.GenerateCBZ(t, seriesDir, "01.cbz", testgen.CBZOptions{PageCount: 2})
	removable := testgen.GenerateCBZ(t, seriesDir, "02.cbz", testgen.CBZOptions{PageCount: 3})

	library := tc.createLibrary(dir, nil)
	first := tc.runAndWait(&jobs.LibraryScanSpec{LibraryID: library.ID})
	require.Equal(t, models.JobStatusCompleted, first.Status)

	require.NoError(t, os.Remove(removable))
	second := tc.runAndWait(&jobs.LibraryScanSpec{LibraryID: library.ID})
	assert.Equal(t, models.JobStatusCompleted, second.Status)

	byName := tc.mediaByName(library.ID)
	require.Len(t, byName, 2)
	assert.Equal(t, models.EntityStatusReady, byName["01.cbz"].Status)
	assert.Equal(t, models.EntityStatusMissing, byName["02.cbz"].Status)

	var counts scanCounts
	require.NoError(t, json.Unmarshal([]byte(second.OutputData), &counts))
	assert.Equal(t, 1, counts.MediaMissing)

	// The file coming back with different contents flips the row to READY
	// through the update path.
	testgen.GenerateCBZ(t, seriesDir, "02.cbz", testgen.CBZOptions{PageCount: 5})
	third := tc.runAndWait(&jobs.LibraryScanSpec{LibraryID: library.ID})
	assert.Equal(t, models.JobStatusCompleted, third.Status)

	byName = tc.mediaByName(library.ID)
	require.Len(t, byName, 2)
	assert.Equal(t, models.EntityStatusReady, byName["02.cbz"].Status)
	assert.Equal(t, 5, byName["02.cbz"].Pages)
}

func TestLibraryScanJob_ChangedFileUpdated(t *testing.T) {
	tc := newTestContext(t)

	dir := testgen.TempLibraryDir(t)
	seriesDir := testgen.CreateSubDir(t, dir, "Series A")
	testgen.GenerateCBZ(t, seriesDir, "01.cbz", testgen.CBZOptions{PageCount: 2})

	library := tc.createLibrary(dir, nil)
	first := tc.runAndWait(&jobs.LibraryScanSpec{LibraryID: library.ID})
	require.Equal(t, models.JobStatusCompleted, first.Status)

	testgen.GenerateCBZ(t, seriesDir, "01.cbz", testgen.CBZOptions{PageCount: 4})
	second := tc.runAndWait(&jobs.LibraryScanSpec{LibraryID: library.ID})
	assert.Equal(t, models.JobStatusCompleted, second.Status)

	rows := tc.listMedia(library.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0].Pages)

	var counts scanCounts
	require.NoError(t, json.Unmarshal([]byte(second.OutputData), &counts))
	assert.Equal(t, 1, counts.MediaUpdated)
}

func TestLibraryScanJob_IgnoreRules(t *testing.T) {
	tc := newTestContext(t)

	dir := testgen.TempLibraryDir(t)
	seriesDir := testgen.CreateSubDir(t, dir, "Series A")
	testgen.GenerateCBZ(t, seriesDir, "01.cbz", testgen.CBZOptions{PageCount: 2})
	testgen.GenerateCBZ(t, seriesDir, "draft.cbz", testgen.CBZOptions{PageCount: 1})
	testgen.WriteFile(t, dir, scanner.IgnoreFileName, []byte("Series A/draft.cbz\n"))

	library := tc.createLibrary(dir, nil)
	job := tc.runAndWait(&jobs.LibraryScanSpec{LibraryID: library.ID})
	assert.Equal(t, models.JobStatusCompleted, job.Status)

	byName := tc.mediaByName(library.ID)
	require.Len(t, byName, 1)
	assert.NotNil(t, byName["01.cbz"])
}

func TestLibraryScanJob_CorruptFile(t *testing.T) {
	tc := newTestContext(t)

	dir := testgen.TempLibraryDir(t)
	seriesDir := testgen.CreateSubDir(t, dir, "Series A")
	testgen.GenerateCBZ(t, seriesDir, "01.cbz", testgen.CBZOptions{PageCount: 2})
	testgen.GenerateCorruptCBZ(t, seriesDir, "broken.cbz")

	library := tc.createLibrary(dir, nil)
	job := tc.runAndWait(&jobs.LibraryScanSpec{LibraryID: library.ID})

	// A bad file is recorded on its row, not fatal to the job.
	assert.Equal(t, models.JobStatusCompleted, job.Status)

	byName := tc.mediaByName(library.ID)
	require.Len(t, byName, 2)
	assert.Equal(t, models.EntityStatusReady, byName["01.cbz"].Status)

	broken := byName["broken.cbz"]
	assert.Equal(t, models.EntityStatusError, broken.Status)
	require.NotNil(t, broken.StatusReason)
	assert.NotEmpty(t, *broken.StatusReason)

	var counts scanCounts
	require.NoError(t, json.Unmarshal([]byte(job.OutputData), &counts))
	assert.Equal(t, 1, counts.FileErrors)
}

func TestLibraryScanJob_SeriesJSONApplied(t *testing.T) {
	tc := newTestContext(t)

	dir := testgen.TempLibraryDir(t)
	seriesDir := testgen.CreateSubDir(t, dir, "Raw Folder Name")
	testgen.GenerateCBZ(t, seriesDir, "01.cbz", testgen.CBZOptions{PageCount: 1})
	testgen.WriteFile(t, seriesDir, "series.json", []byte(`{
		"name": "Proper Series Name",
		"publisher": "Cosmic Press",
		"age_rating": "Mature 17+"
	}`))

	library := tc.createLibrary(dir, nil)
	job := tc.runAndWait(&jobs.LibraryScanSpec{LibraryID: library.ID})
	require.Equal(t, models.JobStatusCompleted, job.Status)

	allSeries := tc.listSeries(library.ID)
	require.Len(t, allSeries, 1)
	row := allSeries[0]
	assert.Equal(t, "Proper Series Name", row.Name)
	require.NotNil(t, row.Publisher)
	assert.Equal(t, "Cosmic Press", *row.Publisher)
	require.NotNil(t, row.AgeRating)
	assert.Equal(t, 17, *row.AgeRating)
}

func TestLibraryScanJob_ConvertsBadCBR(t *testing.T) {
	tc := newTestContext(t)

	dir := testgen.TempLibraryDir(t)
	seriesDir := testgen.CreateSubDir(t, dir, "Series A")
	testgen.GenerateCBZ(t, seriesDir, "01.cbz", testgen.CBZOptions{PageCount: 1})
	testgen.WriteFile(t, seriesDir, "02.cbr", []byte("not an archive at all"))

	library := tc.createLibrary(dir, func(l *models.Library) {
		l.ConvertRARToZip = true
	})
	job := tc.runAndWait(&jobs.LibraryScanSpec{LibraryID: library.ID})
	assert.Equal(t, models.JobStatusCompleted, job.Status)

	// The unconvertible archive ends up as an ERROR row for the original
	// path; the good neighbor is unaffected.
	byName := tc.mediaByName(library.ID)
	require.Len(t, byName, 2)
	assert.Equal(t, models.EntityStatusReady, byName["01.cbz"].Status)

	bad := byName["02.cbr"]
	require.NotNil(t, bad)
	assert.Equal(t, models.EntityStatusError, bad.Status)
	assert.Equal(t, "cbr", bad.Extension)
	require.NotNil(t, bad.StatusReason)
}

func TestSeriesScanJob_ScopedToOneSeries(t *testing.T) {
	tc := newTestContext(t)

	dir := testgen.TempLibraryDir(t)
	dirA := testgen.CreateSubDir(t, dir, "Series A")
	dirB := testgen.CreateSubDir(t, dir, "Series B")
	testgen.GenerateCBZ(t, dirA, "01.cbz", testgen.CBZOptions{PageCount: 1})
	testgen.GenerateCBZ(t, dirB, "01.cbz", testgen.CBZOptions{PageCount: 1})

	library := tc.createLibrary(dir, nil)
	first := tc.runAndWait(&jobs.LibraryScanSpec{LibraryID: library.ID})
	require.Equal(t, models.JobStatusCompleted, first.Status)

	var scoped *models.Series
	for _, row := range tc.listSeries(library.ID) {
		if row.Name == "Series A" {
			scoped = row
		}
	}
	require.NotNil(t, scoped)

	// New files land in both series, but the scoped scan only picks up its
	// own.
	testgen.GenerateCBZ(t, dirA, "02.cbz", testgen.CBZOptions{PageCount: 1})
	testgen.GenerateCBZ(t, dirB, "02.cbz", testgen.CBZOptions{PageCount: 1})

	job := tc.runAndWait(&jobs.SeriesScanSpec{SeriesID: scoped.ID})
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, models.JobKindSeriesScan, job.Kind)
	assert.Equal(t, 1, job.TotalTasks)

	counts := map[string]int{}
	for _, row := range tc.listMedia(library.ID) {
		assert.Equal(t, models.EntityStatusReady, row.Status)
		counts[row.SeriesID]++
	}
	assert.Equal(t, 2, counts[scoped.ID])
	assert.Equal(t, 2, len(counts))
}

func TestLibraryScanJob_MissingRoot(t *testing.T) {
	tc := newTestContext(t)

	dir := testgen.TempLibraryDir(t)
	seriesDir := testgen.CreateSubDir(t, dir, "Series A")
	testgen.GenerateCBZ(t, seriesDir, "01.cbz", testgen.CBZOptions{PageCount: 1})

	library := tc.createLibrary(dir, nil)
	first := tc.runAndWait(&jobs.LibraryScanSpec{LibraryID: library.ID})
	require.Equal(t, models.JobStatusCompleted, first.Status)

	require.NoError(t, os.RemoveAll(dir))
	second := tc.runAndWait(&jobs.LibraryScanSpec{LibraryID: library.ID})
	assert.Equal(t, models.JobStatusCompleted, second.Status)

	allSeries := tc.listSeries(library.ID)
	require.Len(t, allSeries, 1)
	assert.Equal(t, models.EntityStatusMissing, allSeries[0].Status)

	rows := tc.listMedia(library.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, models.EntityStatusMissing, rows[0].Status)

	refreshed, err := tc.libraryService.RetrieveLibrary(tc.ctx, libraries.RetrieveLibraryOptions{ID: &library.ID})
	require.NoError(t, err)
	assert.Equal(t, models.EntityStatusMissing, refreshed.Status)
}
