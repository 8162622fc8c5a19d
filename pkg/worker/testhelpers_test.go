package worker

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stumpapp/stump/internal/testgen"
	"github.com/stumpapp/stump/pkg/cbz"
	"github.com/stumpapp/stump/pkg/config"
	"github.com/stumpapp/stump/pkg/events"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/stumpapp/stump/pkg/libraries"
	"github.com/stumpapp/stump/pkg/media"
	"github.com/stumpapp/stump/pkg/mediafile"
	"github.com/stumpapp/stump/pkg/migrations"
	"github.com/stumpapp/stump/pkg/models"
	"github.com/stumpapp/stump/pkg/rar"
	"github.com/stumpapp/stump/pkg/series"
	"github.com/stumpapp/stump/pkg/thumbnail"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// testContext wires a controller against an in-memory database and real
// temp-dir libraries.
type testContext struct {
	t   *testing.T
	ctx context.Context
	db  *bun.DB
	cfg *config.Config
	bus *events.Bus

	controller *Controller
	thumbnails *thumbnail.Generator

	jobService     *jobs.Service
	libraryService *libraries.Service
	seriesService  *series.Service
	mediaService   *media.Service
}

func newTestContext(t *testing.T) *testContext {
	tc := newUnstartedTestContext(t)
	tc.start()
	return tc
}

// newUnstartedTestContext builds everything but leaves the controller
// stopped, so tests can seed job rows that Start has to restore.
func newUnstartedTestContext(t *testing.T) *testContext {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	cfg := config.NewForTest()
	cfg.PersistEveryTasks = 1
	cfg.ThumbnailChunk = 2
	cfg.WorkerParallelism = 2
	cfg.ShutdownDeadline = 5 * time.Second

	dispatch := mediafile.NewDispatch()
	dispatch.Register(cbz.New(), "cbz", "zip")
	dispatch.Register(rar.New(), "cbr", "rar")

	bus := events.NewBus()
	thumbnails := thumbnail.NewGenerator(t.TempDir(), dispatch)

	return &testContext{
		t:   t,
		ctx: context.Background(),
		db:  db,
		cfg: cfg,
		bus: bus,

		controller: NewController(cfg, db, bus, dispatch, thumbnails),
		thumbnails: thumbnails,

		jobService:     jobs.NewService(db),
		libraryService: libraries.NewService(db),
		seriesService:  series.NewService(db),
		mediaService:   media.NewService(db),
	}
}

func (tc *testContext) start() {
	tc.t.Helper()

	require.NoError(tc.t, tc.controller.Start(tc.ctx))
	tc.t.Cleanup(func() {
		tc.controller.Shutdown(context.Background()) //nolint:errcheck
	})
}

func (tc *testContext) createLibrary(path string, mutate func(*models.Library)) *models.Library {
	tc.t.Helper()

	library := &models.Library{
		Name: "Test Library",
		Path: path,
	}
	if mutate != nil {
		mutate(library)
	}
	require.NoError(tc.t, tc.libraryService.CreateLibrary(tc.ctx, library))
	return library
}

// runAndWait enqueues a job and blocks until it reaches a terminal status.
func (tc *testContext) runAndWait(spec jobs.Spec) *models.Job {
	tc.t.Helper()

	queued, err := tc.controller.Enqueue(tc.ctx, spec)
	require.NoError(tc.t, err)
	return tc.waitForFinished(queued.ID)
}

func (tc *testContext) getJob(jobID string) *models.Job {
	tc.t.Helper()

	job, err := tc.jobService.RetrieveJob(tc.ctx, jobs.RetrieveJobOptions{ID: &jobID})
	require.NoError(tc.t, err)
	return job
}

func (tc *testContext) waitForFinished(jobID string) *models.Job {
	tc.t.Helper()

	var job *models.Job
	tc.waitFor(func() bool {
		job = tc.getJob(jobID)
		return job.IsFinished()
	}, "job %s never finished", jobID)
	return job
}

func (tc *testContext) waitForJobStatus(jobID, status string) *models.Job {
	tc.t.Helper()

	var job *models.Job
	tc.waitFor(func() bool {
		job = tc.getJob(jobID)
		return job.Status == status
	}, "job %s never reached %s", jobID, status)
	return job
}

func (tc *testContext) waitFor(cond func() bool, format string, args ...interface{}) {
	tc.t.Helper()

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	tc.t.Fatalf(format, args...)
}

func (tc *testContext) listSeries(libraryID string) []*models.Series {
	tc.t.Helper()

	rows, err := tc.seriesService.ListSeries(tc.ctx, series.ListSeriesOptions{LibraryID: &libraryID})
	require.NoError(tc.t, err)
	return rows
}

func (tc *testContext) listMedia(libraryID string) []*models.Media {
	tc.t.Helper()

	rows, err := tc.mediaService.ListMedia(tc.ctx, media.ListMediaOptions{LibraryID: &libraryID})
	require.NoError(tc.t, err)
	return rows
}

func (tc *testContext) mediaByName(libraryID string) map[string]*models.Media {
	tc.t.Helper()

	byName := map[string]*models.Media{}
	for _, row := range tc.listMedia(libraryID) {
		byName[row.Name] = row
	}
	return byName
}

func (tc *testContext) subscribeEvents() <-chan events.Event {
	ch, cancel := tc.bus.Subscribe(256)
	tc.t.Cleanup(cancel)
	return ch
}

// waitForEvent drains the stream until an event of the given kind arrives.
func (tc *testContext) waitForEvent(ch <-chan events.Event, kind string) events.Event {
	tc.t.Helper()

	timeout := time.After(15 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-timeout:
			tc.t.Fatalf("event %s never arrived", kind)
			return events.Event{}
		}
	}
}

// collectEventsUntil tallies event kinds until the sentinel kind arrives,
// inclusive.
func (tc *testContext) collectEventsUntil(ch <-chan events.Event, kind string) map[string]int {
	tc.t.Helper()

	kinds := map[string]int{}
	timeout := time.After(15 * time.Second)
	for {
		select {
		case evt := <-ch:
			kinds[evt.Kind]++
			if evt.Kind == kind {
				return kinds
			}
		case <-timeout:
			tc.t.Fatalf("event %s never arrived", kind)
			return kinds
		}
	}
}

// seedWideLibrary writes a tree big enough that a scan of it is reliably
// still in flight when the test issues its next controller command.
func seedWideLibrary(t *testing.T) string {
	t.Helper()

	dir := testgen.TempLibraryDir(t)
	for i := 0; i < 25; i++ {
		seriesDir := testgen.CreateSubDir(t, dir, fmt.Sprintf("Series %02d", i))
		testgen.GenerateCBZ(t, seriesDir, "01.cbz", testgen.CBZOptions{PageCount: 1})
		testgen.GenerateCBZ(t, seriesDir, "02.cbz", testgen.CBZOptions{PageCount: 1})
	}
	return dir
}
