// Package worker runs background jobs: library and series scans, thumbnail
// generation, and media analysis. The Controller serializes commands and
// keeps at most one job running; the worker drains a job's task list
// cooperatively, checkpointing progress so an interrupted job can resume.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/stumpapp/stump/pkg/config"
	"github.com/stumpapp/stump/pkg/events"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/stumpapp/stump/pkg/joblogs"
	"github.com/stumpapp/stump/pkg/libraries"
	"github.com/stumpapp/stump/pkg/media"
	"github.com/stumpapp/stump/pkg/mediafile"
	"github.com/stumpapp/stump/pkg/models"
	"github.com/stumpapp/stump/pkg/scanner"
	"github.com/stumpapp/stump/pkg/series"
	"github.com/stumpapp/stump/pkg/thumbnail"
	"github.com/uptrace/bun"
)

// runner executes one job kind. init plans the work and returns the task
// total; on resume it is handed the saved plan instead of replanning. step
// executes one task; file-level failures are recorded on rows and logged, so
// an error return means the task itself failed (DB down, invariant broken).
// state serializes the plan for checkpoints. finalize runs once after the
// last task and returns the job's output summary.
type runner interface {
	init(ctx context.Context, saved json.RawMessage) (int, error)
	step(ctx context.Context, index int) error
	state() (json.RawMessage, error)
	finalize(ctx context.Context) (json.RawMessage, error)
}

// saveState is the envelope persisted into jobs.save_state. Params carries
// the job spec so the queue can be rebuilt after a restart; State carries the
// runner's serialized plan.
type saveState struct {
	Params    json.RawMessage `json:"params,omitempty"`
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
	State     json.RawMessage `json:"state,omitempty"`
}

type worker struct {
	cfg *config.Config
	log logger.Logger
	bus *events.Bus

	jobService     *jobs.Service
	jobLogService  *joblogs.Service
	libraryService *libraries.Service
	seriesService  *series.Service
	mediaService   *media.Service

	dispatch   *mediafile.Dispatch
	thumbnails *thumbnail.Generator
	scanner    *scanner.Scanner

	// enqueuer points back at the controller so runners can queue follow-up
	// work (a scan queues thumbnail generation).
	enqueuer jobs.Enqueuer

	persistEvery int
}

func newWorker(cfg *config.Config, db *bun.DB, bus *events.Bus, dispatch *mediafile.Dispatch, thumbnails *thumbnail.Generator) *worker {
	persistEvery := cfg.PersistEveryTasks
	if persistEvery < 1 {
		persistEvery = 1
	}

	return &worker{
		cfg: cfg,
		log: logger.New(),
		bus: bus,

		jobService:     jobs.NewService(db),
		jobLogService:  joblogs.NewService(db),
		libraryService: libraries.NewService(db),
		seriesService:  series.NewService(db),
		mediaService:   media.NewService(db),

		dispatch:   dispatch,
		thumbnails: thumbnails,
		scanner:    scanner.New(dispatch),

		persistEvery: persistEvery,
	}
}

func (w *worker) newRunner(job *models.Job, spec jobs.Spec, jlog *joblogs.JobLogger) (runner, error) {
	switch s := spec.(type) {
	case *jobs.LibraryScanSpec:
		return newLibraryScanRunner(w, job, s, jlog), nil
	case *jobs.SeriesScanSpec:
		return newSeriesScanRunner(w, job, s, jlog), nil
	case *jobs.ThumbnailGenerationSpec:
		return newThumbnailRunner(w, job, s, jlog), nil
	case *jobs.AnalyzeMediaSpec:
		return newAnalyzeRunner(w, job, s, jlog), nil
	default:
		return nil, errors.Errorf("no runner for job kind %q", job.Kind)
	}
}

// handle is the controller's grip on a running job. Cancel fires the task
// context; pause and resume are one-slot signals observed at task boundaries.
type handle struct {
	ctx    context.Context
	cancel context.CancelFunc
	pause  chan struct{}
	resume chan struct{}
	paused chan bool
}

func newHandle() *handle {
	ctx, cancel := context.WithCancel(context.Background())
	return &handle{
		ctx:    ctx,
		cancel: cancel,
		pause:  make(chan struct{}, 1),
		resume: make(chan struct{}, 1),
		paused: make(chan bool, 1),
	}
}

func (h *handle) requestPause() {
	select {
	case h.pause <- struct{}{}:
	default:
	}
}

func (h *handle) requestResume() {
	select {
	case h.resume <- struct{}{}:
	default:
	}
}

// setPaused records the worker's park state for the controller's pause and
// resume validation. The one-slot channel keeps the latest value.
func (h *handle) setPaused(paused bool) {
	select {
	case <-h.paused:
	default:
	}
	h.paused <- paused
}

func (h *handle) isPaused() bool {
	select {
	case v := <-h.paused:
		h.paused <- v
		return v
	default:
		return false
	}
}

// resume carries an interrupted job's restored cursor into the worker.
type resumeState struct {
	completed int
	state     json.RawMessage
}

// jobRun is the per-job execution state.
type jobRun struct {
	w    *worker
	h    *handle
	job  *models.Job
	spec jobs.Spec
	r    runner
	jlog *joblogs.JobLogger
	log  logger.Logger

	completed int
	total     int

	// MsElapsed accumulates across pauses and restarts; base holds what was
	// already on the row plus completed stretches of this run.
	base     time.Duration
	runStart time.Time
}

// run executes one job to a terminal status and returns that status. It never
// returns a non-terminal status; panics inside runners fail the job.
func (w *worker) run(h *handle, job *models.Job, spec jobs.Spec, resume *resumeState) string {
	id, err := uuid.NewRandom()
	if err != nil {
		w.log.Err(err).Error("new uuid error")
		return models.JobStatusFailed
	}
	log := w.log.ID(id.String()).Root(logger.Data{"job_id": job.ID, "kind": job.Kind})
	ctx := log.WithContext(h.ctx)

	jlog := w.jobLogService.NewJobLogger(job.ID, log)
	defer jlog.Close()

	run := &jobRun{
		w:        w,
		h:        h,
		job:      job,
		spec:     spec,
		jlog:     jlog,
		log:      log,
		base:     time.Duration(job.MsElapsed) * time.Millisecond,
		runStart: time.Now(),
	}

	status := models.JobStatusFailed
	func() {
		defer func() {
			if r := recover(); r != nil {
				jlog.Fatal("job panicked", errors.Errorf("%v", r), nil)
				status = run.finish(models.JobStatusFailed)
			}
		}()
		status = run.execute(ctx, resume)
	}()
	return status
}

func (run *jobRun) execute(ctx context.Context, resume *resumeState) string {
	w := run.w

	run.job.Status = models.JobStatusRunning
	if err := w.jobService.UpdateJob(ctx, run.job, jobs.UpdateJobOptions{Columns: []string{"status"}}); err != nil {
		run.jlog.Error("mark job running error", err, nil)
		return run.finish(models.JobStatusFailed)
	}
	w.bus.Publish(events.Event{Kind: events.KindJobStarted, JobID: run.job.ID})
	run.jlog.Info("job started", nil)

	r, err := w.newRunner(run.job, run.spec, run.jlog)
	if err != nil {
		run.jlog.Error("job setup error", err, nil)
		return run.finish(models.JobStatusFailed)
	}
	run.r = r

	var saved json.RawMessage
	if resume != nil {
		saved = resume.state
		run.completed = resume.completed
		run.jlog.Info("resuming job", logger.Data{"completed_tasks": resume.completed})
	}

	total, err := r.init(ctx, saved)
	if err != nil {
		if run.h.ctx.Err() != nil {
			return run.finish(models.JobStatusCancelled)
		}
		run.jlog.Error("job init error", err, nil)
		return run.finish(models.JobStatusFailed)
	}
	run.total = total
	run.job.TotalTasks = total
	run.job.CompletedTasks = run.completed

	// Persist the plan up front so a crash after init can still resume.
	if err := run.checkpoint(ctx); err != nil {
		run.jlog.Error("persist job state error", err, nil)
		return run.finish(models.JobStatusFailed)
	}

	for run.completed < run.total {
		select {
		case <-run.h.pause:
			status, terminal := run.park(ctx)
			if terminal {
				return status
			}
		case <-run.h.ctx.Done():
			return run.finish(models.JobStatusCancelled)
		default:
		}

		if err := run.runTask(ctx); err != nil {
			if run.h.ctx.Err() != nil {
				return run.finish(models.JobStatusCancelled)
			}
			// One retry with backoff; a second failure fails the job.
			run.jlog.Warn("task error; retrying", logger.Data{"task": run.completed, "error": err.Error()})
			if !sleepCtx(run.h.ctx, w.cfg.TaskRetryBackoff) {
				return run.finish(models.JobStatusCancelled)
			}
			if err := run.runTask(ctx); err != nil {
				if run.h.ctx.Err() != nil {
					return run.finish(models.JobStatusCancelled)
				}
				run.jlog.Error("task failed", err, logger.Data{"task": run.completed})
				return run.finish(models.JobStatusFailed)
			}
		}

		run.completed++
		run.job.CompletedTasks = run.completed
		w.bus.Publish(events.Event{
			Kind:           events.KindJobProgress,
			JobID:          run.job.ID,
			CompletedTasks: run.completed,
			TotalTasks:     run.total,
		})

		if run.completed%w.persistEvery == 0 && run.completed < run.total {
			// A failed checkpoint is not fatal; the next task's own writes
			// will surface a dead database.
			if err := run.checkpoint(ctx); err != nil {
				run.jlog.Warn("persist job state error", logger.Data{"error": err.Error()})
			}
		}
	}

	output, err := run.r.finalize(ctx)
	if err != nil {
		if run.h.ctx.Err() != nil {
			return run.finish(models.JobStatusCancelled)
		}
		run.jlog.Error("job finalize error", err, nil)
		return run.finish(models.JobStatusFailed)
	}
	run.job.OutputData = string(output)
	return run.finish(models.JobStatusCompleted)
}

// runTask executes the current task under the per-task soft deadline.
func (run *jobRun) runTask(ctx context.Context) error {
	taskCtx, cancel := context.WithTimeout(ctx, run.w.cfg.TaskDeadline)
	defer cancel()

	err := run.r.step(taskCtx, run.completed)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && run.h.ctx.Err() == nil {
		return errors.Errorf("task %d exceeded the %s deadline", run.completed, run.w.cfg.TaskDeadline)
	}
	return err
}

// park persists the paused state and blocks until resume or cancel. It
// returns a terminal status when the job was cancelled while paused.
func (run *jobRun) park(ctx context.Context) (string, bool) {
	w := run.w

	run.base += time.Since(run.runStart)
	run.h.setPaused(true)

	run.job.Status = models.JobStatusPaused
	if err := run.persistTransition(ctx); err != nil {
		run.jlog.Warn("persist pause error", logger.Data{"error": err.Error()})
	}
	w.bus.Publish(events.Event{
		Kind:           events.KindJobPaused,
		JobID:          run.job.ID,
		CompletedTasks: run.completed,
		TotalTasks:     run.total,
	})
	run.jlog.Info("job paused", logger.Data{"completed_tasks": run.completed})

	select {
	case <-run.h.resume:
		run.h.setPaused(false)
		run.runStart = time.Now()
		run.job.Status = models.JobStatusRunning
		if err := run.persistTransition(ctx); err != nil {
			run.jlog.Warn("persist resume error", logger.Data{"error": err.Error()})
		}
		w.bus.Publish(events.Event{Kind: events.KindJobResumed, JobID: run.job.ID})
		run.jlog.Info("job resumed", nil)
		return "", false
	case <-run.h.ctx.Done():
		run.h.setPaused(false)
		run.runStart = time.Now()
		return run.finish(models.JobStatusCancelled), true
	}
}

func (run *jobRun) elapsedMs() int64 {
	return (run.base + time.Since(run.runStart)).Milliseconds()
}

// checkpoint writes progress counters and the serialized plan.
func (run *jobRun) checkpoint(ctx context.Context) error {
	if err := run.refreshSaveState(); err != nil {
		return err
	}
	run.job.MsElapsed = run.elapsedMs()
	return run.w.jobService.UpdateJob(ctx, run.job, jobs.UpdateJobOptions{
		Columns: []string{"completed_tasks", "total_tasks", "save_state", "ms_elapsed"},
	})
}

// persistTransition writes a status change along with a checkpoint.
func (run *jobRun) persistTransition(ctx context.Context) error {
	if err := run.refreshSaveState(); err != nil {
		return err
	}
	run.job.MsElapsed = run.elapsedMs()
	return run.w.jobService.UpdateJob(ctx, run.job, jobs.UpdateJobOptions{
		Columns: []string{"status", "completed_tasks", "total_tasks", "save_state", "ms_elapsed"},
	})
}

func (run *jobRun) refreshSaveState() error {
	params, err := json.Marshal(run.spec)
	if err != nil {
		return errors.WithStack(err)
	}
	var state json.RawMessage
	if run.r != nil {
		state, err = run.r.state()
		if err != nil {
			return errors.WithStack(err)
		}
	}
	envelope, err := json.Marshal(saveState{
		Params:    params,
		Completed: run.completed,
		Total:     run.total,
		State:     state,
	})
	if err != nil {
		return errors.WithStack(err)
	}
	run.job.SaveState = string(envelope)
	return nil
}

// finish records the terminal status and publishes the matching event. The
// write runs on a background context so a cancelled job still lands.
func (run *jobRun) finish(status string) string {
	w := run.w
	ctx := run.log.WithContext(context.Background())

	now := time.Now()
	run.job.Status = status
	run.job.CompletedAt = &now
	run.job.MsElapsed = run.elapsedMs()
	run.job.CompletedTasks = run.completed

	columns := []string{"status", "completed_at", "ms_elapsed", "completed_tasks", "total_tasks"}
	if run.job.OutputData != "" {
		columns = append(columns, "output_data")
	}
	if err := w.jobService.UpdateJob(ctx, run.job, jobs.UpdateJobOptions{Columns: columns}); err != nil {
		run.log.Err(err).Error("persist job status error")
	}

	kind := events.KindJobFailed
	switch status {
	case models.JobStatusCompleted:
		kind = events.KindJobCompleted
	case models.JobStatusCancelled:
		kind = events.KindJobCancelled
	}
	w.bus.Publish(events.Event{
		Kind:           kind,
		JobID:          run.job.ID,
		CompletedTasks: run.completed,
		TotalTasks:     run.total,
	})
	run.jlog.Info("job finished", logger.Data{
		"status":          status,
		"completed_tasks": run.completed,
		"total_tasks":     run.total,
	})
	return status
}

// sleepCtx sleeps for d and reports false when ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
