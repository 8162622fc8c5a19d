package worker

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/segmentio/encoding/json"
	"github.com/stumpapp/stump/pkg/config"
	"github.com/stumpapp/stump/pkg/errcodes"
	"github.com/stumpapp/stump/pkg/events"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/stumpapp/stump/pkg/mediafile"
	"github.com/stumpapp/stump/pkg/models"
	"github.com/stumpapp/stump/pkg/thumbnail"
	"github.com/uptrace/bun"
)

// ErrStopped is returned by controller methods after Shutdown.
var ErrStopped = errors.New("job controller is stopped")

const restoreFailureReason = "interrupted"

type commandKind int

const (
	cmdEnqueue commandKind = iota
	cmdCancel
	cmdPause
	cmdResume
	cmdComplete
)

type command struct {
	kind  commandKind
	spec  jobs.Spec
	jobID string
	// status carries the terminal status on cmdComplete.
	status string
	reply  chan commandReply
}

type commandReply struct {
	job *models.Job
	err error
}

// queueEntry is a job waiting its turn. Once started, job ownership moves to
// the worker goroutine and the controller stops touching the struct.
type queueEntry struct {
	job         *models.Job
	spec        jobs.Spec
	fingerprint string
	resume      *resumeState
}

// Controller owns the job queue and the single worker. All state below is
// mutated only by the loop goroutine; public methods talk to it through the
// command channel, which also serializes enqueue against cancel.
type Controller struct {
	cfg *config.Config
	log logger.Logger
	bus *events.Bus

	jobService *jobs.Service
	w          *worker

	commands chan command
	stopping chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	queue          []*queueEntry
	running        *queueEntry
	runningHandle  *handle
	pendingCancels map[string][]chan commandReply
}

// NewController builds the controller and its worker. Start must be called
// before jobs are accepted.
func NewController(cfg *config.Config, db *bun.DB, bus *events.Bus, dispatch *mediafile.Dispatch, thumbnails *thumbnail.Generator) *Controller {
	c := &Controller{
		cfg:        cfg,
		log:        logger.New(),
		bus:        bus,
		jobService: jobs.NewService(db),
		w:          newWorker(cfg, db, bus, dispatch, thumbnails),

		commands: make(chan command),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),

		pendingCancels: map[string][]chan commandReply{},
	}
	c.w.enqueuer = c
	return c
}

// Start restores interrupted jobs from the database and begins processing.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.restore(ctx); err != nil {
		return err
	}
	go c.loop()
	return nil
}

// Shutdown stops the controller: the running job is cancelled, queued jobs
// are marked CANCELLED, and the call returns once teardown finishes or the
// deadline expires. Without a caller deadline the configured shutdown
// deadline applies.
func (c *Controller) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ShutdownDeadline)
		defer cancel()
	}

	c.stopOnce.Do(func() { close(c.stopping) })

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.log.Error("job controller shutdown deadline exceeded")
		return errors.WithStack(ctx.Err())
	}
}

// Enqueue submits a job. An equivalent job already queued or running
// collapses onto the existing row.
func (c *Controller) Enqueue(ctx context.Context, spec jobs.Spec) (*models.Job, error) {
	reply, err := c.send(ctx, command{kind: cmdEnqueue, spec: spec})
	if err != nil {
		return nil, err
	}
	return reply.job, reply.err
}

// Cancel stops a job. For a queued job it returns immediately; for the
// running job it returns once the worker has stopped.
func (c *Controller) Cancel(ctx context.Context, jobID string) error {
	reply, err := c.send(ctx, command{kind: cmdCancel, jobID: jobID})
	if err != nil {
		return err
	}
	return reply.err
}

// Pause asks the running job to pause at the next task boundary.
func (c *Controller) Pause(ctx context.Context, jobID string) error {
	reply, err := c.send(ctx, command{kind: cmdPause, jobID: jobID})
	if err != nil {
		return err
	}
	return reply.err
}

// Resume continues a paused job.
func (c *Controller) Resume(ctx context.Context, jobID string) error {
	reply, err := c.send(ctx, command{kind: cmdResume, jobID: jobID})
	if err != nil {
		return err
	}
	return reply.err
}

func (c *Controller) send(ctx context.Context, cmd command) (commandReply, error) {
	cmd.reply = make(chan commandReply, 1)

	select {
	case c.commands <- cmd:
	case <-c.done:
		return commandReply{}, errors.WithStack(ErrStopped)
	case <-ctx.Done():
		return commandReply{}, errors.WithStack(ctx.Err())
	}

	select {
	case reply := <-cmd.reply:
		return reply, nil
	case <-ctx.Done():
		return commandReply{}, errors.WithStack(ctx.Err())
	}
}

func (c *Controller) loop() {
	defer close(c.done)

	for {
		c.startNext()

		select {
		case cmd := <-c.commands:
			c.handleCommand(cmd)
		case <-c.stopping:
			c.drain()
			return
		}
	}
}

func (c *Controller) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdEnqueue:
		job, err := c.enqueue(cmd.spec)
		cmd.reply <- commandReply{job: job, err: err}
	case cmdCancel:
		c.cancelJob(cmd)
	case cmdPause:
		cmd.reply <- commandReply{err: c.pauseJob(cmd.jobID)}
	case cmdResume:
		cmd.reply <- commandReply{err: c.resumeJob(cmd.jobID)}
	case cmdComplete:
		c.completeJob(cmd.jobID, cmd.status)
	}
}

func (c *Controller) enqueue(spec jobs.Spec) (*models.Job, error) {
	ctx := c.log.WithContext(context.Background())
	fingerprint := spec.Fingerprint()

	// Equivalent work already in flight collapses onto the existing job.
	if c.running != nil && c.running.fingerprint == fingerprint {
		return c.jobService.RetrieveJob(ctx, jobs.RetrieveJobOptions{ID: &c.running.job.ID})
	}
	for _, entry := range c.queue {
		if entry.fingerprint == fingerprint {
			snapshot := *entry.job
			return &snapshot, nil
		}
	}

	params, err := json.Marshal(spec)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	envelope, err := json.Marshal(saveState{Params: params})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	job := &models.Job{
		Kind:        spec.Kind(),
		Name:        spec.Name(),
		Description: pointerutil.String(spec.Description()),
		Status:      models.JobStatusQueued,
		SaveState:   string(envelope),
	}
	if err := c.jobService.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	c.queue = append(c.queue, &queueEntry{job: job, spec: spec, fingerprint: fingerprint})
	c.log.Info("job queued", logger.Data{"job_id": job.ID, "kind": job.Kind})

	snapshot := *job
	return &snapshot, nil
}

func (c *Controller) cancelJob(cmd command) {
	if c.running != nil && c.running.job.ID == cmd.jobID {
		// Ack when the worker reports back.
		c.pendingCancels[cmd.jobID] = append(c.pendingCancels[cmd.jobID], cmd.reply)
		c.runningHandle.cancel()
		return
	}

	for i, entry := range c.queue {
		if entry.job.ID != cmd.jobID {
			continue
		}
		c.queue = append(c.queue[:i], c.queue[i+1:]...)
		cmd.reply <- commandReply{err: c.markCancelled(entry.job)}
		return
	}

	cmd.reply <- commandReply{err: c.missingJobError(cmd.jobID)}
}

func (c *Controller) pauseJob(jobID string) error {
	if c.running == nil || c.running.job.ID != jobID {
		return c.missingJobError(jobID)
	}
	if c.runningHandle.isPaused() {
		return errcodes.ValidationError("Job is already paused.")
	}
	c.runningHandle.requestPause()
	return nil
}

func (c *Controller) resumeJob(jobID string) error {
	if c.running == nil || c.running.job.ID != jobID {
		return c.missingJobError(jobID)
	}
	if !c.runningHandle.isPaused() {
		return errcodes.ValidationError("Job is not paused.")
	}
	c.runningHandle.requestResume()
	return nil
}

// missingJobError distinguishes unknown jobs from ones that already finished.
func (c *Controller) missingJobError(jobID string) error {
	ctx := c.log.WithContext(context.Background())
	job, err := c.jobService.RetrieveJob(ctx, jobs.RetrieveJobOptions{ID: &jobID})
	if err != nil {
		return err
	}
	if job.IsFinished() {
		return errcodes.ValidationError("Job is already finished.")
	}
	return errcodes.NotFound("Job")
}

func (c *Controller) completeJob(jobID, status string) {
	for _, reply := range c.pendingCancels[jobID] {
		reply <- commandReply{}
	}
	delete(c.pendingCancels, jobID)

	if c.running != nil && c.running.job.ID == jobID {
		c.running = nil
		c.runningHandle = nil
	}
	c.log.Info("job finished", logger.Data{"job_id": jobID, "status": status})
}

func (c *Controller) startNext() {
	if c.running != nil || len(c.queue) == 0 {
		return
	}

	entry := c.queue[0]
	c.queue = c.queue[1:]
	h := newHandle()
	c.running = entry
	c.runningHandle = h

	go func() {
		status := c.w.run(h, entry.job, entry.spec, entry.resume)
		h.cancel()

		// Tell the loop even while it drains.
		select {
		case c.commands <- command{kind: cmdComplete, jobID: entry.job.ID, status: status}:
		case <-c.done:
		}
	}()
}

// drain finishes shutdown: the running job is cancelled and awaited under
// the shutdown deadline, then remaining queued jobs are marked CANCELLED.
func (c *Controller) drain() {
	if c.running != nil {
		c.runningHandle.cancel()

		timer := time.NewTimer(c.cfg.ShutdownDeadline)
		defer timer.Stop()

	wait:
		for {
			select {
			case cmd := <-c.commands:
				if cmd.kind == cmdComplete {
					c.completeJob(cmd.jobID, cmd.status)
					break wait
				}
				if cmd.reply != nil {
					cmd.reply <- commandReply{err: errors.WithStack(ErrStopped)}
				}
			case <-timer.C:
				c.log.Error("abandoning running job at shutdown deadline", logger.Data{"job_id": c.running.job.ID})
				break wait
			}
		}
	}

	for _, entry := range c.queue {
		if err := c.markCancelled(entry.job); err != nil {
			c.log.Err(err).Error("cancel queued job error", logger.Data{"job_id": entry.job.ID})
		}
	}
	c.queue = nil

	// Cancel waiters whose job never reported back get unblocked here.
	for jobID, replies := range c.pendingCancels {
		for _, reply := range replies {
			reply <- commandReply{err: errors.WithStack(ErrStopped)}
		}
		delete(c.pendingCancels, jobID)
	}
}

func (c *Controller) markCancelled(job *models.Job) error {
	ctx := c.log.WithContext(context.Background())

	now := time.Now()
	job.Status = models.JobStatusCancelled
	job.CompletedAt = &now
	err := c.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{Columns: []string{"status", "completed_at"}})
	if err != nil {
		return err
	}

	c.bus.Publish(events.Event{Kind: events.KindJobCancelled, JobID: job.ID})
	return nil
}

// restore rebuilds the queue from the database. Interrupted RUNNING and
// PAUSED jobs with a valid save state go to the head of the queue with their
// cursor; everything else active that cannot be resumed fails with reason
// "interrupted".
func (c *Controller) restore(ctx context.Context) error {
	active, err := c.jobService.ListActiveJobs(ctx)
	if err != nil {
		return err
	}

	var resumed, queued []*queueEntry
	for _, job := range active {
		envelope, spec, err := parseSaveState(job)

		switch job.Status {
		case models.JobStatusQueued:
			if err != nil {
				c.failRestored(ctx, job, err)
				continue
			}
			queued = append(queued, &queueEntry{job: job, spec: spec, fingerprint: spec.Fingerprint()})

		case models.JobStatusRunning, models.JobStatusPaused:
			if err == nil {
				err = validateResume(envelope)
			}
			if err != nil {
				c.failRestored(ctx, job, err)
				continue
			}

			job.Status = models.JobStatusQueued
			if uerr := c.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{Columns: []string{"status"}}); uerr != nil {
				return uerr
			}
			resumed = append(resumed, &queueEntry{
				job:         job,
				spec:        spec,
				fingerprint: spec.Fingerprint(),
				resume:      &resumeState{completed: envelope.Completed, state: envelope.State},
			})
			c.log.Info("restored interrupted job", logger.Data{
				"job_id":          job.ID,
				"kind":            job.Kind,
				"completed_tasks": envelope.Completed,
				"total_tasks":     envelope.Total,
			})
		}
	}

	c.queue = append(resumed, queued...)
	return nil
}

func (c *Controller) failRestored(ctx context.Context, job *models.Job, cause error) {
	c.log.Err(cause).Error("failing unresumable job", logger.Data{"job_id": job.ID, "kind": job.Kind})

	now := time.Now()
	job.Status = models.JobStatusFailed
	job.Description = pointerutil.String(restoreFailureReason)
	job.CompletedAt = &now
	err := c.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{
		Columns: []string{"status", "description", "completed_at"},
	})
	if err != nil {
		c.log.Err(err).Error("persist failed job error", logger.Data{"job_id": job.ID})
		return
	}

	c.bus.Publish(events.Event{Kind: events.KindJobFailed, JobID: job.ID, Message: restoreFailureReason})
}

func parseSaveState(job *models.Job) (*saveState, jobs.Spec, error) {
	if job.SaveState == "" {
		return nil, nil, errors.New("missing save state")
	}
	envelope := &saveState{}
	if err := json.Unmarshal([]byte(job.SaveState), envelope); err != nil {
		return nil, nil, errors.WithStack(err)
	}
	spec, err := jobs.UnmarshalSpec(job.Kind, envelope.Params)
	if err != nil {
		return nil, nil, err
	}
	return envelope, spec, nil
}

// validateResume checks that a save state describes a resumable plan. Jobs
// interrupted before their plan was persisted cannot resume.
func validateResume(envelope *saveState) error {
	if len(envelope.State) == 0 {
		return errors.New("save state has no task plan")
	}
	if envelope.Completed < 0 || envelope.Completed > envelope.Total {
		return errors.Errorf("save state cursor %d out of range 0..%d", envelope.Completed, envelope.Total)
	}
	return nil
}
