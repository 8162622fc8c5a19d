// Package scheduler re-enqueues library scans on a fixed interval. The
// first tick fires immediately on start; later ticks fire on a period read
// from the scheduler config row. Duplicate suppression lives in the job
// controller, so a tick that lands while the previous scan still runs
// collapses onto it instead of stacking up.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/stumpapp/stump/pkg/libraries"
	"github.com/stumpapp/stump/pkg/models"
	"github.com/uptrace/bun"
)

type Scheduler struct {
	log      logger.Logger
	enqueuer jobs.Enqueuer

	jobService     *jobs.Service
	libraryService *libraries.Service

	reset    chan struct{}
	stopping chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(db *bun.DB, enqueuer jobs.Enqueuer) *Scheduler {
	return &Scheduler{
		log:      logger.New(),
		enqueuer: enqueuer,

		jobService:     jobs.NewService(db),
		libraryService: libraries.NewService(db),

		reset:    make(chan struct{}, 1),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the tick loop. The first tick runs before any waiting.
func (s *Scheduler) Start() {
	go s.loop()
}

// Reset tells the loop the scheduler config changed. The new interval is
// loaded and the current wait restarts from now. Safe to call from any
// goroutine; concurrent resets coalesce.
func (s *Scheduler) Reset() {
	select {
	case s.reset <- struct{}{}:
	default:
	}
}

// Stop terminates the loop. A tick in progress finishes first.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopping) })
	<-s.done
}

func (s *Scheduler) loop() {
	defer close(s.done)

	interval := s.tick()
	for {
		// A non-positive interval disables the timer until a config
		// change arrives.
		var tickC <-chan time.Time
		var timer *time.Timer
		if interval > 0 {
			timer = time.NewTimer(interval)
			tickC = timer.C
		}

		select {
		case <-tickC:
			interval = s.tick()
		case <-s.reset:
			if timer != nil {
				timer.Stop()
			}
			interval = s.currentInterval()
			s.log.Info("scan scheduler reset", logger.Data{"interval": interval.String()})
		case <-s.stopping:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// tick enqueues a scan for every library not excluded by the scheduler
// config and returns the interval to the next tick. Enqueue errors are
// logged per library so one bad library does not starve the rest.
func (s *Scheduler) tick() time.Duration {
	ctx := s.log.WithContext(context.Background())

	cfg, err := s.jobService.GetScheduleConfig(ctx)
	if err != nil {
		s.log.Err(err).Error("scan scheduler config error")
		return time.Duration(models.DefaultScanIntervalSecs) * time.Second
	}

	libs, err := s.libraryService.ListLibraries(ctx, libraries.ListLibrariesOptions{})
	if err != nil {
		s.log.Err(err).Error("scan scheduler list libraries error")
		return time.Duration(cfg.IntervalSecs) * time.Second
	}

	for _, library := range libs {
		if cfg.IsExcluded(library.ID) {
			continue
		}

		job, err := s.enqueuer.Enqueue(ctx, &jobs.LibraryScanSpec{LibraryID: library.ID})
		if err != nil {
			s.log.Err(err).Error("scan scheduler enqueue error", logger.Data{"library_id": library.ID})
			continue
		}
		s.log.Info("scheduled library scan", logger.Data{"library_id": library.ID, "job_id": job.ID})
	}

	return time.Duration(cfg.IntervalSecs) * time.Second
}

func (s *Scheduler) currentInterval() time.Duration {
	ctx := s.log.WithContext(context.Background())

	cfg, err := s.jobService.GetScheduleConfig(ctx)
	if err != nil {
		s.log.Err(err).Error("scan scheduler config error")
		return time.Duration(models.DefaultScanIntervalSecs) * time.Second
	}
	return time.Duration(cfg.IntervalSecs) * time.Second
}
