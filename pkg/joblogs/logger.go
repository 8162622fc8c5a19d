package joblogs

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/stumpapp/stump/pkg/models"
)

const (
	maxDataValueLen = 1024
	queueSize       = 256
	batchSize       = 32
)

// JobLogger mirrors job messages to the process logger and persists them as
// job_logs rows. Rows go through a buffered queue drained by a single writer
// goroutine, so the worker never waits on the database to log.
type JobLogger struct {
	jobID   string
	service *Service
	log     logger.Logger

	queue chan *models.JobLog
	done  chan struct{}
	once  sync.Once
}

// NewJobLogger creates a JobLogger for a specific job and starts its writer.
// Call Close to flush; no logging methods may be called after Close.
func (svc *Service) NewJobLogger(jobID string, log logger.Logger) *JobLogger {
	l := &JobLogger{
		jobID:   jobID,
		service: svc,
		log:     log.Data(logger.Data{"job_id": jobID}),
		queue:   make(chan *models.JobLog, queueSize),
		done:    make(chan struct{}),
	}
	go l.write()
	return l
}

// Info logs an info-level message.
func (l *JobLogger) Info(msg string, data logger.Data) {
	l.log.Info(msg, data)
	l.enqueue(models.JobLogLevelInfo, msg, data, nil)
}

// Warn logs a warning-level message.
func (l *JobLogger) Warn(msg string, data logger.Data) {
	l.log.Warn(msg, data)
	l.enqueue(models.JobLogLevelWarn, msg, data, nil)
}

// Error logs an error-level message with automatic stack trace.
func (l *JobLogger) Error(msg string, err error, data logger.Data) {
	l.log.Err(err).Error(msg, data)
	if err != nil {
		if data == nil {
			data = logger.Data{}
		}
		data["error"] = err.Error()
	}
	stack := string(debug.Stack())
	l.enqueue(models.JobLogLevelError, msg, data, &stack)
}

// Fatal logs a fatal-level message with automatic stack trace (for panics).
func (l *JobLogger) Fatal(msg string, err error, data logger.Data) {
	if data == nil {
		data = logger.Data{}
	}
	if err != nil {
		data["error"] = err.Error()
	}
	l.log.Error(msg, data)
	stack := string(debug.Stack())
	l.enqueue(models.JobLogLevelFatal, msg, data, &stack)
}

// Close stops the writer once everything queued has been written.
func (l *JobLogger) Close() {
	l.once.Do(func() {
		close(l.queue)
	})
	<-l.done
}

func (l *JobLogger) enqueue(level, msg string, data logger.Data, stackTrace *string) {
	var dataStr *string
	if len(data) > 0 {
		truncated := make(logger.Data, len(data))
		for k, v := range data {
			s, ok := v.(string)
			if ok && len(s) > maxDataValueLen {
				truncated[k] = truncateMiddle(s, maxDataValueLen)
			} else {
				truncated[k] = v
			}
		}
		jsonBytes, err := json.Marshal(truncated)
		if err == nil {
			s := string(jsonBytes)
			dataStr = &s
		}
	}

	// A full queue blocks the caller rather than dropping job history.
	l.queue <- &models.JobLog{
		JobID:      l.jobID,
		Level:      level,
		Message:    msg,
		Data:       dataStr,
		StackTrace: stackTrace,
	}
}

func (l *JobLogger) write() {
	defer close(l.done)

	batch := make([]*models.JobLog, 0, batchSize)
	for row := range l.queue {
		batch = append(batch[:0], row)
	drain:
		for len(batch) < batchSize {
			select {
			case next, ok := <-l.queue:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		l.flush(batch)
	}
}

func (l *JobLogger) flush(batch []*models.JobLog) {
	if len(batch) == 0 {
		return
	}
	// Background context so rows survive job cancellation.
	err := l.service.CreateJobLogs(context.Background(), batch)
	if err != nil {
		l.log.Err(err).Error("persist job logs error")
	}
}

func truncateMiddle(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	half := (maxLen - 5) / 2
	return s[:half] + " ... " + s[len(s)-half:]
}
