package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	//tygo:emit export type JobStatus = typeof JobStatusQueued | typeof JobStatusRunning | typeof JobStatusPaused | typeof JobStatusCompleted | typeof JobStatusCancelled | typeof JobStatusFailed;
	JobStatusQueued    = "QUEUED"
	JobStatusRunning   = "RUNNING"
	JobStatusPaused    = "PAUSED"
	JobStatusCompleted = "COMPLETED"
	JobStatusCancelled = "CANCELLED"
	JobStatusFailed    = "FAILED"
)

const (
	//tygo:emit export type JobKind = typeof JobKindLibraryScan | typeof JobKindSeriesScan | typeof JobKindThumbnailGeneration | typeof JobKindAnalyzeMedia;
	JobKindLibraryScan         = "library_scan"
	JobKindSeriesScan          = "series_scan"
	JobKindThumbnailGeneration = "thumbnail_generation"
	JobKindAnalyzeMedia        = "analyze_media"
)

const (
	//tygo:emit export type VisitStrategy = typeof VisitStrategyDefault | typeof VisitStrategyRegenMeta | typeof VisitStrategyRegenHashes;
	VisitStrategyDefault     = "DEFAULT"
	VisitStrategyRegenMeta   = "REGEN_META"
	VisitStrategyRegenHashes = "REGEN_HASHES"
)

// ActiveJobStatuses are the statuses of jobs that are not finished.
var ActiveJobStatuses = []string{JobStatusQueued, JobStatusRunning, JobStatusPaused}

// FinishedJobStatuses are the terminal statuses.
var FinishedJobStatuses = []string{JobStatusCompleted, JobStatusCancelled, JobStatusFailed}

type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j" tstype:"-"`

	ID          string     `bun:",pk,nullzero" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Kind        string     `bun:",nullzero" json:"kind" tstype:"JobKind"`
	Name        string     `bun:",nullzero" json:"name"`
	Description *string    `json:"description,omitempty"`
	Status      string     `bun:",nullzero" json:"status" tstype:"JobStatus"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	MsElapsed   int64      `json:"ms_elapsed"`

	// Progress counters, persisted on task boundaries rather than every tick.
	CompletedTasks int `json:"completed_tasks"`
	TotalTasks     int `json:"total_tasks"`

	// SaveState holds the serialized working state used to resume the job
	// after a restart. OutputData holds the job's final summary.
	SaveState  string `bun:"save_state,nullzero" json:"-"`
	OutputData string `bun:"output_data,nullzero" json:"-"`
}

// IsFinished reports whether the job reached a terminal status.
func (job *Job) IsFinished() bool {
	switch job.Status {
	case JobStatusCompleted, JobStatusCancelled, JobStatusFailed:
		return true
	}
	return false
}
