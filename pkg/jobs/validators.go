package jobs

import "github.com/segmentio/encoding/json"

type ListJobsQuery struct {
	Limit  int      `query:"limit" json:"limit,omitempty" default:"50" validate:"min=1,max=100"`
	Offset int      `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Status []string `query:"status" json:"status,omitempty" validate:"dive,oneof=QUEUED RUNNING PAUSED COMPLETED CANCELLED FAILED"`
	Kind   []string `query:"kind" json:"kind,omitempty" validate:"dive,oneof=library_scan series_scan thumbnail_generation analyze_media"`
}

type CreateJobPayload struct {
	Kind   string          `json:"kind" validate:"required,oneof=library_scan series_scan thumbnail_generation analyze_media"`
	Params json.RawMessage `json:"params,omitempty" tstype:"LibraryScanSpec | SeriesScanSpec | ThumbnailGenerationSpec | AnalyzeMediaSpec"`
}

type UpdateScheduleConfigPayload struct {
	IntervalSecs       int      `json:"interval_secs" validate:"required,min=300"`
	ExcludedLibraryIDs []string `json:"excluded_library_ids,omitempty"`
}
