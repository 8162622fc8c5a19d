package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

// DefaultScanIntervalSecs is the scheduler interval used before any config
// row has been saved. Matches the column default.
const DefaultScanIntervalSecs = 86400

// JobScheduleConfig controls the periodic scan scheduler. The table holds a
// single row with ID 1.
type JobScheduleConfig struct {
	bun.BaseModel `bun:"table:job_schedule_config,alias:jsc" tstype:"-"`

	ID           int       `bun:",pk" json:"id"`
	IntervalSecs int       `json:"interval_secs"`
	UpdatedAt    time.Time `json:"updated_at"`

	ExcludedLibraryIDsData string   `bun:"excluded_library_ids,nullzero" json:"-"`
	ExcludedLibraryIDs     []string `bun:"-" json:"excluded_library_ids,omitempty"`
}

// MarshalExclusions serializes ExcludedLibraryIDs into its JSON string column.
func (c *JobScheduleConfig) MarshalExclusions() error {
	if c.ExcludedLibraryIDs == nil {
		c.ExcludedLibraryIDsData = ""
		return nil
	}
	data, err := json.Marshal(c.ExcludedLibraryIDs)
	if err != nil {
		return errors.WithStack(err)
	}
	c.ExcludedLibraryIDsData = string(data)
	return nil
}

// UnmarshalExclusions parses the JSON string column into ExcludedLibraryIDs.
func (c *JobScheduleConfig) UnmarshalExclusions() error {
	if c.ExcludedLibraryIDsData == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(c.ExcludedLibraryIDsData), &c.ExcludedLibraryIDs); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// IsExcluded reports whether the library is excluded from scheduled scans.
func (c *JobScheduleConfig) IsExcluded(libraryID string) bool {
	for _, id := range c.ExcludedLibraryIDs {
		if id == libraryID {
			return true
		}
	}
	return false
}
