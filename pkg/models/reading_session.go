package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ReadingSession is a per-user pointer into a media file. The scanner never
// writes these rows; they exist here so deletion cascades are visible to the
// core and its tests. A session is active until CompletedAt is set.
type ReadingSession struct {
	bun.BaseModel `bun:"table:reading_sessions,alias:rs" tstype:"-"`

	ID          string     `bun:",pk,nullzero" json:"id"`
	MediaID     string     `bun:",nullzero" json:"media_id"`
	Media       *Media     `bun:"rel:belongs-to" json:"media,omitempty" tstype:"Media"`
	UserRef     string     `bun:",nullzero" json:"user_ref"`
	Page        *int       `json:"page,omitempty"`
	Percentage  *float64   `json:"percentage,omitempty"`
	Epubcfi     *string    `json:"epubcfi,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
