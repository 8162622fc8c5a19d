package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

// PageDimension is the pixel size of a single page, recorded by the analyze
// job. Stored as a JSON array column in page order.
type PageDimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Media struct {
	bun.BaseModel `bun:"table:media,alias:m" tstype:"-"`

	ID         string     `bun:",pk,nullzero" json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	SeriesID   string     `bun:",nullzero" json:"series_id"`
	Series     *Series    `bun:"rel:belongs-to" json:"series,omitempty" tstype:"Series"`
	Name       string     `bun:",nullzero" json:"name"`
	Path       string     `bun:",nullzero" json:"path"`
	Extension  string     `bun:",nullzero" json:"extension"`
	Size       int64      `json:"size"`
	Pages      int        `json:"pages"`
	Hash       *string    `json:"hash,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
	Status     string     `bun:",nullzero" json:"status" tstype:"EntityStatus"`

	// StatusReason carries the parse failure message when Status is ERROR.
	StatusReason *string `json:"status_reason,omitempty"`

	// Embedded metadata. List-valued fields keep the comma-delimited form the
	// source formats use (ComicInfo.xml, OPF subjects).
	Title         *string  `json:"title,omitempty"`
	MetaSeries    *string  `bun:"meta_series" json:"meta_series,omitempty"`
	Number        *float64 `json:"number,omitempty"`
	Volume        *int     `json:"volume,omitempty"`
	Summary       *string  `json:"summary,omitempty"`
	Notes         *string  `json:"notes,omitempty"`
	Genre         *string  `json:"genre,omitempty"`
	Writers       *string  `json:"writers,omitempty"`
	Pencillers    *string  `json:"pencillers,omitempty"`
	Inkers        *string  `json:"inkers,omitempty"`
	Colorists     *string  `json:"colorists,omitempty"`
	Letterers     *string  `json:"letterers,omitempty"`
	CoverArtists  *string  `json:"cover_artists,omitempty"`
	Editors       *string  `json:"editors,omitempty"`
	Publisher     *string  `json:"publisher,omitempty"`
	Links         *string  `json:"links,omitempty"`
	Characters    *string  `json:"characters,omitempty"`
	Teams         *string  `json:"teams,omitempty"`
	AgeRating     *int     `json:"age_rating,omitempty"`
	Year          *int     `json:"year,omitempty"`
	Month         *int     `json:"month,omitempty"`
	Day           *int     `json:"day,omitempty"`
	PageCountMeta *int     `bun:"page_count_meta" json:"page_count_meta,omitempty"`

	PageDimensionsData string          `bun:"page_dimensions,nullzero" json:"-"`
	PageDimensions     []PageDimension `bun:"-" json:"page_dimensions,omitempty" tstype:"PageDimension[]"`
}

// MarshalPageDimensions serializes PageDimensions into its JSON string column.
func (m *Media) MarshalPageDimensions() error {
	if m.PageDimensions == nil {
		m.PageDimensionsData = ""
		return nil
	}
	data, err := json.Marshal(m.PageDimensions)
	if err != nil {
		return errors.WithStack(err)
	}
	m.PageDimensionsData = string(data)
	return nil
}

// UnmarshalPageDimensions parses the JSON string column into PageDimensions.
func (m *Media) UnmarshalPageDimensions() error {
	if m.PageDimensionsData == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(m.PageDimensionsData), &m.PageDimensions); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
