package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Series struct {
	bun.BaseModel `bun:"table:series,alias:s" tstype:"-"`

	ID        string    `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LibraryID string    `bun:",nullzero" json:"library_id"`
	Library   *Library  `bun:"rel:belongs-to" json:"library,omitempty" tstype:"Library"`
	Name      string    `bun:",nullzero" json:"name"`
	Path      string    `bun:",nullzero" json:"path"`
	Status    string    `bun:",nullzero" json:"status" tstype:"EntityStatus"`

	// Metadata from an optional series.json in the series directory.
	MetaType    *string `bun:"meta_type" json:"meta_type,omitempty"`
	SortName    *string `json:"sort_name,omitempty"`
	Description *string `json:"description,omitempty"`
	Publisher   *string `json:"publisher,omitempty"`
	Imprint     *string `json:"imprint,omitempty"`
	AgeRating   *int    `json:"age_rating,omitempty"`
	MetaStatus  *string `bun:"meta_status" json:"meta_status,omitempty"`

	Media      []*Media `bun:"rel:has-many" json:"media,omitempty" tstype:"Media[]"`
	MediaCount int      `bun:",scanonly" json:"media_count"`
}
