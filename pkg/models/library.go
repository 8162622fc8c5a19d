package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	//tygo:emit export type LibraryPattern = typeof LibraryPatternSeriesBased | typeof LibraryPatternCollectionBased;
	LibraryPatternSeriesBased     = "SERIES_BASED"
	LibraryPatternCollectionBased = "COLLECTION_BASED"
)

const (
	//tygo:emit export type EntityStatus = typeof EntityStatusReady | typeof EntityStatusMissing | typeof EntityStatusError;
	EntityStatusReady   = "READY"
	EntityStatusMissing = "MISSING"
	EntityStatusError   = "ERROR"
)

// Default reading direction/mode applied to new media in a library.
const (
	ReadingDirectionLTR = "LTR"
	ReadingDirectionRTL = "RTL"

	ReadingModePaged      = "PAGED"
	ReadingModeContinuous = "CONTINUOUS"
)

type Library struct {
	bun.BaseModel `bun:"table:libraries,alias:l" tstype:"-"`

	ID        string    `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `bun:",nullzero" json:"name"`
	Path      string    `bun:",nullzero" json:"path"`
	Status    string    `bun:",nullzero" json:"status" tstype:"EntityStatus"`

	// Scanning policy.
	Pattern               string `bun:",nullzero" json:"pattern" tstype:"LibraryPattern"`
	ConvertRARToZip       bool   `bun:"convert_rar_to_zip" json:"convert_rar_to_zip"`
	HardDeleteConversions bool   `json:"hard_delete_conversions"`
	GenerateFileHashes    bool   `json:"generate_file_hashes"`
	ProcessMetadata       bool   `json:"process_metadata"`
	DefaultReadingDir     string `bun:",nullzero,default:'LTR'" json:"default_reading_dir"`
	DefaultReadingMode    string `bun:",nullzero,default:'PAGED'" json:"default_reading_mode"`

	// ThumbnailConfig and IgnoreRules are stored as JSON strings. A nil
	// ThumbnailConfig means thumbnail generation is disabled for the library.
	ThumbnailConfigData string           `bun:"thumbnail_config,nullzero" json:"-"`
	ThumbnailConfig     *ThumbnailConfig `bun:"-" json:"thumbnail_config,omitempty" tstype:"ThumbnailConfig"`
	IgnoreRulesData     string           `bun:"ignore_rules,nullzero" json:"-"`
	IgnoreRules         []string         `bun:"-" json:"ignore_rules,omitempty"`

	Series      []*Series `bun:"rel:has-many" json:"series,omitempty" tstype:"Series[]"`
	SeriesCount int       `bun:",scanonly" json:"series_count"`
}

// MarshalConfig serializes the parsed config fields into their JSON string
// columns. Call before inserting or updating config columns.
func (l *Library) MarshalConfig() error {
	if l.ThumbnailConfig != nil {
		data, err := json.Marshal(l.ThumbnailConfig)
		if err != nil {
			return errors.WithStack(err)
		}
		l.ThumbnailConfigData = string(data)
	} else {
		l.ThumbnailConfigData = ""
	}

	if l.IgnoreRules != nil {
		data, err := json.Marshal(l.IgnoreRules)
		if err != nil {
			return errors.WithStack(err)
		}
		l.IgnoreRulesData = string(data)
	} else {
		l.IgnoreRulesData = ""
	}

	return nil
}

// UnmarshalConfig parses the JSON string columns into their struct fields.
func (l *Library) UnmarshalConfig() error {
	if l.ThumbnailConfigData != "" {
		l.ThumbnailConfig = &ThumbnailConfig{}
		if err := json.Unmarshal([]byte(l.ThumbnailConfigData), l.ThumbnailConfig); err != nil {
			return errors.WithStack(err)
		}
	}

	if l.IgnoreRulesData != "" {
		if err := json.Unmarshal([]byte(l.IgnoreRulesData), &l.IgnoreRules); err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}
