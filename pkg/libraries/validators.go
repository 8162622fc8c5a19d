package libraries

import (
	"fmt"

	"github.com/stumpapp/stump/pkg/errcodes"
	"github.com/stumpapp/stump/pkg/models"
)

type CreateLibraryPayload struct {
	Name                  string                  `json:"name" validate:"required,max=100"`
	Path                  string                  `json:"path" validate:"required"`
	Pattern               string                  `json:"pattern" default:"SERIES_BASED" validate:"oneof=SERIES_BASED COLLECTION_BASED"`
	ConvertRARToZip       *bool                   `json:"convert_rar_to_zip,omitempty"`
	HardDeleteConversions *bool                   `json:"hard_delete_conversions,omitempty"`
	GenerateFileHashes    *bool                   `json:"generate_file_hashes,omitempty"`
	ProcessMetadata       *bool                   `json:"process_metadata,omitempty"`
	DefaultReadingDir     string                  `json:"default_reading_dir" default:"LTR" validate:"oneof=LTR RTL"`
	DefaultReadingMode    string                  `json:"default_reading_mode" default:"PAGED" validate:"oneof=PAGED CONTINUOUS"`
	ThumbnailConfig       *models.ThumbnailConfig `json:"thumbnail_config,omitempty" tstype:"ThumbnailConfig"`
	DisableThumbnails     bool                    `json:"disable_thumbnails,omitempty"`
	IgnoreRules           []string                `json:"ignore_rules,omitempty" validate:"max=100"`
}

type ListLibrariesQuery struct {
	Limit  int `query:"limit" json:"limit,omitempty" default:"10" validate:"min=1,max=100"`
	Offset int `query:"offset" json:"offset,omitempty" validate:"min=0"`
}

type UpdateLibraryPayload struct {
	Name                  *string                 `json:"name,omitempty" validate:"omitempty,max=100"`
	Path                  *string                 `json:"path,omitempty"`
	Pattern               *string                 `json:"pattern,omitempty" validate:"omitempty,oneof=SERIES_BASED COLLECTION_BASED"`
	ConvertRARToZip       *bool                   `json:"convert_rar_to_zip,omitempty"`
	HardDeleteConversions *bool                   `json:"hard_delete_conversions,omitempty"`
	GenerateFileHashes    *bool                   `json:"generate_file_hashes,omitempty"`
	ProcessMetadata       *bool                   `json:"process_metadata,omitempty"`
	DefaultReadingDir     *string                 `json:"default_reading_dir,omitempty" validate:"omitempty,oneof=LTR RTL"`
	DefaultReadingMode    *string                 `json:"default_reading_mode,omitempty" validate:"omitempty,oneof=PAGED CONTINUOUS"`
	ThumbnailConfig       *models.ThumbnailConfig `json:"thumbnail_config,omitempty" tstype:"ThumbnailConfig"`
	DisableThumbnails     *bool                   `json:"disable_thumbnails,omitempty"`
	IgnoreRules           []string                `json:"ignore_rules,omitempty" validate:"omitempty,max=100"`
}

type ScanLibraryPayload struct {
	VisitStrategy string `json:"visit_strategy,omitempty" validate:"omitempty,oneof=DEFAULT REGEN_META REGEN_HASHES" tstype:"VisitStrategy"`
}

// validateThumbnailConfig checks the parts of a thumbnail config the
// validator tags can't express, since the struct is shared with the model.
func validateThumbnailConfig(cfg *models.ThumbnailConfig) error {
	switch cfg.Format {
	case "", models.ThumbnailFormatWebp, models.ThumbnailFormatJpeg, models.ThumbnailFormatPng:
	default:
		return errcodes.ValidationError(fmt.Sprintf("Unknown thumbnail format %q.", cfg.Format))
	}

	switch cfg.Mode {
	case "", models.ResizeModeNone:
	case models.ResizeModeExact:
		if cfg.Width <= 0 || cfg.Height <= 0 {
			return errcodes.ValidationError("Exact resize requires a positive width and height.")
		}
	case models.ResizeModeScaleFactor:
		if cfg.Factor <= 0 {
			return errcodes.ValidationError("Scale factor must be positive.")
		}
	case models.ResizeModeScaleDimension:
		if cfg.Dimension != models.ResizeDimensionHeight && cfg.Dimension != models.ResizeDimensionWidth {
			return errcodes.ValidationError("Scale dimension must be HEIGHT or WIDTH.")
		}
		if cfg.Size <= 0 {
			return errcodes.ValidationError("Scale dimension size must be positive.")
		}
	default:
		return errcodes.ValidationError(fmt.Sprintf("Unknown resize mode %q.", cfg.Mode))
	}

	if cfg.Quality < 0 || cfg.Quality > 100 {
		return errcodes.ValidationError("Thumbnail quality must be between 1 and 100.")
	}
	if cfg.Page < 0 {
		return errcodes.ValidationError("Thumbnail page must be positive.")
	}

	return nil
}
