package models

const (
	//tygo:emit export type ThumbnailFormat = typeof ThumbnailFormatWebp | typeof ThumbnailFormatJpeg | typeof ThumbnailFormatPng;
	ThumbnailFormatWebp = "webp"
	ThumbnailFormatJpeg = "jpeg"
	ThumbnailFormatPng  = "png"
)

const (
	//tygo:emit export type ResizeMode = typeof ResizeModeNone | typeof ResizeModeExact | typeof ResizeModeScaleFactor | typeof ResizeModeScaleDimension;
	ResizeModeNone           = "NONE"
	ResizeModeExact          = "EXACT"
	ResizeModeScaleFactor    = "SCALE_FACTOR"
	ResizeModeScaleDimension = "SCALE_DIMENSION"
)

const (
	//tygo:emit export type ResizeDimension = typeof ResizeDimensionHeight | typeof ResizeDimensionWidth;
	ResizeDimensionHeight = "HEIGHT"
	ResizeDimensionWidth  = "WIDTH"
)

// ThumbnailConfig describes how thumbnails are generated for a library. It is
// stored as a JSON column on the library row.
type ThumbnailConfig struct {
	Format string `json:"format" tstype:"ThumbnailFormat"`
	Mode   string `json:"mode" tstype:"ResizeMode"`

	// Exact mode.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// ScaleFactor mode.
	Factor float64 `json:"factor,omitempty"`

	// ScaleDimension mode.
	Dimension string `json:"dimension,omitempty" tstype:"ResizeDimension"`
	Size      int    `json:"size,omitempty"`

	// Quality in [1, 100] for lossy formats. Zero means the format default.
	Quality int `json:"quality,omitempty"`
	// Page is the 1-based page to render. Zero means the cover.
	Page int `json:"page,omitempty"`
}

// DefaultThumbnailConfig matches what the web client creates for a new
// library when thumbnails are left enabled.
func DefaultThumbnailConfig() *ThumbnailConfig {
	return &ThumbnailConfig{
		Format:    ThumbnailFormatWebp,
		Mode:      ResizeModeScaleDimension,
		Dimension: ResizeDimensionHeight,
		Size:      350,
		Quality:   85,
	}
}
