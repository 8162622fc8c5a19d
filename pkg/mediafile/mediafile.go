package mediafile

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Processor reads pages and metadata out of a single media file format.
// Implementations verify the file's actual contents on open, so a misnamed
// file fails with an Unsupported or Corrupt FileError instead of garbage.
type Processor interface {
	// PageCount returns the number of pages in the file.
	PageCount(ctx context.Context, path string) (int, error)
	// Page returns the content type and bytes of the 1-based page.
	Page(ctx context.Context, path string, page int) (string, []byte, error)
	// Cover returns the content type and bytes of the cover image.
	Cover(ctx context.Context, path string) (string, []byte, error)
	// ReadMetadata extracts the embedded metadata. Files with no embedded
	// metadata return (nil, nil).
	ReadMetadata(ctx context.Context, path string) (*Metadata, error)
	// Hash returns a stable content hash of the file.
	Hash(ctx context.Context, path string) (string, error)
}

// Dispatch routes file paths to the processor registered for their extension.
// Registration happens at wiring time so each caller only pulls in the
// formats it needs.
type Dispatch struct {
	processors map[string]Processor
}

func NewDispatch() *Dispatch {
	return &Dispatch{processors: map[string]Processor{}}
}

// Register maps the given extensions (without the dot) to a processor. Later
// registrations win.
func (d *Dispatch) Register(p Processor, exts ...string) {
	for _, ext := range exts {
		d.processors[strings.ToLower(ext)] = p
	}
}

// For returns the processor for the path's extension, or an Unsupported
// FileError when no processor is registered for it.
func (d *Dispatch) For(path string) (Processor, error) {
	if p, ok := d.processors[Extension(path)]; ok {
		return p, nil
	}
	return nil, Unsupported(path)
}

// Supports reports whether a processor is registered for the path's
// extension. Scans use this as the cheap gate during the walk; content
// verification happens when the file is actually processed.
func (d *Dispatch) Supports(path string) bool {
	_, ok := d.processors[Extension(path)]
	return ok
}

// Extension returns the lowercased extension of path without the leading dot.
func Extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

var imageExtensions = map[string]bool{
	"avif": true,
	"gif":  true,
	"jpeg": true,
	"jpg":  true,
	"png":  true,
	"webp": true,
}

// IsImagePath reports whether the file name has a recognized image extension.
// Archive processors use this to pick out page entries without reading them.
func IsImagePath(name string) bool {
	return imageExtensions[Extension(name)]
}

// ImageContentType returns the MIME type of image data, sniffing the bytes
// first and falling back to the file extension.
func ImageContentType(name string, data []byte) string {
	if mt := mimetype.Detect(data); strings.HasPrefix(mt.String(), "image/") {
		return mt.String()
	}
	switch Extension(name) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	case "avif":
		return "image/avif"
	}
	return "application/octet-stream"
}
