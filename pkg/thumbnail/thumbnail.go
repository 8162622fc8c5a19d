// Package thumbnail renders and caches derived cover images for media files.
// Thumbnails live in a flat directory keyed by media id; the extension is the
// configured output format.
package thumbnail

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
	"github.com/stumpapp/stump/pkg/fileutils"
	"github.com/stumpapp/stump/pkg/mediafile"
	"github.com/stumpapp/stump/pkg/models"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/webp" // webp decoding for image.Decode
	_ "image/gif"               // gif decoding for image.Decode
)

// knownExtensions are the output formats PathFor probes, newest-preferred.
var knownExtensions = []string{
	models.ThumbnailFormatWebp,
	models.ThumbnailFormatJpeg,
	models.ThumbnailFormatPng,
}

type Generator struct {
	dir      string
	dispatch *mediafile.Dispatch
}

func NewGenerator(dir string, dispatch *mediafile.Dispatch) *Generator {
	return &Generator{dir: dir, dispatch: dispatch}
}

func (g *Generator) Dir() string {
	return g.dir
}

// PathFor returns the cached thumbnail path for a media id, or the empty
// string when none exists.
func (g *Generator) PathFor(mediaID string) string {
	for _, ext := range knownExtensions {
		path := filepath.Join(g.dir, mediaID+"."+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Generate renders the thumbnail for a media file and caches it, returning
// the cached path. An existing file in the configured format short-circuits
// unless force is set. The page source is the processor's cover, or an
// explicit page when the config names one.
func (g *Generator) Generate(ctx context.Context, mediaID, sourcePath string, cfg *models.ThumbnailConfig, force bool) (string, error) {
	if cfg == nil {
		cfg = models.DefaultThumbnailConfig()
	}
	format := cfg.Format
	if format == "" {
		format = models.ThumbnailFormatWebp
	}

	target := filepath.Join(g.dir, mediaID+"."+format)
	if !force {
		if _, err := os.Stat(target); err == nil {
			return target, nil
		}
	}

	processor, err := g.dispatch.For(sourcePath)
	if err != nil {
		return "", err
	}

	var data []byte
	if cfg.Page > 0 {
		_, data, err = processor.Page(ctx, sourcePath, cfg.Page)
	} else {
		_, data, err = processor.Cover(ctx, sourcePath)
	}
	if err != nil {
		return "", err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrapf(err, "decode source image for media %s", mediaID)
	}

	encoded, err := encode(resize(src, cfg), format, cfg.Quality)
	if err != nil {
		return "", err
	}

	if err := fileutils.EnsureDir(g.dir); err != nil {
		return "", err
	}
	if err := fileutils.AtomicWrite(target, encoded, 0644); err != nil {
		return "", err
	}

	// Drop leftovers from a previous format so PathFor stays unambiguous.
	for _, ext := range knownExtensions {
		if ext != format {
			os.Remove(filepath.Join(g.dir, mediaID+"."+ext))
		}
	}
	return target, nil
}

// Remove deletes any cached thumbnail for a media id.
func (g *Generator) Remove(mediaID string) error {
	for _, ext := range knownExtensions {
		err := os.Remove(filepath.Join(g.dir, mediaID+"."+ext))
		if err != nil && !os.IsNotExist(err) {
			return errors.WithStack(err)
		}
	}
	return nil
}

// RemoveAll deletes cached thumbnails for a batch of media ids, as when a
// series or library goes away.
func (g *Generator) RemoveAll(mediaIDs []string) error {
	for _, id := range mediaIDs {
		if err := g.Remove(id); err != nil {
			return err
		}
	}
	return nil
}

// resize scales the source image per the config. A zero or identity target
// returns the source unchanged.
func resize(src image.Image, cfg *models.ThumbnailConfig) image.Image {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	var w, h int
	switch cfg.Mode {
	case models.ResizeModeExact:
		w, h = cfg.Width, cfg.Height
	case models.ResizeModeScaleFactor:
		if cfg.Factor > 0 {
			w = int(float64(srcW) * cfg.Factor)
			h = int(float64(srcH) * cfg.Factor)
		}
	case models.ResizeModeScaleDimension:
		if cfg.Size > 0 && srcW > 0 && srcH > 0 {
			if cfg.Dimension == models.ResizeDimensionWidth {
				w = cfg.Size
				h = srcH * cfg.Size / srcW
			} else {
				h = cfg.Size
				w = srcW * cfg.Size / srcH
			}
		}
	}
	if w <= 0 || h <= 0 || (w == srcW && h == srcH) {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

func encode(img image.Image, format string, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	var buf bytes.Buffer
	var err error
	switch format {
	case models.ThumbnailFormatWebp:
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)})
	case models.ThumbnailFormatJpeg:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	case models.ThumbnailFormatPng:
		err = png.Encode(&buf, img)
	default:
		return nil, errors.Errorf("unknown thumbnail format %q", format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s thumbnail", format)
	}
	return buf.Bytes(), nil
}
