// Package pdf reads PDF documents. Page counting goes through pdfcpu, which
// walks the page tree without rendering. Page images and the document info
// dictionary need the pdfium runtime, which runs as a WebAssembly worker pool
// and is only started when rendering is enabled.
package pdf

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pkg/errors"
	"github.com/stumpapp/stump/pkg/mediafile"
)

const instanceTimeout = 30 * time.Second

// Options configures the processor. RenderDPI and PoolSize fall back to
// sensible values when unset.
type Options struct {
	// RenderingEnabled starts the pdfium pool on first use. When false, Page
	// and Cover report the file as unsupported and ReadMetadata returns
	// nothing, so PDFs still scan with a page count and hash.
	RenderingEnabled bool
	RenderDPI        int
	PoolSize         int
}

type Processor struct {
	opts Options

	mu      sync.Mutex
	pool    pdfium.Pool
	poolErr error
	started bool
}

func New(opts Options) *Processor {
	if opts.RenderDPI <= 0 {
		opts.RenderDPI = 150
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 1
	}
	return &Processor{opts: opts}
}

func (p *Processor) PageCount(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.WithStack(err)
	}
	if _, err := os.Stat(path); err != nil {
		return 0, mediafile.IOError(path, err)
	}

	count, err := api.PageCountFile(path)
	if err != nil {
		return 0, mediafile.Corrupt(path, err)
	}
	if count == 0 {
		return 0, mediafile.Empty(path)
	}
	return count, nil
}

func (p *Processor) Page(ctx context.Context, path string, page int) (string, []byte, error) {
	if !p.opts.RenderingEnabled {
		return "", nil, mediafile.Unsupported(path)
	}

	count, err := p.PageCount(ctx, path)
	if err != nil {
		return "", nil, err
	}
	if page < 1 || page > count {
		return "", nil, mediafile.PageOutOfRange(path, page, count)
	}
	return p.renderPage(ctx, path, page-1)
}

func (p *Processor) Cover(ctx context.Context, path string) (string, []byte, error) {
	return p.Page(ctx, path, 1)
}

// ReadMetadata reads the document info dictionary. pdfcpu exposes no metadata
// API, so this goes through pdfium and returns nothing when rendering is
// disabled.
func (p *Processor) ReadMetadata(ctx context.Context, path string) (*mediafile.Metadata, error) {
	if !p.opts.RenderingEnabled {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	instance, err := p.instance()
	if err != nil {
		return nil, mediafile.IOError(path, err)
	}
	defer instance.Close()

	doc, err := instance.OpenDocument(&requests.OpenDocument{FilePath: &path})
	if err != nil {
		return nil, mediafile.Corrupt(path, err)
	}
	defer instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})

	meta := &mediafile.Metadata{
		Title:   mediafile.OptionalString(metaText(instance, doc.Document, "Title")),
		Writers: mediafile.OptionalString(metaText(instance, doc.Document, "Author")),
		Summary: mediafile.OptionalString(metaText(instance, doc.Document, "Subject")),
		Genre:   mediafile.OptionalString(metaText(instance, doc.Document, "Keywords")),
	}
	meta.Year, meta.Month, meta.Day = parseCreationDate(metaText(instance, doc.Document, "CreationDate"))

	if meta.Title == nil && meta.Writers == nil && meta.Summary == nil && meta.Genre == nil && meta.Year == nil {
		return nil, nil
	}
	return meta, nil
}

// Hash digests the file's leading bytes plus its size, the same fallback the
// EPUB processor uses for non-image containers.
func (p *Processor) Hash(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.WithStack(err)
	}
	return mediafile.LeadingHash(path)
}

// Close shuts down the pdfium pool if it was ever started.
func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool == nil {
		return nil
	}
	err := p.pool.Close()
	p.pool = nil
	return errors.WithStack(err)
}

func (p *Processor) renderPage(ctx context.Context, path string, index int) (string, []byte, error) {
	instance, err := p.instance()
	if err != nil {
		return "", nil, mediafile.IOError(path, err)
	}
	defer instance.Close()

	doc, err := instance.OpenDocument(&requests.OpenDocument{FilePath: &path})
	if err != nil {
		return "", nil, mediafile.Corrupt(path, err)
	}
	defer instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})

	if err := ctx.Err(); err != nil {
		return "", nil, errors.WithStack(err)
	}

	render, err := instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI: p.opts.RenderDPI,
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{
				Document: doc.Document,
				Index:    index,
			},
		},
	})
	if err != nil {
		return "", nil, mediafile.Corrupt(path, err)
	}
	defer render.Cleanup()

	var buf bytes.Buffer
	if err := png.Encode(&buf, render.Result.Image); err != nil {
		return "", nil, errors.Wrap(err, "encode rendered pdf page")
	}
	return "image/png", buf.Bytes(), nil
}

// instance starts the WebAssembly pool on first use and leases a worker from
// it. Callers must Close the returned instance to hand the worker back.
func (p *Processor) instance() (pdfium.Pdfium, error) {
	p.mu.Lock()
	if !p.started {
		p.started = true
		p.pool, p.poolErr = webassembly.Init(webassembly.Config{
			MinIdle:  1,
			MaxIdle:  p.opts.PoolSize,
			MaxTotal: p.opts.PoolSize,
		})
	}
	pool, err := p.pool, p.poolErr
	p.mu.Unlock()

	if err != nil {
		return nil, errors.Wrap(err, "init pdfium pool")
	}
	instance, err := pool.GetInstance(instanceTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "get pdfium instance")
	}
	return instance, nil
}

func metaText(instance pdfium.Pdfium, document references.FPDF_DOCUMENT, tag string) string {
	resp, err := instance.FPDF_GetMetaText(&requests.FPDF_GetMetaText{
		Document: document,
		Tag:      tag,
	})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(resp.Value)
}

// parseCreationDate reads the PDF date format, D:YYYYMMDDHHmmSS with an
// optional timezone suffix. The D: prefix and everything after the day are
// optional in the wild.
func parseCreationDate(value string) (*int, *int, *int) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "D:")
	if len(value) < 4 {
		return nil, nil, nil
	}
	year, err := strconv.Atoi(value[:4])
	if err != nil || year <= 0 {
		return nil, nil, nil
	}

	var month, day *int
	if len(value) >= 6 {
		if m, err := strconv.Atoi(value[4:6]); err == nil && m >= 1 && m <= 12 {
			month = &m
		}
	}
	if month != nil && len(value) >= 8 {
		if d, err := strconv.Atoi(value[6:8]); err == nil && d >= 1 && d <= 31 {
			day = &d
		}
	}
	return &year, month, day
}
