// Package epub reads EPUB documents. Pages are spine entries, in spine
// order; the page count is the spine length, not a print-page estimate.
package epub

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/stumpapp/stump/pkg/mediafile"
)

type Processor struct{}

func New() *Processor {
	return &Processor{}
}

type document struct {
	reader  *zip.ReadCloser
	entries map[string]*zip.File
	pkg     *Package
	// base is the OPF's directory inside the archive, "" at the root,
	// otherwise with a trailing slash. All manifest hrefs resolve against it.
	base string
}

func (d *document) close() {
	d.reader.Close()
}

type containerXML struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

func (p *Processor) PageCount(ctx context.Context, path string) (int, error) {
	doc, err := openDocument(path)
	if err != nil {
		return 0, err
	}
	defer doc.close()

	if err := ctx.Err(); err != nil {
		return 0, errors.WithStack(err)
	}
	count := len(doc.pkg.Spine.Itemref)
	if count == 0 {
		return 0, mediafile.Empty(path)
	}
	return count, nil
}

func (p *Processor) Page(ctx context.Context, path string, page int) (string, []byte, error) {
	doc, err := openDocument(path)
	if err != nil {
		return "", nil, err
	}
	defer doc.close()

	if err := ctx.Err(); err != nil {
		return "", nil, errors.WithStack(err)
	}
	spine := doc.pkg.Spine.Itemref
	if len(spine) == 0 {
		return "", nil, mediafile.Empty(path)
	}
	if page < 1 || page > len(spine) {
		return "", nil, mediafile.PageOutOfRange(path, page, len(spine))
	}

	item := doc.manifestItemByID(spine[page-1].Idref)
	if item == nil {
		return "", nil, mediafile.Corrupt(path, errors.Errorf("spine idref %q has no manifest item", spine[page-1].Idref))
	}
	return doc.readItem(path, item)
}

// Cover returns the cover image: the EPUB 3 cover-image manifest property,
// then the EPUB 2 meta[name=cover] reference, then any image item whose id or
// href mentions "cover". Books with no cover hints at all fall back to the
// first spine item so there is always something to show.
func (p *Processor) Cover(ctx context.Context, path string) (string, []byte, error) {
	doc, err := openDocument(path)
	if err != nil {
		return "", nil, err
	}
	defer doc.close()

	if err := ctx.Err(); err != nil {
		return "", nil, errors.WithStack(err)
	}
	item := doc.coverItem()
	if item == nil {
		item = doc.firstSpineItem()
	}
	if item == nil {
		return "", nil, mediafile.NewFileError(mediafile.ErrorKindEmpty, path, "no cover image found", nil)
	}
	return doc.readItem(path, item)
}

func (p *Processor) ReadMetadata(ctx context.Context, path string) (*mediafile.Metadata, error) {
	doc, err := openDocument(path)
	if err != nil {
		return nil, err
	}
	defer doc.close()

	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return doc.pkg.toMetadata(), nil
}

// Hash digests the file's leading bytes plus its size. EPUB pages are not
// standalone entries worth sampling, so the whole-container prefix is the
// stable signal.
func (p *Processor) Hash(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.WithStack(err)
	}
	return mediafile.LeadingHash(path)
}

func openDocument(name string) (*document, error) {
	r, err := zip.OpenReader(name)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return nil, mediafile.Corrupt(name, err)
		}
		return nil, mediafile.IOError(name, err)
	}

	doc := &document{reader: r, entries: make(map[string]*zip.File, len(r.File))}
	for _, file := range r.File {
		doc.entries[file.Name] = file
	}

	opfName, err := findOPFName(doc)
	if err != nil {
		r.Close()
		return nil, mediafile.Corrupt(name, err)
	}

	opfData, err := doc.readEntry(opfName)
	if err != nil {
		r.Close()
		return nil, mediafile.Corrupt(name, err)
	}
	pkg := &Package{}
	if err := xml.Unmarshal(opfData, pkg); err != nil {
		r.Close()
		return nil, mediafile.Corrupt(name, err)
	}
	doc.pkg = pkg

	// All files are referenced from the location of the OPF file. If its dir
	// is `.` the OPF sits at the archive root and no prefix applies.
	base := path.Dir(opfName)
	if base == "." {
		base = ""
	} else {
		base += "/"
	}
	doc.base = base

	return doc, nil
}

// findOPFName resolves the package document's entry name, preferring the
// container.xml rootfile and falling back to the first .opf entry.
func findOPFName(doc *document) (string, error) {
	if data, err := doc.readEntry("META-INF/container.xml"); err == nil {
		c := &containerXML{}
		if err := xml.Unmarshal(data, c); err != nil {
			return "", errors.Wrap(err, "parse container.xml")
		}
		for _, rf := range c.Rootfiles.Rootfile {
			if rf.FullPath != "" {
				if _, ok := doc.entries[rf.FullPath]; !ok {
					return "", errors.Errorf("container.xml rootfile %q not in archive", rf.FullPath)
				}
				return rf.FullPath, nil
			}
		}
	}

	for _, file := range doc.reader.File {
		if strings.HasSuffix(strings.ToLower(file.Name), ".opf") {
			return file.Name, nil
		}
	}
	return "", errors.New("no opf file found")
}

func (d *document) readEntry(name string) ([]byte, error) {
	file, ok := d.entries[name]
	if !ok {
		return nil, errors.Errorf("entry %q not in archive", name)
	}
	rc, err := file.Open()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

func (d *document) manifestItemByID(id string) *ManifestItem {
	for i := range d.pkg.Manifest.Item {
		if d.pkg.Manifest.Item[i].ID == id {
			return &d.pkg.Manifest.Item[i]
		}
	}
	return nil
}

func (d *document) coverItem() *ManifestItem {
	for i := range d.pkg.Manifest.Item {
		if strings.Contains(d.pkg.Manifest.Item[i].Properties, "cover-image") {
			return &d.pkg.Manifest.Item[i]
		}
	}

	if coverID := d.pkg.metaContentByName("cover"); coverID != "" {
		if item := d.manifestItemByID(coverID); item != nil {
			return item
		}
	}

	for i := range d.pkg.Manifest.Item {
		item := &d.pkg.Manifest.Item[i]
		if !strings.HasPrefix(item.MediaType, "image/") {
			continue
		}
		if strings.Contains(strings.ToLower(item.ID), "cover") ||
			strings.Contains(strings.ToLower(item.Href), "cover") {
			return item
		}
	}
	return nil
}

func (d *document) firstSpineItem() *ManifestItem {
	if len(d.pkg.Spine.Itemref) == 0 {
		return nil
	}
	return d.manifestItemByID(d.pkg.Spine.Itemref[0].Idref)
}

func (d *document) readItem(archivePath string, item *ManifestItem) (string, []byte, error) {
	entryName, err := resolveHref(d.base, item.Href)
	if err != nil {
		return "", nil, mediafile.Corrupt(archivePath, err)
	}
	data, err := d.readEntry(entryName)
	if err != nil {
		return "", nil, mediafile.Corrupt(archivePath, err)
	}
	contentType := item.MediaType
	if contentType == "" {
		contentType = mediafile.ImageContentType(entryName, data)
	}
	return contentType, data, nil
}

// resolveHref canonicalizes a manifest href against the OPF's directory and
// rejects paths that climb out of the archive.
func resolveHref(base, href string) (string, error) {
	if idx := strings.IndexByte(href, '#'); idx >= 0 {
		href = href[:idx]
	}
	unescaped, err := url.PathUnescape(href)
	if err != nil {
		return "", errors.Wrapf(err, "unescape href %q", href)
	}
	cleaned := path.Clean(base + unescaped)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || path.IsAbs(cleaned) {
		return "", errors.Errorf("href %q escapes the container", href)
	}
	return cleaned, nil
}
