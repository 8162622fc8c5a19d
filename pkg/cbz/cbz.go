package cbz

import (
	"archive/zip"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/stumpapp/stump/pkg/mediafile"
)

// Processor reads zip-backed comic archives (.cbz and .zip). Pages are the
// archive's image entries in byte-order of their full names, which matches
// how reader apps order them.
type Processor struct{}

func New() *Processor {
	return &Processor{}
}

func (p *Processor) PageCount(ctx context.Context, path string) (int, error) {
	r, images, err := openArchive(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	if err := ctx.Err(); err != nil {
		return 0, errors.WithStack(err)
	}
	if len(images) == 0 {
		return 0, mediafile.Empty(path)
	}
	return len(images), nil
}

func (p *Processor) Page(ctx context.Context, path string, page int) (string, []byte, error) {
	r, images, err := openArchive(path)
	if err != nil {
		return "", nil, err
	}
	defer r.Close()

	if err := ctx.Err(); err != nil {
		return "", nil, errors.WithStack(err)
	}
	if len(images) == 0 {
		return "", nil, mediafile.Empty(path)
	}
	if page < 1 || page > len(images) {
		return "", nil, mediafile.PageOutOfRange(path, page, len(images))
	}

	entry := images[page-1]
	data, err := readEntry(entry)
	if err != nil {
		return "", nil, mediafile.Corrupt(path, err)
	}
	return mediafile.ImageContentType(entry.Name, data), data, nil
}

// Cover returns the page flagged FrontCover in ComicInfo.xml, then InnerCover,
// then the first image. A malformed ComicInfo.xml is ignored here; only
// ReadMetadata reports it.
func (p *Processor) Cover(ctx context.Context, path string) (string, []byte, error) {
	r, images, err := openArchive(path)
	if err != nil {
		return "", nil, err
	}
	defer r.Close()

	if err := ctx.Err(); err != nil {
		return "", nil, errors.WithStack(err)
	}
	if len(images) == 0 {
		return "", nil, mediafile.Empty(path)
	}

	entry := images[0]
	if info, err := parseComicInfoEntry(r); err == nil && info != nil {
		if idx := info.CoverPageIndex(); idx != nil && *idx < len(images) {
			entry = images[*idx]
		}
	}

	data, err := readEntry(entry)
	if err != nil {
		return "", nil, mediafile.Corrupt(path, err)
	}
	return mediafile.ImageContentType(entry.Name, data), data, nil
}

func (p *Processor) ReadMetadata(ctx context.Context, path string) (*mediafile.Metadata, error) {
	r, _, err := openArchive(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	entry := findComicInfoEntry(r)
	if entry == nil {
		return nil, nil
	}
	data, err := readEntry(entry)
	if err != nil {
		return nil, mediafile.Corrupt(path, err)
	}
	info, err := ParseComicInfo(data)
	if err != nil {
		return nil, mediafile.MetadataParse(path, err)
	}
	return info.ToMetadata(), nil
}

// Hash digests the raw bytes of the first few image entries plus the sample
// count, so renaming the file or editing ComicInfo.xml keeps the hash stable.
func (p *Processor) Hash(ctx context.Context, path string) (string, error) {
	r, images, err := openArchive(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	sampleCount := len(images)
	if sampleCount > mediafile.SampleSize {
		sampleCount = mediafile.SampleSize
	}
	samples := make([][]byte, 0, sampleCount)
	for _, entry := range images[:sampleCount] {
		if err := ctx.Err(); err != nil {
			return "", errors.WithStack(err)
		}
		data, err := readEntry(entry)
		if err != nil {
			return "", mediafile.Corrupt(path, err)
		}
		samples = append(samples, data)
	}
	return mediafile.SampleHash(samples), nil
}

// openArchive opens the zip and returns its image entries sorted by name.
// Hidden entries and macOS resource forks are excluded.
func openArchive(path string) (*zip.ReadCloser, []*zip.File, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return nil, nil, mediafile.Corrupt(path, err)
		}
		return nil, nil, mediafile.IOError(path, err)
	}

	var images []*zip.File
	for _, file := range r.File {
		if file.FileInfo().IsDir() || isHiddenEntry(file.Name) {
			continue
		}
		if mediafile.IsImagePath(file.Name) {
			images = append(images, file)
		}
	}
	sort.Slice(images, func(i, j int) bool {
		return images[i].Name < images[j].Name
	})
	return r, images, nil
}

func isHiddenEntry(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// findComicInfoEntry locates ComicInfo.xml anywhere in the archive. The
// shallowest match wins; ties break by name.
func findComicInfoEntry(r *zip.ReadCloser) *zip.File {
	var best *zip.File
	bestDepth := -1
	for _, file := range r.File {
		if isHiddenEntry(file.Name) {
			continue
		}
		name := file.Name
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		if !strings.EqualFold(name, "ComicInfo.xml") {
			continue
		}
		depth := strings.Count(file.Name, "/")
		if best == nil || depth < bestDepth || (depth == bestDepth && file.Name < best.Name) {
			best = file
			bestDepth = depth
		}
	}
	return best
}

func parseComicInfoEntry(r *zip.ReadCloser) (*ComicInfo, error) {
	entry := findComicInfoEntry(r)
	if entry == nil {
		return nil, nil
	}
	data, err := readEntry(entry)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ParseComicInfo(data)
}

func readEntry(file *zip.File) ([]byte, error) {
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

func splitNames(list string) []string {
	if list == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
