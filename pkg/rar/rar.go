// Package rar reads RAR-backed comic archives (.cbr and .rar). RAR archives
// are stream-only, so every operation is one or two forward sweeps; there is
// no random access to entries.
package rar

import (
	"context"
	"io"
	"io/fs"
	"sort"
	"strings"

	"github.com/nwaples/rardecode/v2"
	"github.com/pkg/errors"
	"github.com/stumpapp/stump/pkg/cbz"
	"github.com/stumpapp/stump/pkg/mediafile"
)

type Processor struct{}

func New() *Processor {
	return &Processor{}
}

func (p *Processor) PageCount(ctx context.Context, path string) (int, error) {
	images, err := listImages(ctx, path)
	if err != nil {
		return 0, err
	}
	if len(images) == 0 {
		return 0, mediafile.Empty(path)
	}
	return len(images), nil
}

func (p *Processor) Page(ctx context.Context, path string, page int) (string, []byte, error) {
	images, err := listImages(ctx, path)
	if err != nil {
		return "", nil, err
	}
	if len(images) == 0 {
		return "", nil, mediafile.Empty(path)
	}
	if page < 1 || page > len(images) {
		return "", nil, mediafile.PageOutOfRange(path, page, len(images))
	}

	name := images[page-1]
	entries, err := readEntries(ctx, path, map[string]bool{name: true})
	if err != nil {
		return "", nil, err
	}
	data, ok := entries[name]
	if !ok {
		return "", nil, mediafile.Corrupt(path, errors.Errorf("entry %q vanished between sweeps", name))
	}
	return mediafile.ImageContentType(name, data), data, nil
}

func (p *Processor) Cover(ctx context.Context, path string) (string, []byte, error) {
	images, err := listImages(ctx, path)
	if err != nil {
		return "", nil, err
	}
	if len(images) == 0 {
		return "", nil, mediafile.Empty(path)
	}

	name := images[0]
	if info, err := p.readComicInfo(ctx, path); err == nil && info != nil {
		if idx := info.CoverPageIndex(); idx != nil && *idx < len(images) {
			name = images[*idx]
		}
	}

	entries, err := readEntries(ctx, path, map[string]bool{name: true})
	if err != nil {
		return "", nil, err
	}
	data, ok := entries[name]
	if !ok {
		return "", nil, mediafile.Corrupt(path, errors.Errorf("entry %q vanished between sweeps", name))
	}
	return mediafile.ImageContentType(name, data), data, nil
}

func (p *Processor) ReadMetadata(ctx context.Context, path string) (*mediafile.Metadata, error) {
	name, err := findComicInfoName(ctx, path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, nil
	}
	entries, err := readEntries(ctx, path, map[string]bool{name: true})
	if err != nil {
		return nil, err
	}
	info, err := cbz.ParseComicInfo(entries[name])
	if err != nil {
		return nil, mediafile.MetadataParse(path, err)
	}
	return info.ToMetadata(), nil
}

func (p *Processor) Hash(ctx context.Context, path string) (string, error) {
	images, err := listImages(ctx, path)
	if err != nil {
		return "", err
	}

	sampleCount := len(images)
	if sampleCount > mediafile.SampleSize {
		sampleCount = mediafile.SampleSize
	}
	want := map[string]bool{}
	for _, name := range images[:sampleCount] {
		want[name] = true
	}
	entries, err := readEntries(ctx, path, want)
	if err != nil {
		return "", err
	}

	// Samples go into the digest in page order, not archive order.
	samples := make([][]byte, 0, sampleCount)
	for _, name := range images[:sampleCount] {
		samples = append(samples, entries[name])
	}
	return mediafile.SampleHash(samples), nil
}

func (p *Processor) readComicInfo(ctx context.Context, path string) (*cbz.ComicInfo, error) {
	name, err := findComicInfoName(ctx, path)
	if err != nil || name == "" {
		return nil, err
	}
	entries, err := readEntries(ctx, path, map[string]bool{name: true})
	if err != nil {
		return nil, err
	}
	return cbz.ParseComicInfo(entries[name])
}

func openReader(path string) (*rardecode.ReadCloser, error) {
	r, err := rardecode.OpenReader(path)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, mediafile.IOError(path, err)
		}
		return nil, mediafile.Corrupt(path, err)
	}
	return r, nil
}

// listImages sweeps the archive once and returns the image entry names in
// page order.
func listImages(ctx context.Context, path string) ([]string, error) {
	r, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var names []string
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		hdr, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, mediafile.Corrupt(path, err)
		}
		name := normalizeName(hdr.Name)
		if hdr.IsDir || isHiddenEntry(name) {
			continue
		}
		if mediafile.IsImagePath(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// readEntries sweeps the archive collecting the wanted entries, stopping
// early once everything was found.
func readEntries(ctx context.Context, path string, want map[string]bool) (map[string][]byte, error) {
	r, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	found := make(map[string][]byte, len(want))
	for len(found) < len(want) {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		hdr, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, mediafile.Corrupt(path, err)
		}
		name := normalizeName(hdr.Name)
		if hdr.IsDir || !want[name] {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, mediafile.Corrupt(path, err)
		}
		found[name] = data
	}
	return found, nil
}

// findComicInfoName locates ComicInfo.xml anywhere in the archive. The
// shallowest match wins; ties break by name.
func findComicInfoName(ctx context.Context, path string) (string, error) {
	r, err := openReader(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	best := ""
	bestDepth := -1
	for {
		if err := ctx.Err(); err != nil {
			return "", errors.WithStack(err)
		}
		hdr, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", mediafile.Corrupt(path, err)
		}
		name := normalizeName(hdr.Name)
		if hdr.IsDir || isHiddenEntry(name) {
			continue
		}
		base := name
		if idx := strings.LastIndex(base, "/"); idx >= 0 {
			base = base[idx+1:]
		}
		if !strings.EqualFold(base, "ComicInfo.xml") {
			continue
		}
		depth := strings.Count(name, "/")
		if best == "" || depth < bestDepth || (depth == bestDepth && name < best) {
			best = name
			bestDepth = depth
		}
	}
	return best, nil
}

func normalizeName(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
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
