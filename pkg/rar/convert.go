package rar

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/stumpapp/stump/pkg/fileutils"
	"github.com/stumpapp/stump/pkg/mediafile"
)

// ConvertToCBZ repacks the RAR archive as a CBZ beside it and returns the new
// path. Entry contents are copied as-is, so ComicInfo.xml and page images
// survive the trip. The original file is left in place; callers decide
// whether to delete it. The target is written through a temp file plus
// rename, and picks a "(n)" suffix when the name is already taken.
func ConvertToCBZ(ctx context.Context, path string) (string, error) {
	target := strings.TrimSuffix(path, filepath.Ext(path)) + ".cbz"
	target = fileutils.UniquePath(target)
	tmp := target + ".tmp"

	r, err := openReader(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	f, err := os.Create(tmp)
	if err != nil {
		return "", mediafile.IOError(path, err)
	}
	zw := zip.NewWriter(f)
	cleanup := func() {
		zw.Close()
		f.Close()
		os.Remove(tmp)
	}

	for {
		if err := ctx.Err(); err != nil {
			cleanup()
			return "", errors.WithStack(err)
		}
		hdr, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			cleanup()
			return "", mediafile.Corrupt(path, err)
		}
		name := normalizeName(hdr.Name)
		if hdr.IsDir || isHiddenEntry(name) {
			continue
		}
		w, err := zw.Create(name)
		if err != nil {
			cleanup()
			return "", errors.WithStack(err)
		}
		if _, err := io.Copy(w, r); err != nil {
			cleanup()
			return "", mediafile.Corrupt(path, err)
		}
	}

	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", errors.WithStack(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", errors.WithStack(err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", errors.WithStack(err)
	}
	return target, nil
}
