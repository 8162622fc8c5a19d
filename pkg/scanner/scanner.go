package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/stumpapp/stump/pkg/mediafile"
	"github.com/stumpapp/stump/pkg/models"
)

// Task kinds, in the order a plan emits them for a given series.
const (
	TaskSeriesCreate = "series_create"
	TaskSeriesMark   = "series_mark"
	TaskMediaCreate  = "media_create"
	TaskMediaUpdate  = "media_update"
	TaskMediaMark    = "media_mark"
)

// Task is one unit of scan work. The walk produces the full list up front so
// the job knows its denominator before any row is written, and the list
// serializes into the job save state so a restored job resumes from its
// cursor without re-walking the tree.
type Task struct {
	Kind string `json:"kind"`
	// Path is the on-disk path the task concerns: a directory for series
	// tasks, a file for media tasks.
	Path string `json:"path,omitempty"`
	// SeriesPath is the owning series directory for media tasks. The executor
	// resolves the series row by path, which exists by the time the task runs
	// because a series task always precedes its media tasks.
	SeriesPath string `json:"series_path,omitempty"`
	// ID is the existing row for update and mark tasks.
	ID string `json:"id,omitempty"`
	// Present reports whether the path is on disk for mark tasks.
	Present bool `json:"present,omitempty"`
}

type PlanOptions struct {
	Library *models.Library
	// Scope restricts the walk to a single series directory. The unvisited
	// sweep then only covers that series' rows.
	Scope *models.Series
	// Series and Media are the library's existing rows, loaded once by the
	// caller. Series scans pass only the scoped series' rows.
	Series []*models.Series
	Media  []*models.Media

	VisitStrategy string
}

// Scanner diffs a library tree against its database rows and emits the tasks
// that reconcile them. It never writes rows itself.
type Scanner struct {
	dispatch *mediafile.Dispatch
}

func New(dispatch *mediafile.Dispatch) *Scanner {
	return &Scanner{dispatch: dispatch}
}

// discoveredFile is a supported media file found during the walk, with the
// stat fields the diff compares.
type discoveredFile struct {
	path    string
	size    int64
	modTime time.Time
}

// discoveredSeries is a directory that owns media files.
type discoveredSeries struct {
	path  string
	media []discoveredFile
}

// Plan walks the library (or the scoped series directory) and classifies
// every discovered path against the existing rows. A missing root is not an
// error: every row sweeps to a not-present mark and the caller decides what
// to do with the library itself.
func (s *Scanner) Plan(ctx context.Context, opts PlanOptions) ([]Task, error) {
	library := opts.Library

	matcher, err := NewIgnoreMatcher(library.Path, library.IgnoreRules)
	if err != nil {
		return nil, err
	}

	seriesIdx := newPathIndex[*models.Series]()
	for _, row := range opts.Series {
		seriesIdx.add(row.Path, row)
	}
	mediaIdx := newPathIndex[*models.Media]()
	for _, row := range opts.Media {
		mediaIdx.add(row.Path, row)
	}

	var discovered []discoveredSeries
	root := library.Path
	if opts.Scope != nil {
		root = opts.Scope.Path
	}

	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.WithStack(err)
		}
		// Root is gone; skip the walk and let the sweep mark everything.
	} else {
		switch {
		case opts.Scope != nil:
			media, err := s.walkSeriesDir(ctx, root, matcher)
			if err != nil {
				return nil, err
			}
			discovered = []discoveredSeries{{path: root, media: media}}
		case library.Pattern == models.LibraryPatternCollectionBased:
			if _, err := s.walkCollection(ctx, root, matcher, true, &discovered); err != nil {
				return nil, err
			}
		default:
			discovered, err = s.walkSeriesBased(ctx, root, matcher)
			if err != nil {
				return nil, err
			}
		}
	}

	regenMeta := opts.VisitStrategy == models.VisitStrategyRegenMeta
	regen := regenMeta || opts.VisitStrategy == models.VisitStrategyRegenHashes

	var tasks []Task
	visitedSeries := map[string]bool{}
	visitedMedia := map[string]bool{}

	for _, cand := range discovered {
		if row, ok := seriesIdx.get(cand.path); ok {
			visitedSeries[row.ID] = true
			// Meta regen revisits existing series so series.json is re-read
			// even when nothing moved.
			if row.Status != models.EntityStatusReady || regenMeta {
				tasks = append(tasks, Task{Kind: TaskSeriesMark, Path: cand.path, ID: row.ID, Present: true})
			}
		} else if len(cand.media) > 0 {
			tasks = append(tasks, Task{Kind: TaskSeriesCreate, Path: cand.path})
		} else {
			// An empty directory only becomes a series once it owns media.
			continue
		}

		for _, file := range cand.media {
			row, ok := mediaIdx.get(file.path)
			if !ok {
				tasks = append(tasks, Task{Kind: TaskMediaCreate, Path: file.path, SeriesPath: cand.path})
				continue
			}
			visitedMedia[row.ID] = true

			changed := row.Size != file.size ||
				row.ModifiedAt == nil ||
				!row.ModifiedAt.Equal(file.modTime)

			switch {
			case changed || regen:
				tasks = append(tasks, Task{Kind: TaskMediaUpdate, Path: file.path, SeriesPath: cand.path, ID: row.ID})
			case row.Status == models.EntityStatusMissing:
				tasks = append(tasks, Task{Kind: TaskMediaMark, Path: file.path, ID: row.ID, Present: true})
			case row.Status == models.EntityStatusError:
				// Known bad and unchanged; retried only when the file changes
				// or a regen strategy asks for it.
			default:
				// READY and unchanged.
			}
		}
	}

	// Sweep rows the walk never reached. Rows already MISSING stay as they
	// are so repeat scans don't churn.
	for _, row := range opts.Series {
		if visitedSeries[row.ID] || row.Status == models.EntityStatusMissing {
			continue
		}
		tasks = append(tasks, Task{Kind: TaskSeriesMark, Path: row.Path, ID: row.ID, Present: false})
	}
	for _, row := range opts.Media {
		if visitedMedia[row.ID] || row.Status == models.EntityStatusMissing {
			continue
		}
		tasks = append(tasks, Task{Kind: TaskMediaMark, Path: row.Path, ID: row.ID, Present: false})
	}

	return tasks, nil
}

// walkSeriesBased treats every immediate subdirectory as a series and
// collects its media recursively. Loose files in the library root own no
// series and are skipped.
func (s *Scanner) walkSeriesBased(ctx context.Context, root string, matcher *IgnoreMatcher) ([]discoveredSeries, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var discovered []discoveredSeries
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if matcher.Ignored(path) {
			continue
		}

		media, err := s.walkSeriesDir(ctx, path, matcher)
		if err != nil {
			return nil, err
		}
		discovered = append(discovered, discoveredSeries{path: path, media: media})
	}

	return discovered, nil
}

// walkSeriesDir collects every supported file under a series directory,
// loading .stumpignore files as directories are entered.
func (s *Scanner) walkSeriesDir(ctx context.Context, root string, matcher *IgnoreMatcher) ([]discoveredFile, error) {
	var files []discoveredFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.WithStack(err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != root {
				if strings.HasPrefix(d.Name(), ".") || matcher.Ignored(path) {
					return filepath.SkipDir
				}
			}
			return matcher.AddFile(filepath.Join(path, IgnoreFileName))
		}

		if strings.HasPrefix(d.Name(), ".") || !s.dispatch.Supports(path) || matcher.Ignored(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return errors.WithStack(err)
		}
		files = append(files, discoveredFile{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// walkCollection finds terminal directories: directories that directly hold
// supported files and have no media-bearing subdirectories. It reports
// whether the subtree under dir contains media so parents can tell they are
// not terminal.
func (s *Scanner) walkCollection(ctx context.Context, dir string, matcher *IgnoreMatcher, isRoot bool, out *[]discoveredSeries) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !isRoot {
		if err := matcher.AddFile(filepath.Join(dir, IgnoreFileName)); err != nil {
			return false, err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, errors.WithStack(err)
	}

	var direct []discoveredFile
	childrenHaveMedia := false

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if matcher.Ignored(path) {
				continue
			}
			has, err := s.walkCollection(ctx, path, matcher, false, out)
			if err != nil {
				return false, err
			}
			childrenHaveMedia = childrenHaveMedia || has
			continue
		}

		if !s.dispatch.Supports(path) || matcher.Ignored(path) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return false, errors.WithStack(err)
		}
		direct = append(direct, discoveredFile{path: path, size: info.Size(), modTime: info.ModTime()})
	}

	if len(direct) > 0 && !childrenHaveMedia && !isRoot {
		*out = append(*out, discoveredSeries{path: dir, media: direct})
	}

	return len(direct) > 0 || childrenHaveMedia, nil
}

// pathIndex looks rows up by path, falling back to a case-folded probe so a
// case-insensitive filesystem that reports different casing between scans
// does not produce duplicate rows. Identity stays case-sensitive: the folded
// map is consulted only when the exact spelling misses.
type pathIndex[T any] struct {
	exact  map[string]T
	folded map[string]T
}

func newPathIndex[T any]() *pathIndex[T] {
	return &pathIndex[T]{exact: map[string]T{}, folded: map[string]T{}}
}

func (idx *pathIndex[T]) add(path string, v T) {
	idx.exact[path] = v
	idx.folded[strings.ToLower(path)] = v
}

func (idx *pathIndex[T]) get(path string) (T, bool) {
	if v, ok := idx.exact[path]; ok {
		return v, true
	}
	v, ok := idx.folded[strings.ToLower(path)]
	return v, ok
}
