package worker

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/stumpapp/stump/pkg/errcodes"
	"github.com/stumpapp/stump/pkg/events"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/stumpapp/stump/pkg/joblogs"
	"github.com/stumpapp/stump/pkg/libraries"
	"github.com/stumpapp/stump/pkg/media"
	"github.com/stumpapp/stump/pkg/mediafile"
	"github.com/stumpapp/stump/pkg/models"
	"github.com/stumpapp/stump/pkg/rar"
	"github.com/stumpapp/stump/pkg/scanner"
	"github.com/stumpapp/stump/pkg/series"
)

// mediaMetadataColumns are the media columns owned by embedded metadata.
var mediaMetadataColumns = []string{
	"title", "meta_series", "number", "volume", "summary", "notes", "genre",
	"writers", "pencillers", "inkers", "colorists", "letterers",
	"cover_artists", "editors", "publisher", "links", "characters", "teams",
	"age_rating", "year", "month", "day", "page_count_meta",
}

type scanCounts struct {
	SeriesCreated int `json:"series_created"`
	MediaCreated  int `json:"media_created"`
	MediaUpdated  int `json:"media_updated"`
	SeriesMissing int `json:"series_missing"`
	MediaMissing  int `json:"media_missing"`
	FileErrors    int `json:"file_errors"`
}

// scanPlan is the scan runner's checkpointed state. The task list is fixed
// at init; counters ride along so a resumed job's summary stays accurate.
type scanPlan struct {
	Tasks  []scanner.Task `json:"tasks"`
	Counts scanCounts     `json:"counts"`
}

// scanRunner executes library and series scans. A series scan is a library
// scan scoped to one series directory.
type scanRunner struct {
	w    *worker
	job  *models.Job
	jlog *joblogs.JobLogger

	libraryID string
	seriesID  string
	strategy  string

	library *models.Library
	scope   *models.Series
	plan    scanPlan

	// seriesByPath caches ids created this run; resumed runs fall back to
	// path lookups.
	seriesByPath map[string]string
}

func newLibraryScanRunner(w *worker, job *models.Job, spec *jobs.LibraryScanSpec, jlog *joblogs.JobLogger) *scanRunner {
	return &scanRunner{
		w:            w,
		job:          job,
		jlog:         jlog,
		libraryID:    spec.LibraryID,
		strategy:     spec.VisitStrategy,
		seriesByPath: map[string]string{},
	}
}

func newSeriesScanRunner(w *worker, job *models.Job, spec *jobs.SeriesScanSpec, jlog *joblogs.JobLogger) *scanRunner {
	return &scanRunner{
		w:            w,
		job:          job,
		jlog:         jlog,
		seriesID:     spec.SeriesID,
		strategy:     spec.VisitStrategy,
		seriesByPath: map[string]string{},
	}
}

func (s *scanRunner) init(ctx context.Context, saved json.RawMessage) (int, error) {
	if s.seriesID != "" {
		scope, err := s.w.seriesService.RetrieveSeries(ctx, series.RetrieveSeriesOptions{ID: &s.seriesID})
		if err != nil {
			return 0, err
		}
		s.scope = scope
		s.libraryID = scope.LibraryID
	}

	library, err := s.w.libraryService.RetrieveLibrary(ctx, libraries.RetrieveLibraryOptions{ID: &s.libraryID})
	if err != nil {
		return 0, err
	}
	s.library = library

	if len(saved) > 0 {
		if err := json.Unmarshal(saved, &s.plan); err != nil {
			return 0, errors.WithStack(err)
		}
		return len(s.plan.Tasks), nil
	}

	var seriesRows []*models.Series
	var mediaRows []*models.Media
	if s.scope != nil {
		// A scoped scan only diffs the one series; other rows are not
		// walked and must not be swept.
		seriesRows = []*models.Series{s.scope}
		mediaRows, err = s.w.mediaService.ListMedia(ctx, media.ListMediaOptions{SeriesID: &s.scope.ID})
	} else {
		seriesRows, err = s.w.seriesService.ListSeries(ctx, series.ListSeriesOptions{LibraryID: &library.ID})
		if err == nil {
			mediaRows, err = s.w.mediaService.ListMedia(ctx, media.ListMediaOptions{LibraryID: &library.ID})
		}
	}
	if err != nil {
		return 0, err
	}

	tasks, err := s.w.scanner.Plan(ctx, scanner.PlanOptions{
		Library:       library,
		Scope:         s.scope,
		Series:        seriesRows,
		Media:         mediaRows,
		VisitStrategy: s.strategy,
	})
	if err != nil {
		return 0, err
	}
	s.plan.Tasks = tasks

	s.jlog.Info("scan planned", logger.Data{
		"library_id": library.ID,
		"tasks":      len(tasks),
	})
	return len(tasks), nil
}

func (s *scanRunner) state() (json.RawMessage, error) {
	data, err := json.Marshal(s.plan)
	return data, errors.WithStack(err)
}

func (s *scanRunner) step(ctx context.Context, index int) error {
	task := s.plan.Tasks[index]
	switch task.Kind {
	case scanner.TaskSeriesCreate:
		return s.createSeries(ctx, task)
	case scanner.TaskSeriesMark:
		return s.markSeries(ctx, task)
	case scanner.TaskMediaCreate:
		return s.createMedia(ctx, task)
	case scanner.TaskMediaUpdate:
		return s.updateMedia(ctx, task)
	case scanner.TaskMediaMark:
		return s.markMedia(ctx, task)
	default:
		return errors.Errorf("unknown scan task kind %q", task.Kind)
	}
}

func (s *scanRunner) createSeries(ctx context.Context, task scanner.Task) error {
	// Resume safe: the row may already exist when the checkpoint lagged the
	// insert.
	existing, err := s.w.seriesService.RetrieveSeries(ctx, series.RetrieveSeriesOptions{Path: &task.Path})
	if err == nil {
		s.seriesByPath[task.Path] = existing.ID
		return nil
	}
	if !errors.Is(err, errcodes.NotFound("Series")) {
		return err
	}

	row := &models.Series{
		LibraryID: s.library.ID,
		Name:      filepath.Base(task.Path),
		Path:      task.Path,
		Status:    models.EntityStatusReady,
	}
	meta, err := scanner.ReadSeriesMetadata(task.Path)
	if err != nil {
		s.plan.Counts.FileErrors++
		s.jlog.Warn("series.json error", logger.Data{"path": task.Path, "error": err.Error()})
	} else if meta != nil {
		meta.Apply(row)
	}

	if err := s.w.seriesService.CreateSeries(ctx, row); err != nil {
		return err
	}
	s.seriesByPath[task.Path] = row.ID
	s.plan.Counts.SeriesCreated++

	s.w.bus.Publish(events.Event{
		Kind:      events.KindSeriesCreated,
		JobID:     s.job.ID,
		LibraryID: s.library.ID,
		SeriesID:  row.ID,
	})
	s.jlog.Info("series created", logger.Data{"series_id": row.ID, "path": task.Path})
	return nil
}

func (s *scanRunner) markSeries(ctx context.Context, task scanner.Task) error {
	if !task.Present {
		if err := s.w.seriesService.MarkSeriesStatus(ctx, task.ID, models.EntityStatusMissing); err != nil {
			return err
		}
		s.plan.Counts.SeriesMissing++
		s.jlog.Info("series missing", logger.Data{"series_id": task.ID, "path": task.Path})
		return nil
	}

	// Back on disk, or revisited for a metadata regen: refresh series.json
	// before flipping the status. An absent file leaves prior metadata alone.
	row, err := s.w.seriesService.RetrieveSeries(ctx, series.RetrieveSeriesOptions{ID: &task.ID})
	if err != nil {
		return err
	}
	meta, err := scanner.ReadSeriesMetadata(row.Path)
	if err != nil {
		s.plan.Counts.FileErrors++
		s.jlog.Warn("series.json error", logger.Data{"path": row.Path, "error": err.Error()})
	}
	if meta != nil {
		meta.Apply(row)
		row.Status = models.EntityStatusReady
		columns := append([]string{"status"}, scanner.SeriesMetadataColumns...)
		return s.w.seriesService.UpdateSeries(ctx, row, series.UpdateSeriesOptions{Columns: columns})
	}
	return s.w.seriesService.MarkSeriesStatus(ctx, task.ID, models.EntityStatusReady)
}

func (s *scanRunner) createMedia(ctx context.Context, task scanner.Task) error {
	seriesID, err := s.resolveSeriesID(ctx, task.SeriesPath)
	if err != nil {
		return err
	}

	// Resume safe: skip files that already have a row.
	_, err = s.w.mediaService.RetrieveMedia(ctx, media.RetrieveMediaOptions{Path: &task.Path})
	if err == nil {
		return nil
	}
	if !errors.Is(err, errcodes.NotFound("Media")) {
		return err
	}

	// Gone since the plan was made (deleted, or a replayed conversion task
	// whose original was already repacked). The next scan reconciles.
	if _, serr := os.Stat(task.Path); os.IsNotExist(serr) {
		s.jlog.Warn("file vanished before task ran", logger.Data{"path": task.Path})
		return nil
	}

	path := task.Path
	if s.library.ConvertRARToZip && isRarPath(path) {
		converted, cerr := s.convertRar(ctx, path)
		if cerr != nil {
			return cerr
		}
		if converted == "" {
			// Conversion failed; an ERROR row for the original was recorded.
			return nil
		}
		path = converted
	}

	row := &models.Media{
		SeriesID:  seriesID,
		Name:      filepath.Base(path),
		Path:      path,
		Extension: mediafile.Extension(path),
		Status:    models.EntityStatusReady,
	}
	if ferr := s.processFile(ctx, row, s.library.ProcessMetadata, s.library.GenerateFileHashes); ferr != nil {
		if fe, ok := mediafile.AsFileError(ferr); ok {
			s.recordFileError(row, fe)
		} else {
			return ferr
		}
	}

	if err := s.w.mediaService.CreateMedia(ctx, row); err != nil {
		return err
	}
	s.plan.Counts.MediaCreated++

	s.w.bus.Publish(events.Event{
		Kind:      events.KindMediaCreated,
		JobID:     s.job.ID,
		LibraryID: s.library.ID,
		SeriesID:  seriesID,
		MediaID:   row.ID,
	})
	s.jlog.Info("media created", logger.Data{"media_id": row.ID, "path": path, "status": row.Status})
	return nil
}

func (s *scanRunner) updateMedia(ctx context.Context, task scanner.Task) error {
	row, err := s.w.mediaService.RetrieveMedia(ctx, media.RetrieveMediaOptions{ID: &task.ID})
	if err != nil {
		if errors.Is(err, errcodes.NotFound("Media")) {
			s.jlog.Warn("media row vanished mid-scan", logger.Data{"media_id": task.ID})
			return nil
		}
		return err
	}

	// Record the spelling the walk observed.
	row.Path = task.Path
	row.Name = filepath.Base(task.Path)
	row.Extension = mediafile.Extension(task.Path)

	// An explicit regen strategy overrides the library's flags.
	readMeta := s.library.ProcessMetadata || s.strategy == models.VisitStrategyRegenMeta
	rehash := s.library.GenerateFileHashes || s.strategy == models.VisitStrategyRegenHashes

	columns := []string{"name", "path", "extension", "size", "modified_at", "status", "status_reason"}
	if ferr := s.processFile(ctx, row, readMeta, rehash); ferr != nil {
		fe, ok := mediafile.AsFileError(ferr)
		if !ok {
			return ferr
		}
		s.recordFileError(row, fe)
	} else {
		row.Status = models.EntityStatusReady
		row.StatusReason = nil
		columns = append(columns, "pages")
		if readMeta {
			columns = append(columns, mediaMetadataColumns...)
		}
		if rehash {
			columns = append(columns, "hash")
		}
	}

	if err := s.w.mediaService.UpdateMedia(ctx, row, media.UpdateMediaOptions{Columns: columns}); err != nil {
		return err
	}
	s.plan.Counts.MediaUpdated++
	s.jlog.Info("media updated", logger.Data{"media_id": row.ID, "path": row.Path, "status": row.Status})
	return nil
}

func (s *scanRunner) markMedia(ctx context.Context, task scanner.Task) error {
	status := models.EntityStatusReady
	if !task.Present {
		status = models.EntityStatusMissing
		s.plan.Counts.MediaMissing++
	}
	if err := s.w.mediaService.MarkMediaStatus(ctx, task.ID, status, nil); err != nil {
		return err
	}
	s.jlog.Info("media marked", logger.Data{"media_id": task.ID, "status": status})
	return nil
}

// processFile fills row with everything the file yields: stat, page count,
// and optionally metadata and a content hash. A returned FileError belongs on
// the row, any other error fails the task.
func (s *scanRunner) processFile(ctx context.Context, row *models.Media, readMeta, rehash bool) error {
	info, err := os.Stat(row.Path)
	if err != nil {
		return mediafile.IOError(row.Path, err)
	}
	row.Size = info.Size()
	mod := info.ModTime()
	row.ModifiedAt = &mod

	processor, err := s.w.dispatch.For(row.Path)
	if err != nil {
		return err
	}

	pages, err := processor.PageCount(ctx, row.Path)
	if err != nil {
		return err
	}
	row.Pages = pages

	if readMeta {
		meta, err := processor.ReadMetadata(ctx, row.Path)
		if err != nil {
			return err
		}
		applyMetadata(row, meta)
	}
	if rehash {
		hash, err := processor.Hash(ctx, row.Path)
		if err != nil {
			return err
		}
		row.Hash = &hash
	}
	return nil
}

func (s *scanRunner) recordFileError(row *models.Media, fe *mediafile.FileError) {
	row.Status = models.EntityStatusError
	reason := fe.Error()
	row.StatusReason = &reason
	s.plan.Counts.FileErrors++
	s.jlog.Warn("file error", logger.Data{"path": row.Path, "error": reason})
}

// convertRar repacks a RAR file as CBZ per the library config. It returns the
// new path, or "" when the archive was bad and an ERROR row was written for
// the original.
func (s *scanRunner) convertRar(ctx context.Context, path string) (string, error) {
	converted, err := rar.ConvertToCBZ(ctx, path)
	if err != nil {
		fe, ok := mediafile.AsFileError(err)
		if !ok {
			return "", err
		}

		seriesID, rerr := s.resolveSeriesID(ctx, filepath.Dir(path))
		if rerr != nil {
			return "", rerr
		}
		row := &models.Media{
			SeriesID:  seriesID,
			Name:      filepath.Base(path),
			Path:      path,
			Extension: mediafile.Extension(path),
		}
		if info, serr := os.Stat(path); serr == nil {
			row.Size = info.Size()
			mod := info.ModTime()
			row.ModifiedAt = &mod
		}
		s.recordFileError(row, fe)
		if cerr := s.w.mediaService.CreateMedia(ctx, row); cerr != nil {
			return "", cerr
		}
		s.plan.Counts.MediaCreated++
		return "", nil
	}

	// The original either goes away or moves out of the supported set, so
	// the next scan doesn't convert it again.
	if s.library.HardDeleteConversions {
		if err := os.Remove(path); err != nil {
			s.jlog.Warn("remove converted original error", logger.Data{"path": path, "error": err.Error()})
		}
	} else if err := os.Rename(path, path+".bak"); err != nil {
		s.jlog.Warn("rename converted original error", logger.Data{"path": path, "error": err.Error()})
	}
	s.jlog.Info("converted rar to cbz", logger.Data{"path": path, "converted": converted})
	return converted, nil
}

func (s *scanRunner) resolveSeriesID(ctx context.Context, path string) (string, error) {
	if id, ok := s.seriesByPath[path]; ok {
		return id, nil
	}
	row, err := s.w.seriesService.RetrieveSeries(ctx, series.RetrieveSeriesOptions{Path: &path})
	if err != nil {
		return "", err
	}
	s.seriesByPath[path] = row.ID
	return row.ID, nil
}

func (s *scanRunner) finalize(ctx context.Context) (json.RawMessage, error) {
	// The library row's status follows its root directory.
	if s.scope == nil {
		status := models.EntityStatusReady
		if _, err := os.Stat(s.library.Path); os.IsNotExist(err) {
			status = models.EntityStatusMissing
		}
		if s.library.Status != status {
			s.library.Status = status
			err := s.w.libraryService.UpdateLibrary(ctx, s.library, libraries.UpdateLibraryOptions{Columns: []string{"status"}})
			if err != nil {
				return nil, err
			}
		}
	}

	counts := s.plan.Counts
	s.w.bus.Publish(events.Event{
		Kind:      events.KindScanCompleted,
		JobID:     s.job.ID,
		LibraryID: s.libraryID,
		SeriesID:  s.seriesID,
	})
	s.jlog.Info("scan completed", logger.Data{
		"series_created": counts.SeriesCreated,
		"media_created":  counts.MediaCreated,
		"media_updated":  counts.MediaUpdated,
		"series_missing": counts.SeriesMissing,
		"media_missing":  counts.MediaMissing,
		"file_errors":    counts.FileErrors,
	})

	// New or changed files get thumbnails once the scan lands.
	if s.library.ThumbnailConfig != nil && counts.MediaCreated+counts.MediaUpdated > 0 {
		spec := &jobs.ThumbnailGenerationSpec{}
		if s.scope != nil {
			spec.SeriesID = s.scope.ID
		} else {
			spec.LibraryID = s.library.ID
		}
		if _, err := s.w.enqueuer.Enqueue(ctx, spec); err != nil {
			s.jlog.Warn("queue thumbnail job error", logger.Data{"error": err.Error()})
		}
	}

	data, err := json.Marshal(counts)
	return data, errors.WithStack(err)
}

func isRarPath(path string) bool {
	ext := mediafile.Extension(path)
	return ext == "cbr" || ext == "rar"
}

func applyMetadata(row *models.Media, meta *mediafile.Metadata) {
	if meta == nil {
		return
	}
	row.Title = meta.Title
	row.MetaSeries = meta.Series
	row.Number = meta.Number
	row.Volume = meta.Volume
	row.Summary = meta.Summary
	row.Notes = meta.Notes
	row.Genre = meta.Genre
	row.Writers = meta.Writers
	row.Pencillers = meta.Pencillers
	row.Inkers = meta.Inkers
	row.Colorists = meta.Colorists
	row.Letterers = meta.Letterers
	row.CoverArtists = meta.CoverArtists
	row.Editors = meta.Editors
	row.Publisher = meta.Publisher
	row.Links = meta.Links
	row.Characters = meta.Characters
	row.Teams = meta.Teams
	row.AgeRating = meta.AgeRating
	row.Year = meta.Year
	row.Month = meta.Month
	row.Day = meta.Day
	row.PageCountMeta = meta.PageCount
}
