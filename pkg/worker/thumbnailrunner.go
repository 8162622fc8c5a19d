package worker

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/stumpapp/stump/pkg/errcodes"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/stumpapp/stump/pkg/joblogs"
	"github.com/stumpapp/stump/pkg/libraries"
	"github.com/stumpapp/stump/pkg/media"
	"github.com/stumpapp/stump/pkg/models"
)

// thumbState pins the target list and chunk size at plan time so a resumed
// job walks the same chunks even if config changed between runs.
type thumbState struct {
	MediaIDs  []string `json:"media_ids"`
	Chunk     int      `json:"chunk"`
	Force     bool     `json:"force"`
	Generated int      `json:"generated"`
	Failed    int      `json:"failed"`
}

// thumbnailRunner generates thumbnails in chunks, fanning each chunk out
// across the worker parallelism budget. A chunk is one task, so pause and
// cancel land on chunk boundaries.
type thumbnailRunner struct {
	w    *worker
	job  *models.Job
	jlog *joblogs.JobLogger
	spec *jobs.ThumbnailGenerationSpec

	st thumbState

	mu      sync.Mutex
	configs map[string]*models.ThumbnailConfig
}

func newThumbnailRunner(w *worker, job *models.Job, spec *jobs.ThumbnailGenerationSpec, jlog *joblogs.JobLogger) *thumbnailRunner {
	return &thumbnailRunner{
		w:       w,
		job:     job,
		jlog:    jlog,
		spec:    spec,
		configs: map[string]*models.ThumbnailConfig{},
	}
}

func (t *thumbnailRunner) init(ctx context.Context, saved json.RawMessage) (int, error) {
	if len(saved) > 0 {
		if err := json.Unmarshal(saved, &t.st); err != nil {
			return 0, errors.WithStack(err)
		}
		if t.st.Chunk < 1 {
			t.st.Chunk = 1
		}
		return t.chunkCount(), nil
	}

	t.st.Force = t.spec.Force
	t.st.Chunk = t.w.cfg.ThumbnailChunk
	if t.st.Chunk < 1 {
		t.st.Chunk = 1
	}

	switch {
	case len(t.spec.MediaIDs) > 0:
		t.st.MediaIDs = t.spec.MediaIDs
	case t.spec.SeriesID != "":
		rows, err := t.w.mediaService.ListMedia(ctx, media.ListMediaOptions{
			SeriesID: &t.spec.SeriesID,
			Statuses: []string{models.EntityStatusReady},
		})
		if err != nil {
			return 0, err
		}
		t.st.MediaIDs = mediaIDsOf(rows)
	default:
		rows, err := t.w.mediaService.ListMedia(ctx, media.ListMediaOptions{
			LibraryID: &t.spec.LibraryID,
			Statuses:  []string{models.EntityStatusReady},
		})
		if err != nil {
			return 0, err
		}
		t.st.MediaIDs = mediaIDsOf(rows)
	}

	t.jlog.Info("thumbnail generation planned", logger.Data{
		"media": len(t.st.MediaIDs),
		"force": t.st.Force,
	})
	return t.chunkCount(), nil
}

func (t *thumbnailRunner) chunkCount() int {
	return (len(t.st.MediaIDs) + t.st.Chunk - 1) / t.st.Chunk
}

func (t *thumbnailRunner) state() (json.RawMessage, error) {
	data, err := json.Marshal(t.st)
	return data, errors.WithStack(err)
}

func (t *thumbnailRunner) step(ctx context.Context, index int) error {
	start := index * t.st.Chunk
	end := start + t.st.Chunk
	if end > len(t.st.MediaIDs) {
		end = len(t.st.MediaIDs)
	}

	parallelism := t.w.cfg.WorkerParallelism
	if parallelism < 1 {
		parallelism = 1
	}
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup
	for _, id := range t.st.MediaIDs[start:end] {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(mediaID string) {
			defer wg.Done()
			defer func() { <-sem }()
			t.generateOne(ctx, mediaID)
		}(id)
	}
	wg.Wait()
	return ctx.Err()
}

func (t *thumbnailRunner) generateOne(ctx context.Context, mediaID string) {
	row, err := t.w.mediaService.RetrieveMedia(ctx, media.RetrieveMediaOptions{ID: &mediaID})
	if err != nil {
		if errors.Is(err, errcodes.NotFound("Media")) {
			return
		}
		t.recordFailure(mediaID, err)
		return
	}
	if row.Status != models.EntityStatusReady {
		return
	}

	cfg, err := t.configFor(ctx, row.Series.LibraryID)
	if err != nil {
		t.recordFailure(mediaID, err)
		return
	}
	if cfg == nil {
		// Thumbnails disabled for this library.
		return
	}

	if _, err := t.w.thumbnails.Generate(ctx, mediaID, row.Path, cfg, t.st.Force); err != nil {
		t.recordFailure(mediaID, err)
		return
	}
	t.mu.Lock()
	t.st.Generated++
	t.mu.Unlock()
}

func (t *thumbnailRunner) recordFailure(mediaID string, err error) {
	t.mu.Lock()
	t.st.Failed++
	t.mu.Unlock()
	t.jlog.Warn("thumbnail error", logger.Data{"media_id": mediaID, "error": err.Error()})
}

func (t *thumbnailRunner) configFor(ctx context.Context, libraryID string) (*models.ThumbnailConfig, error) {
	t.mu.Lock()
	cfg, ok := t.configs[libraryID]
	t.mu.Unlock()
	if ok {
		return cfg, nil
	}

	library, err := t.w.libraryService.RetrieveLibrary(ctx, libraries.RetrieveLibraryOptions{ID: &libraryID})
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.configs[libraryID] = library.ThumbnailConfig
	t.mu.Unlock()
	return library.ThumbnailConfig, nil
}

func (t *thumbnailRunner) finalize(ctx context.Context) (json.RawMessage, error) {
	t.jlog.Info("thumbnail generation completed", logger.Data{
		"generated": t.st.Generated,
		"failed":    t.st.Failed,
	})
	summary := struct {
		Generated int `json:"generated"`
		Failed    int `json:"failed"`
	}{t.st.Generated, t.st.Failed}
	data, err := json.Marshal(summary)
	return data, errors.WithStack(err)
}

func mediaIDsOf(rows []*models.Media) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}
