package worker

import (
	"bytes"
	"context"
	"image"

	// Register decoders for the page formats analyze inspects.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/stumpapp/stump/pkg/errcodes"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/stumpapp/stump/pkg/joblogs"
	"github.com/stumpapp/stump/pkg/media"
	"github.com/stumpapp/stump/pkg/mediafile"
	"github.com/stumpapp/stump/pkg/models"
)

type analyzeState struct {
	MediaIDs []string `json:"media_ids"`
	Analyzed int      `json:"analyzed"`
	Failed   int      `json:"failed"`
}

// analyzeRunner records per-page pixel dimensions, one media file per task.
type analyzeRunner struct {
	w    *worker
	job  *models.Job
	jlog *joblogs.JobLogger
	spec *jobs.AnalyzeMediaSpec

	st analyzeState
}

func newAnalyzeRunner(w *worker, job *models.Job, spec *jobs.AnalyzeMediaSpec, jlog *joblogs.JobLogger) *analyzeRunner {
	return &analyzeRunner{w: w, job: job, jlog: jlog, spec: spec}
}

func (a *analyzeRunner) init(ctx context.Context, saved json.RawMessage) (int, error) {
	if len(saved) > 0 {
		if err := json.Unmarshal(saved, &a.st); err != nil {
			return 0, errors.WithStack(err)
		}
		return len(a.st.MediaIDs), nil
	}

	if a.spec.MediaID != "" {
		a.st.MediaIDs = []string{a.spec.MediaID}
	} else {
		rows, err := a.w.mediaService.ListMedia(ctx, media.ListMediaOptions{
			LibraryID: &a.spec.LibraryID,
			Statuses:  []string{models.EntityStatusReady},
		})
		if err != nil {
			return 0, err
		}
		a.st.MediaIDs = mediaIDsOf(rows)
	}

	a.jlog.Info("analyze planned", logger.Data{"media": len(a.st.MediaIDs)})
	return len(a.st.MediaIDs), nil
}

func (a *analyzeRunner) state() (json.RawMessage, error) {
	data, err := json.Marshal(a.st)
	return data, errors.WithStack(err)
}

func (a *analyzeRunner) step(ctx context.Context, index int) error {
	mediaID := a.st.MediaIDs[index]
	row, err := a.w.mediaService.RetrieveMedia(ctx, media.RetrieveMediaOptions{ID: &mediaID})
	if err != nil {
		if errors.Is(err, errcodes.NotFound("Media")) {
			a.jlog.Warn("media row vanished before analyze", logger.Data{"media_id": mediaID})
			return nil
		}
		return err
	}

	processor, err := a.w.dispatch.For(row.Path)
	if err != nil {
		if mediafile.IsKind(err, mediafile.ErrorKindUnsupported) {
			return nil
		}
		return err
	}

	// All pages or nothing; a half-measured dimension list is worse than
	// none.
	dims := make([]models.PageDimension, 0, row.Pages)
	for page := 1; page <= row.Pages; page++ {
		_, data, err := processor.Page(ctx, row.Path, page)
		if err != nil {
			a.recordFailure(mediaID, page, err)
			return nil
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			a.recordFailure(mediaID, page, err)
			return nil
		}
		dims = append(dims, models.PageDimension{Width: cfg.Width, Height: cfg.Height})
	}

	row.PageDimensions = dims
	err = a.w.mediaService.UpdateMedia(ctx, row, media.UpdateMediaOptions{Columns: []string{"page_dimensions"}})
	if err != nil {
		return err
	}
	a.st.Analyzed++
	a.jlog.Info("media analyzed", logger.Data{"media_id": mediaID, "pages": len(dims)})
	return nil
}

func (a *analyzeRunner) recordFailure(mediaID string, page int, err error) {
	a.st.Failed++
	a.jlog.Warn("analyze error", logger.Data{
		"media_id": mediaID,
		"page":     page,
		"error":    err.Error(),
	})
}

func (a *analyzeRunner) finalize(ctx context.Context) (json.RawMessage, error) {
	a.jlog.Info("analyze completed", logger.Data{
		"analyzed": a.st.Analyzed,
		"failed":   a.st.Failed,
	})
	summary := struct {
		Analyzed int `json:"analyzed"`
		Failed   int `json:"failed"`
	}{a.st.Analyzed, a.st.Failed}
	data, err := json.Marshal(summary)
	return data, errors.WithStack(err)
}
