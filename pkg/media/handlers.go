package media

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stumpapp/stump/pkg/errcodes"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/stumpapp/stump/pkg/libraries"
	"github.com/stumpapp/stump/pkg/mediafile"
	"github.com/stumpapp/stump/pkg/models"
	"github.com/stumpapp/stump/pkg/thumbnail"
)

type handler struct {
	mediaService   *Service
	libraryService *libraries.Service
	enqueuer       jobs.Enqueuer
	dispatch       *mediafile.Dispatch
	thumbnails     *thumbnail.Generator
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListMediaQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := ListMediaOptions{
		Limit:     &params.Limit,
		Offset:    &params.Offset,
		SeriesID:  params.SeriesID,
		LibraryID: params.LibraryID,
		Statuses:  params.Status,
	}

	mediaList, total, err := h.mediaService.ListMediaWithTotal(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	response := struct {
		Media []*models.Media `json:"media"`
		Total int             `json:"total"`
	}{mediaList, total}

	return errors.WithStack(c.JSON(http.StatusOK, response))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	media, err := h.mediaService.RetrieveMedia(ctx, RetrieveMediaOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, media))
}

func (h *handler) page(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	page, err := strconv.Atoi(c.Param("page"))
	if err != nil || page < 1 {
		return errcodes.NotFound("Page")
	}

	media, err := h.mediaService.RetrieveMedia(ctx, RetrieveMediaOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	processor, err := h.dispatch.For(media.Path)
	if err != nil {
		return errcodes.UnsupportedMediaType()
	}

	contentType, data, err := processor.Page(ctx, media.Path, page)
	if err != nil {
		if mediafile.IsKind(err, mediafile.ErrorKindPageOutOfRange) {
			return errcodes.NotFound("Page")
		}
		return errors.WithStack(err)
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=86400")

	return errors.WithStack(c.Blob(http.StatusOK, contentType, data))
}

func (h *handler) thumbnail(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	media, err := h.mediaService.RetrieveMedia(ctx, RetrieveMediaOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	library, err := h.libraryService.RetrieveLibrary(ctx, libraries.RetrieveLibraryOptions{
		ID: &media.Series.LibraryID,
	})
	if err != nil {
		return errors.WithStack(err)
	}
	if library.ThumbnailConfig == nil {
		return errcodes.NotFound("Thumbnail")
	}

	// Generate lazily; a prior run usually already wrote the file.
	path, err := h.thumbnails.Generate(ctx, media.ID, media.Path, library.ThumbnailConfig, false)
	if err != nil {
		return errors.WithStack(err)
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=86400")

	return errors.WithStack(c.File(path))
}

func (h *handler) analyze(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	media, err := h.mediaService.RetrieveMedia(ctx, RetrieveMediaOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	job, err := h.enqueuer.Enqueue(ctx, &jobs.AnalyzeMediaSpec{
		MediaID:   media.ID,
		LibraryID: media.Series.LibraryID,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, job))
}
