package series

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/stumpapp/stump/pkg/models"
)

type handler struct {
	seriesService *Service
	enqueuer      jobs.Enqueuer
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListSeriesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := ListSeriesOptions{
		Limit:     &params.Limit,
		Offset:    &params.Offset,
		LibraryID: params.LibraryID,
		Statuses:  params.Status,
	}

	seriesList, total, err := h.seriesService.ListSeriesWithTotal(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	response := struct {
		Series []*models.Series `json:"series"`
		Total  int              `json:"total"`
	}{seriesList, total}

	return errors.WithStack(c.JSON(http.StatusOK, response))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	series, err := h.seriesService.RetrieveSeries(ctx, RetrieveSeriesOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, series))
}

func (h *handler) scan(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	// The body is optional; bind only when one was sent.
	params := ScanSeriesPayload{}
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&params); err != nil {
			return errors.WithStack(err)
		}
	}

	series, err := h.seriesService.RetrieveSeries(ctx, RetrieveSeriesOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	job, err := h.enqueuer.Enqueue(ctx, &jobs.SeriesScanSpec{
		SeriesID:      series.ID,
		VisitStrategy: params.VisitStrategy,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, job))
}
