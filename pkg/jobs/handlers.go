package jobs

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/stumpapp/stump/pkg/errcodes"
	"github.com/stumpapp/stump/pkg/events"
	"github.com/stumpapp/stump/pkg/models"
)

type handler struct {
	jobService       *Service
	enqueuer         Enqueuer
	bus              *events.Bus
	onScheduleChange func()
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ListJobsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	jobs, total, err := h.jobService.ListJobsWithTotal(ctx, ListJobsOptions{
		Limit:    &params.Limit,
		Offset:   &params.Offset,
		Statuses: params.Status,
		Kinds:    params.Kind,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Jobs  []*models.Job `json:"jobs"`
		Total int           `json:"total"`
	}{jobs, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	job, err := h.jobService.RetrieveJob(ctx, RetrieveJobOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, job))
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := CreateJobPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	spec, err := UnmarshalSpec(params.Kind, params.Params)
	if err != nil {
		return errcodes.ValidationError("Invalid job params.")
	}

	job, err := h.enqueuer.Enqueue(ctx, spec)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, job))
}

func (h *handler) cancel(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if err := h.enqueuer.Cancel(ctx, id); err != nil {
		return errors.WithStack(err)
	}

	job, err := h.jobService.RetrieveJob(ctx, RetrieveJobOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, job))
}

func (h *handler) pause(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if err := h.enqueuer.Pause(ctx, id); err != nil {
		return errors.WithStack(err)
	}

	job, err := h.jobService.RetrieveJob(ctx, RetrieveJobOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, job))
}

func (h *handler) resume(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if err := h.enqueuer.Resume(ctx, id); err != nil {
		return errors.WithStack(err)
	}

	job, err := h.jobService.RetrieveJob(ctx, RetrieveJobOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, job))
}

func (h *handler) prune(c echo.Context) error {
	ctx := c.Request().Context()

	deleted, err := h.jobService.DeleteFinishedJobs(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Deleted int64 `json:"deleted"`
	}{deleted}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) retrieveScheduleConfig(c echo.Context) error {
	ctx := c.Request().Context()

	cfg, err := h.jobService.GetScheduleConfig(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, cfg))
}

func (h *handler) updateScheduleConfig(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := UpdateScheduleConfigPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	cfg := &models.JobScheduleConfig{
		IntervalSecs:       params.IntervalSecs,
		ExcludedLibraryIDs: params.ExcludedLibraryIDs,
	}
	if err := h.jobService.UpdateScheduleConfig(ctx, cfg); err != nil {
		return errors.WithStack(err)
	}

	if h.onScheduleChange != nil {
		h.onScheduleChange()
	}

	return errors.WithStack(c.JSON(http.StatusOK, cfg))
}

// events streams the job event bus as server-sent events until the client
// disconnects.
func (h *handler) events(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	evts, cancel := h.bus.Subscribe(0)
	defer cancel()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-evts:
			if !ok {
				return nil
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
