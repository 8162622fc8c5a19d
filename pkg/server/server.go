package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/stumpapp/stump/pkg/binder"
	"github.com/stumpapp/stump/pkg/config"
	"github.com/stumpapp/stump/pkg/errcodes"
	"github.com/stumpapp/stump/pkg/events"
	"github.com/stumpapp/stump/pkg/joblogs"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/stumpapp/stump/pkg/libraries"
	"github.com/stumpapp/stump/pkg/media"
	"github.com/stumpapp/stump/pkg/mediafile"
	"github.com/stumpapp/stump/pkg/series"
	"github.com/stumpapp/stump/pkg/thumbnail"
	"github.com/uptrace/bun"
)

// Options carries the shared runtime pieces the route handlers depend on.
// Everything is constructed in cmd/api and passed down explicitly.
type Options struct {
	Enqueuer   jobs.Enqueuer
	Bus        *events.Bus
	Dispatch   *mediafile.Dispatch
	Thumbnails *thumbnail.Generator

	// OnScheduleChange is invoked after the scheduler config is updated so
	// the scheduler can reset its ticker. Optional.
	OnScheduleChange func()
}

func New(cfg *config.Config, db *bun.DB, opts Options) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	libraries.RegisterRoutes(e, db, opts.Enqueuer, opts.Thumbnails)
	series.RegisterRoutes(e, db, opts.Enqueuer)
	media.RegisterRoutes(e, db, opts.Enqueuer, opts.Dispatch, opts.Thumbnails)

	jobsGroup := e.Group("/jobs")
	jobs.RegisterRoutes(jobsGroup, db, opts.Enqueuer, opts.Bus, opts.OnScheduleChange)
	joblogs.RegisterRoutes(jobsGroup, db)

	config.RegisterRoutes(e, cfg)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
