package media

import (
	"github.com/labstack/echo/v4"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/stumpapp/stump/pkg/libraries"
	"github.com/stumpapp/stump/pkg/mediafile"
	"github.com/stumpapp/stump/pkg/thumbnail"
	"github.com/uptrace/bun"
)

func RegisterRoutes(e *echo.Echo, db *bun.DB, enqueuer jobs.Enqueuer, dispatch *mediafile.Dispatch, thumbnails *thumbnail.Generator) {
	h := &handler{
		mediaService:   NewService(db),
		libraryService: libraries.NewService(db),
		enqueuer:       enqueuer,
		dispatch:       dispatch,
		thumbnails:     thumbnails,
	}

	e.GET("/media", h.list)
	e.GET("/media/:id", h.retrieve)
	e.GET("/media/:id/pages/:page", h.page)
	e.GET("/media/:id/thumbnail", h.thumbnail)
	e.POST("/media/:id/analyze", h.analyze)
}
