package libraries

import (
	"github.com/labstack/echo/v4"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/stumpapp/stump/pkg/thumbnail"
	"github.com/uptrace/bun"
)

func RegisterRoutes(e *echo.Echo, db *bun.DB, enqueuer jobs.Enqueuer, thumbnails *thumbnail.Generator) {
	libraryService := NewService(db)

	h := &handler{
		libraryService: libraryService,
		enqueuer:       enqueuer,
		thumbnails:     thumbnails,
	}

	e.POST("/libraries", h.create)
	e.GET("/libraries", h.list)
	e.GET("/libraries/:id", h.retrieve)
	e.POST("/libraries/:id", h.update)
	e.DELETE("/libraries/:id", h.delete)
	e.POST("/libraries/:id/scan", h.scan)
}
