package series

import (
	"github.com/labstack/echo/v4"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/uptrace/bun"
)

func RegisterRoutes(e *echo.Echo, db *bun.DB, enqueuer jobs.Enqueuer) {
	h := &handler{
		seriesService: NewService(db),
		enqueuer:      enqueuer,
	}

	e.GET("/series", h.list)
	e.GET("/series/:id", h.retrieve)
	e.POST("/series/:id/scan", h.scan)
}
