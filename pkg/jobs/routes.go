package jobs

import (
	"github.com/labstack/echo/v4"
	"github.com/stumpapp/stump/pkg/events"
	"github.com/uptrace/bun"
)

// RegisterRoutes registers job routes on a pre-configured group. The
// onScheduleChange callback is invoked after the scheduler config changes so
// the scheduler can reset its ticker.
func RegisterRoutes(g *echo.Group, db *bun.DB, enqueuer Enqueuer, bus *events.Bus, onScheduleChange func()) {
	jobService := NewService(db)

	h := &handler{
		jobService:       jobService,
		enqueuer:         enqueuer,
		bus:              bus,
		onScheduleChange: onScheduleChange,
	}

	g.GET("", h.list)
	g.POST("", h.create)
	g.DELETE("", h.prune)
	g.GET("/events", h.events)
	g.GET("/scheduler-config", h.retrieveScheduleConfig)
	g.PUT("/scheduler-config", h.updateScheduleConfig)
	g.GET("/:id", h.retrieve)
	g.DELETE("/:id", h.cancel)
	g.POST("/:id/pause", h.pause)
	g.POST("/:id/resume", h.resume)
}
