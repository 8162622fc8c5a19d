package config

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	cfg *Config
}

// publicConfig is the subset of server configuration exposed to clients.
type publicConfig struct {
	SchedulerIntervalSecs int  `json:"scheduler_interval_secs"`
	PDFRenderingEnabled   bool `json:"pdf_rendering_enabled"`
	ThumbnailChunk        int  `json:"thumbnail_chunk"`
	WorkerParallelism     int  `json:"worker_parallelism"`
}

func (h *handler) retrieve(c echo.Context) error {
	resp := publicConfig{
		SchedulerIntervalSecs: h.cfg.SchedulerIntervalSecs,
		PDFRenderingEnabled:   h.cfg.PDFRenderingEnabled,
		ThumbnailChunk:        h.cfg.ThumbnailChunk,
		WorkerParallelism:     h.cfg.WorkerParallelism,
	}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
