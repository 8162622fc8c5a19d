package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/stumpapp/stump/pkg/cbz"
	"github.com/stumpapp/stump/pkg/config"
	"github.com/stumpapp/stump/pkg/database"
	"github.com/stumpapp/stump/pkg/epub"
	"github.com/stumpapp/stump/pkg/events"
	"github.com/stumpapp/stump/pkg/mediafile"
	"github.com/stumpapp/stump/pkg/migrations"
	"github.com/stumpapp/stump/pkg/pdf"
	"github.com/stumpapp/stump/pkg/rar"
	"github.com/stumpapp/stump/pkg/scheduler"
	"github.com/stumpapp/stump/pkg/server"
	"github.com/stumpapp/stump/pkg/thumbnail"
	"github.com/stumpapp/stump/pkg/version"
	"github.com/stumpapp/stump/pkg/worker"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting stump", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	if err := initDataDirs(cfg); err != nil {
		log.Err(err).Fatal("data directory error")
	}
	log.Info("data directory initialized", logger.Data{"path": cfg.DataDir})

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	pdfProcessor := pdf.New(pdf.Options{
		RenderingEnabled: cfg.PDFRenderingEnabled,
		RenderDPI:        cfg.PDFRenderDPI,
		PoolSize:         cfg.PDFPoolSize,
	})

	dispatch := mediafile.NewDispatch()
	dispatch.Register(cbz.New(), "cbz", "zip")
	dispatch.Register(rar.New(), "cbr", "rar")
	dispatch.Register(epub.New(), "epub")
	dispatch.Register(pdfProcessor, "pdf")

	bus := events.NewBus()
	thumbnails := thumbnail.NewGenerator(cfg.ThumbnailsDir, dispatch)

	controller := worker.NewController(cfg, db, bus, dispatch, thumbnails)
	if err := controller.Start(ctx); err != nil {
		log.Err(err).Fatal("job controller error")
	}
	log.Info("job controller started")

	sched := scheduler.New(db, controller)
	sched.Start()
	log.Info("scan scheduler started")

	srv, err := server.New(cfg, db, server.Options{
		Enqueuer:         controller,
		Bus:              bus,
		Dispatch:         dispatch,
		Thumbnails:       thumbnails,
		OnScheduleChange: sched.Reset,
	})
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}

		actualPort := listener.Addr().(*net.TCPAddr).Port
		log.Info("server started", logger.Data{"port": actualPort})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	sched.Stop()
	log.Info("scan scheduler stopped")

	if err := controller.Shutdown(ctx); err != nil {
		log.Err(err).Error("job controller shutdown error")
	}
	log.Info("job controller shutdown")

	if err := pdfProcessor.Close(); err != nil {
		log.Err(err).Error("pdfium close error")
	}

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}

// initDataDirs creates the data and thumbnail directories and verifies write
// permissions.
func initDataDirs(cfg *config.Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.ThumbnailsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create data directory: %s", dir)
		}
	}

	testFile := filepath.Join(cfg.DataDir, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return errors.Wrapf(err, "data directory is not writable: %s", cfg.DataDir)
	}
	f.Close()

	if err := os.Remove(testFile); err != nil {
		return errors.Wrapf(err, "failed to clean up write test file: %s", testFile)
	}

	return nil
}
