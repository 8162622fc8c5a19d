package libraries

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/stumpapp/stump/pkg/errcodes"
	"github.com/stumpapp/stump/pkg/jobs"
	"github.com/stumpapp/stump/pkg/models"
	"github.com/stumpapp/stump/pkg/scanner"
	"github.com/stumpapp/stump/pkg/thumbnail"
)

type handler struct {
	libraryService *Service
	enqueuer       jobs.Enqueuer
	thumbnails     *thumbnail.Generator
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := CreateLibraryPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	path := filepath.Clean(params.Path)
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return errcodes.ValidationError("Path does not exist or is not a directory.")
	}
	if params.ThumbnailConfig != nil {
		if err := validateThumbnailConfig(params.ThumbnailConfig); err != nil {
			return err
		}
	}
	if err := scanner.ValidateRules(params.IgnoreRules); err != nil {
		return errcodes.ValidationError(err.Error())
	}

	convertRARToZip := false
	if params.ConvertRARToZip != nil {
		convertRARToZip = *params.ConvertRARToZip
	}
	hardDeleteConversions := false
	if params.HardDeleteConversions != nil {
		hardDeleteConversions = *params.HardDeleteConversions
	}
	generateFileHashes := false
	if params.GenerateFileHashes != nil {
		generateFileHashes = *params.GenerateFileHashes
	}
	processMetadata := true
	if params.ProcessMetadata != nil {
		processMetadata = *params.ProcessMetadata
	}

	library := &models.Library{
		Name:                  params.Name,
		Path:                  path,
		Pattern:               params.Pattern,
		ConvertRARToZip:       convertRARToZip,
		HardDeleteConversions: hardDeleteConversions,
		GenerateFileHashes:    generateFileHashes,
		ProcessMetadata:       processMetadata,
		DefaultReadingDir:     params.DefaultReadingDir,
		DefaultReadingMode:    params.DefaultReadingMode,
		IgnoreRules:           params.IgnoreRules,
	}
	switch {
	case params.DisableThumbnails:
		library.ThumbnailConfig = nil
	case params.ThumbnailConfig != nil:
		library.ThumbnailConfig = params.ThumbnailConfig
	default:
		library.ThumbnailConfig = models.DefaultThumbnailConfig()
	}

	err := h.libraryService.CreateLibrary(ctx, library)
	if err != nil {
		return errors.WithStack(err)
	}

	// Trigger the initial scan. Failure to enqueue doesn't fail the create.
	if _, err := h.enqueuer.Enqueue(ctx, &jobs.LibraryScanSpec{LibraryID: library.ID}); err != nil {
		logger.FromEchoContext(c).Err(err).Error("enqueue scan job error")
	}

	library, err = h.libraryService.RetrieveLibrary(ctx, RetrieveLibraryOptions{
		ID: &library.ID,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, library))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	library, err := h.libraryService.RetrieveLibrary(ctx, RetrieveLibraryOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, library))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ListLibrariesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	libraries, total, err := h.libraryService.ListLibrariesWithTotal(ctx, ListLibrariesOptions{
		Limit:  &params.Limit,
		Offset: &params.Offset,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Libraries []*models.Library `json:"libraries"`
		Total     int               `json:"total"`
	}{libraries, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	// Bind params.
	params := UpdateLibraryPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	// Fetch the library.
	library, err := h.libraryService.RetrieveLibrary(ctx, RetrieveLibraryOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	// Keep track of what's been changed.
	opts := UpdateLibraryOptions{Columns: []string{}}

	if params.Name != nil && *params.Name != library.Name {
		library.Name = *params.Name
		opts.Columns = append(opts.Columns, "name")
	}
	if params.Path != nil {
		path := filepath.Clean(*params.Path)
		if path != library.Path {
			if info, err := os.Stat(path); err != nil || !info.IsDir() {
				return errcodes.ValidationError("Path does not exist or is not a directory.")
			}
			library.Path = path
			opts.Columns = append(opts.Columns, "path")
		}
	}
	if params.Pattern != nil && *params.Pattern != library.Pattern {
		library.Pattern = *params.Pattern
		opts.Columns = append(opts.Columns, "pattern")
	}
	if params.ConvertRARToZip != nil && *params.ConvertRARToZip != library.ConvertRARToZip {
		library.ConvertRARToZip = *params.ConvertRARToZip
		opts.Columns = append(opts.Columns, "convert_rar_to_zip")
	}
	if params.HardDeleteConversions != nil && *params.HardDeleteConversions != library.HardDeleteConversions {
		library.HardDeleteConversions = *params.HardDeleteConversions
		opts.Columns = append(opts.Columns, "hard_delete_conversions")
	}
	if params.GenerateFileHashes != nil && *params.GenerateFileHashes != library.GenerateFileHashes {
		library.GenerateFileHashes = *params.GenerateFileHashes
		opts.Columns = append(opts.Columns, "generate_file_hashes")
	}
	if params.ProcessMetadata != nil && *params.ProcessMetadata != library.ProcessMetadata {
		library.ProcessMetadata = *params.ProcessMetadata
		opts.Columns = append(opts.Columns, "process_metadata")
	}
	if params.DefaultReadingDir != nil && *params.DefaultReadingDir != library.DefaultReadingDir {
		library.DefaultReadingDir = *params.DefaultReadingDir
		opts.Columns = append(opts.Columns, "default_reading_dir")
	}
	if params.DefaultReadingMode != nil && *params.DefaultReadingMode != library.DefaultReadingMode {
		library.DefaultReadingMode = *params.DefaultReadingMode
		opts.Columns = append(opts.Columns, "default_reading_mode")
	}
	if params.DisableThumbnails != nil && *params.DisableThumbnails {
		library.ThumbnailConfig = nil
		opts.Columns = append(opts.Columns, "thumbnail_config")
	} else if params.ThumbnailConfig != nil {
		if err := validateThumbnailConfig(params.ThumbnailConfig); err != nil {
			return err
		}
		library.ThumbnailConfig = params.ThumbnailConfig
		opts.Columns = append(opts.Columns, "thumbnail_config")
	}
	if params.IgnoreRules != nil {
		if err := scanner.ValidateRules(params.IgnoreRules); err != nil {
			return errcodes.ValidationError(err.Error())
		}
		library.IgnoreRules = params.IgnoreRules
		opts.Columns = append(opts.Columns, "ignore_rules")
	}

	// Update the model.
	err = h.libraryService.UpdateLibrary(ctx, library, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	// Reload the model.
	library, err = h.libraryService.RetrieveLibrary(ctx, RetrieveLibraryOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, library))
}

func (h *handler) delete(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	library, err := h.libraryService.RetrieveLibrary(ctx, RetrieveLibraryOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	mediaIDs, err := h.libraryService.DeleteLibrary(ctx, library.ID)
	if err != nil {
		return errors.WithStack(err)
	}

	for _, mediaID := range mediaIDs {
		if err := h.thumbnails.Remove(mediaID); err != nil {
			logger.FromEchoContext(c).Err(err).Error("remove thumbnail error")
		}
	}

	resp := struct {
		Deleted bool `json:"deleted"`
	}{true}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) scan(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	// The body is optional; bind only when one was sent.
	params := ScanLibraryPayload{}
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&params); err != nil {
			return errors.WithStack(err)
		}
	}

	library, err := h.libraryService.RetrieveLibrary(ctx, RetrieveLibraryOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	job, err := h.enqueuer.Enqueue(ctx, &jobs.LibraryScanSpec{
		LibraryID:     library.ID,
		VisitStrategy: params.VisitStrategy,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, job))
}
