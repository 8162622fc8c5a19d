package libraries

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stumpapp/stump/pkg/errcodes"
	"github.com/stumpapp/stump/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveLibraryOptions struct {
	ID   *string
	Path *string
}

type ListLibrariesOptions struct {
	Limit  *int
	Offset *int

	includeTotal bool
}

type UpdateLibraryOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateLibrary(ctx context.Context, library *models.Library) error {
	now := time.Now()
	if library.CreatedAt.IsZero() {
		library.CreatedAt = now
	}
	library.UpdatedAt = library.CreatedAt

	if library.ID == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return errors.WithStack(err)
		}
		library.ID = id.String()
	}
	if library.Status == "" {
		library.Status = models.EntityStatusReady
	}
	if library.Pattern == "" {
		library.Pattern = models.LibraryPatternSeriesBased
	}

	if err := svc.checkPathConflict(ctx, library.Path, ""); err != nil {
		return err
	}
	if err := library.MarshalConfig(); err != nil {
		return errors.WithStack(err)
	}

	_, err := svc.db.
		NewInsert().
		Model(library).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return mapUniqueViolation(err)
	}

	return nil
}

func (svc *Service) RetrieveLibrary(ctx context.Context, opts RetrieveLibraryOptions) (*models.Library, error) {
	library := &models.Library{}

	q := svc.db.
		NewSelect().
		Model(library).
		ColumnExpr("l.*").
		ColumnExpr("(SELECT count(*) FROM series s WHERE s.library_id = l.id) AS series_count")

	if opts.ID != nil {
		q = q.Where("l.id = ?", *opts.ID)
	}
	if opts.Path != nil {
		q = q.Where("l.path = ?", *opts.Path)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Library")
		}
		return nil, errors.WithStack(err)
	}

	if err := library.UnmarshalConfig(); err != nil {
		return nil, errors.WithStack(err)
	}

	return library, nil
}

func (svc *Service) ListLibraries(ctx context.Context, opts ListLibrariesOptions) ([]*models.Library, error) {
	l, _, err := svc.listLibrariesWithTotal(ctx, opts)
	return l, errors.WithStack(err)
}

func (svc *Service) ListLibrariesWithTotal(ctx context.Context, opts ListLibrariesOptions) ([]*models.Library, int, error) {
	opts.includeTotal = true
	return svc.listLibrariesWithTotal(ctx, opts)
}

func (svc *Service) listLibrariesWithTotal(ctx context.Context, opts ListLibrariesOptions) ([]*models.Library, int, error) {
	libraries := []*models.Library{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&libraries).
		ColumnExpr("l.*").
		ColumnExpr("(SELECT count(*) FROM series s WHERE s.library_id = l.id) AS series_count").
		Order("l.name ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	for _, library := range libraries {
		if err := library.UnmarshalConfig(); err != nil {
			return nil, 0, errors.WithStack(err)
		}
	}

	return libraries, total, nil
}

func (svc *Service) UpdateLibrary(ctx context.Context, library *models.Library, opts UpdateLibraryOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	for _, col := range opts.Columns {
		if col == "path" {
			if err := svc.checkPathConflict(ctx, library.Path, library.ID); err != nil {
				return err
			}
			break
		}
	}

	if err := library.MarshalConfig(); err != nil {
		return errors.WithStack(err)
	}

	// Update updated_at.
	now := time.Now()
	library.UpdatedAt = now
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(library).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Library")
		}
		return mapUniqueViolation(err)
	}

	return nil
}

// DeleteLibrary removes the library and everything under it: reading
// sessions, media, then series, in one transaction. It returns the removed
// media ids so the caller can clean up thumbnails.
func (svc *Service) DeleteLibrary(ctx context.Context, libraryID string) ([]string, error) {
	mediaIDs := []string{}

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model((*models.Media)(nil)).
			Column("m.id").
			Join("JOIN series AS s ON s.id = m.series_id").
			Where("s.library_id = ?", libraryID).
			Scan(ctx, &mediaIDs)
		if err != nil {
			return errors.WithStack(err)
		}

		if len(mediaIDs) > 0 {
			_, err = tx.NewDelete().
				Model((*models.ReadingSession)(nil)).
				Where("media_id IN (?)", bun.In(mediaIDs)).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}

			_, err = tx.NewDelete().
				Model((*models.Media)(nil)).
				Where("id IN (?)", bun.In(mediaIDs)).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		_, err = tx.NewDelete().
			Model((*models.Series)(nil)).
			Where("library_id = ?", libraryID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		result, err := tx.NewDelete().
			Model((*models.Library)(nil)).
			Where("id = ?", libraryID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return errors.WithStack(err)
		}
		if rows == 0 {
			return errcodes.NotFound("Library")
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return mediaIDs, nil
}

// checkPathConflict enforces that no two libraries share a path and that no
// library root sits inside another's tree.
func (svc *Service) checkPathConflict(ctx context.Context, path, excludeID string) error {
	others, err := svc.ListLibraries(ctx, ListLibrariesOptions{})
	if err != nil {
		return errors.WithStack(err)
	}

	cleaned := filepath.Clean(path)
	for _, other := range others {
		if other.ID == excludeID {
			continue
		}
		otherPath := filepath.Clean(other.Path)
		switch {
		case cleaned == otherPath:
			return errcodes.ValidationError(fmt.Sprintf("Path is already used by library %q.", other.Name))
		case isSubpath(otherPath, cleaned):
			return errcodes.ValidationError(fmt.Sprintf("Path is inside library %q.", other.Name))
		case isSubpath(cleaned, otherPath):
			return errcodes.ValidationError(fmt.Sprintf("Path contains library %q.", other.Name))
		}
	}

	return nil
}

func isSubpath(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

func mapUniqueViolation(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "libraries.name"):
		return errcodes.Conflict("A library with that name already exists.")
	case strings.Contains(msg, "libraries.path"):
		return errcodes.Conflict("A library with that path already exists.")
	}
	return errors.WithStack(err)
}
