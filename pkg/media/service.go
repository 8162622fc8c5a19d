package media

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stumpapp/stump/pkg/errcodes"
	"github.com/stumpapp/stump/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveMediaOptions struct {
	ID   *string
	Path *string
}

type ListMediaOptions struct {
	Limit     *int
	Offset    *int
	SeriesID  *string
	LibraryID *string
	Statuses  []string

	includeTotal bool
}

type UpdateMediaOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateMedia(ctx context.Context, media *models.Media) error {
	now := time.Now()
	if media.CreatedAt.IsZero() {
		media.CreatedAt = now
	}
	media.UpdatedAt = media.CreatedAt
	if media.ID == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return errors.WithStack(err)
		}
		media.ID = id.String()
	}
	if media.Status == "" {
		media.Status = models.EntityStatusReady
	}
	if err := media.MarshalPageDimensions(); err != nil {
		return err
	}

	_, err := svc.db.
		NewInsert().
		Model(media).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RetrieveMedia(ctx context.Context, opts RetrieveMediaOptions) (*models.Media, error) {
	media := &models.Media{}

	q := svc.db.
		NewSelect().
		Model(media).
		Relation("Series")

	if opts.ID != nil {
		q = q.Where("m.id = ?", *opts.ID)
	}
	if opts.Path != nil {
		q = q.Where("m.path = ?", *opts.Path)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Media")
		}
		return nil, errors.WithStack(err)
	}
	if err := media.UnmarshalPageDimensions(); err != nil {
		return nil, err
	}

	return media, nil
}

func (svc *Service) ListMedia(ctx context.Context, opts ListMediaOptions) ([]*models.Media, error) {
	media, _, err := svc.listMediaWithTotal(ctx, opts)
	return media, err
}

func (svc *Service) ListMediaWithTotal(ctx context.Context, opts ListMediaOptions) ([]*models.Media, int, error) {
	opts.includeTotal = true
	return svc.listMediaWithTotal(ctx, opts)
}

func (svc *Service) listMediaWithTotal(ctx context.Context, opts ListMediaOptions) ([]*models.Media, int, error) {
	var media []*models.Media
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&media).
		OrderExpr("m.name COLLATE NOCASE ASC")

	if opts.SeriesID != nil {
		q = q.Where("m.series_id = ?", *opts.SeriesID)
	}
	if opts.LibraryID != nil {
		q = q.
			Join("JOIN series AS s ON s.id = m.series_id").
			Where("s.library_id = ?", *opts.LibraryID)
	}
	if len(opts.Statuses) > 0 {
		q = q.Where("m.status IN (?)", bun.In(opts.Statuses))
	}
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

	for _, m := range media {
		if err := m.UnmarshalPageDimensions(); err != nil {
			return nil, 0, err
		}
	}

	return media, total, nil
}

func (svc *Service) UpdateMedia(ctx context.Context, media *models.Media, opts UpdateMediaOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	media.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	if err := media.MarshalPageDimensions(); err != nil {
		return err
	}

	_, err := svc.db.
		NewUpdate().
		Model(media).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

// MarkMediaStatus flips the status of a media row without loading it first.
// The reason lands in status_reason and is cleared when nil.
func (svc *Service) MarkMediaStatus(ctx context.Context, mediaID, status string, reason *string) error {
	result, err := svc.db.
		NewUpdate().
		Model((*models.Media)(nil)).
		Set("status = ?", status).
		Set("status_reason = ?", reason).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", mediaID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errcodes.NotFound("Media")
	}
	return nil
}
