package jobs

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

type RetrieveJobOptions struct {
	ID *string
}

type ListJobsOptions struct {
	Limit    *int
	Offset   *int
	Statuses []string
	Kinds    []string

	// OldestFirst orders by created_at ascending. The default is newest
	// first, which is what the history listing wants.
	OldestFirst bool

	includeTotal bool
}

type UpdateJobOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateJob(ctx context.Context, job *models.Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt

	if job.ID == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return errors.WithStack(err)
		}
		job.ID = id.String()
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}

	_, err := svc.db.
		NewInsert().
		Model(job).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveJob(ctx context.Context, opts RetrieveJobOptions) (*models.Job, error) {
	job := &models.Job{}

	q := svc.db.
		NewSelect().
		Model(job)

	if opts.ID != nil {
		q = q.Where("j.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Job")
		}
		return nil, errors.WithStack(err)
	}

	return job, nil
}

func (svc *Service) ListJobs(ctx context.Context, opts ListJobsOptions) ([]*models.Job, error) {
	j, _, err := svc.listJobsWithTotal(ctx, opts)
	return j, errors.WithStack(err)
}

func (svc *Service) ListJobsWithTotal(ctx context.Context, opts ListJobsOptions) ([]*models.Job, int, error) {
	opts.includeTotal = true
	return svc.listJobsWithTotal(ctx, opts)
}

func (svc *Service) listJobsWithTotal(ctx context.Context, opts ListJobsOptions) ([]*models.Job, int, error) {
	jobs := []*models.Job{}
	var total int
	var err error

	order := "j.created_at DESC"
	if opts.OldestFirst {
		order = "j.created_at ASC"
	}

	q := svc.db.
		NewSelect().
		Model(&jobs).
		Order(order)

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if len(opts.Statuses) > 0 {
		q = q.Where("j.status IN (?)", bun.In(opts.Statuses))
	}
	if len(opts.Kinds) > 0 {
		q = q.Where("j.kind IN (?)", bun.In(opts.Kinds))
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return jobs, total, nil
}

// ListActiveJobs returns QUEUED, RUNNING, and PAUSED jobs in creation order.
// The controller uses this at startup to restore interrupted work.
func (svc *Service) ListActiveJobs(ctx context.Context) ([]*models.Job, error) {
	return svc.ListJobs(ctx, ListJobsOptions{
		Statuses:    models.ActiveJobStatuses,
		OldestFirst: true,
	})
}

func (svc *Service) UpdateJob(ctx context.Context, job *models.Job, opts UpdateJobOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	// Update updated_at.
	now := time.Now()
	job.UpdatedAt = now
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(job).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Job")
		}
		return errors.WithStack(err)
	}

	return nil
}

// DeleteFinishedJobs removes completed, cancelled, and failed jobs along with
// their logs. It returns the number of jobs removed.
func (svc *Service) DeleteFinishedJobs(ctx context.Context) (int64, error) {
	var deleted int64

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*models.JobLog)(nil)).
			Where("job_id IN (SELECT id FROM jobs WHERE status IN (?))", bun.In(models.FinishedJobStatuses)).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		result, err := tx.NewDelete().
			Model((*models.Job)(nil)).
			Where("status IN (?)", bun.In(models.FinishedJobStatuses)).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		deleted, err = result.RowsAffected()
		return errors.WithStack(err)
	})
	if err != nil {
		return 0, errors.WithStack(err)
	}

	return deleted, nil
}

// GetScheduleConfig returns the scheduler config row, or the default config
// when none has been saved yet.
func (svc *Service) GetScheduleConfig(ctx context.Context) (*models.JobScheduleConfig, error) {
	cfg := &models.JobScheduleConfig{}

	err := svc.db.
		NewSelect().
		Model(cfg).
		Where("jsc.id = 1").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.JobScheduleConfig{
				ID:           1,
				IntervalSecs: models.DefaultScanIntervalSecs,
			}, nil
		}
		return nil, errors.WithStack(err)
	}

	if err := cfg.UnmarshalExclusions(); err != nil {
		return nil, errors.WithStack(err)
	}

	return cfg, nil
}

// UpdateScheduleConfig upserts the single scheduler config row.
func (svc *Service) UpdateScheduleConfig(ctx context.Context, cfg *models.JobScheduleConfig) error {
	cfg.ID = 1
	cfg.UpdatedAt = time.Now()

	if err := cfg.MarshalExclusions(); err != nil {
		return errors.WithStack(err)
	}

	_, err := svc.db.
		NewInsert().
		Model(cfg).
		On("CONFLICT (id) DO UPDATE").
		Set("interval_secs = EXCLUDED.interval_secs").
		Set("excluded_library_ids = EXCLUDED.excluded_library_ids").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}
