package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE job_schedule_config (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				interval_secs INTEGER NOT NULL DEFAULT 86400,
				excluded_library_ids TEXT,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
			)
`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("DROP TABLE IF EXISTS job_schedule_config")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
