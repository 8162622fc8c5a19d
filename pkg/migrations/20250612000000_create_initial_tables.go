package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE libraries (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL,
				path TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'READY',
				pattern TEXT NOT NULL DEFAULT 'SERIES_BASED',
				convert_rar_to_zip BOOLEAN NOT NULL DEFAULT FALSE,
				hard_delete_conversions BOOLEAN NOT NULL DEFAULT FALSE,
				generate_file_hashes BOOLEAN NOT NULL DEFAULT FALSE,
				process_metadata BOOLEAN NOT NULL DEFAULT TRUE,
				default_reading_dir TEXT NOT NULL DEFAULT 'LTR',
				default_reading_mode TEXT NOT NULL DEFAULT 'PAGED',
				thumbnail_config TEXT,
				ignore_rules TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_libraries_name ON libraries (name)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_libraries_path ON libraries (path)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE series (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				library_id TEXT NOT NULL REFERENCES libraries (id),
				name TEXT NOT NULL,
				path TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'READY',
				meta_type TEXT,
				sort_name TEXT,
				description TEXT,
				publisher TEXT,
				imprint TEXT,
				age_rating INTEGER,
				meta_status TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_series_path ON series (path)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_series_library_id ON series (library_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE media (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				series_id TEXT NOT NULL REFERENCES series (id),
				name TEXT NOT NULL,
				path TEXT NOT NULL,
				extension TEXT NOT NULL,
				size INTEGER NOT NULL DEFAULT 0,
				pages INTEGER NOT NULL DEFAULT 0,
				hash TEXT,
				modified_at TIMESTAMPTZ,
				status TEXT NOT NULL DEFAULT 'READY',
				status_reason TEXT,
				title TEXT,
				meta_series TEXT,
				number REAL,
				volume INTEGER,
				summary TEXT,
				notes TEXT,
				genre TEXT,
				writers TEXT,
				pencillers TEXT,
				inkers TEXT,
				colorists TEXT,
				letterers TEXT,
				cover_artists TEXT,
				editors TEXT,
				publisher TEXT,
				links TEXT,
				characters TEXT,
				teams TEXT,
				age_rating INTEGER,
				year INTEGER,
				month INTEGER,
				day INTEGER,
				page_count_meta INTEGER
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_media_path ON media (path)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_media_series_id ON media (series_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_media_hash ON media (hash)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE jobs (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				kind TEXT NOT NULL,
				name TEXT NOT NULL,
				description TEXT,
				status TEXT NOT NULL DEFAULT 'QUEUED',
				completed_at TIMESTAMPTZ,
				ms_elapsed INTEGER NOT NULL DEFAULT 0,
				completed_tasks INTEGER NOT NULL DEFAULT 0,
				total_tasks INTEGER NOT NULL DEFAULT 0,
				save_state TEXT,
				output_data TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_jobs_status ON jobs (status)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE job_logs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				job_id TEXT NOT NULL REFERENCES jobs (id),
				level TEXT NOT NULL,
				message TEXT NOT NULL,
				data TEXT,
				stack_trace TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_job_logs_job_id ON job_logs (job_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE reading_sessions (
				id TEXT PRIMARY KEY,
				media_id TEXT NOT NULL REFERENCES media (id),
				user_ref TEXT NOT NULL,
				page INTEGER,
				percentage REAL,
				epubcfi TEXT,
				started_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				completed_at TIMESTAMPTZ
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_reading_sessions_media_id ON reading_sessions (media_id)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("DROP TABLE IF EXISTS reading_sessions")
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec("DROP TABLE IF EXISTS job_logs")
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec("DROP TABLE IF EXISTS jobs")
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec("DROP TABLE IF EXISTS media")
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec("DROP TABLE IF EXISTS series")
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec("DROP TABLE IF EXISTS libraries")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
