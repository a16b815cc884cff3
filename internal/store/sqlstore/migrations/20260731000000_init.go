package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
				return err
			}
			if _, err := db.ExecContext(ctx, `PRAGMA synchronous = NORMAL;`); err != nil {
				return err
			}
			_, err := db.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS settings_records (
					id              TEXT PRIMARY KEY,
					kind            TEXT NOT NULL,
					category        TEXT NOT NULL,
					app_id          TEXT NOT NULL DEFAULT '',
					country         TEXT,
					value_json      TEXT NOT NULL DEFAULT '{}',
					condition_json  TEXT,
					created_at      TIMESTAMP NOT NULL,
					updated_at      TIMESTAMP NOT NULL
				);
			`)
			if err != nil {
				return err
			}
			_, err = db.ExecContext(ctx, `
				CREATE INDEX IF NOT EXISTS idx_settings_records_lookup
					ON settings_records (kind, category, app_id);
			`)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS settings_records;`)
			return err
		},
	)
}
