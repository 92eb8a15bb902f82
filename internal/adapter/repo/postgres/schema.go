package postgres

import (
	"context"
	"fmt"
)

// schemaDDL is applied statement by statement at worker startup; pgx
// runs one statement per Exec. IF NOT EXISTS keeps the bootstrap safe
// on every boot and across multiple workers racing on a fresh database.
var schemaDDL = []string{`
CREATE TABLE IF NOT EXISTS jobs (
	id              TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	company_name    TEXT NOT NULL,
	company_type    TEXT NOT NULL DEFAULT 'private',
	location        TEXT NOT NULL DEFAULT '',
	posted_date     TIMESTAMPTZ NOT NULL,
	scraped_at      TIMESTAMPTZ NOT NULL,
	salary_min      DOUBLE PRECISION,
	salary_max      DOUBLE PRECISION,
	salary_currency TEXT NOT NULL DEFAULT '',
	job_type        TEXT NOT NULL DEFAULT '',
	job_level       TEXT NOT NULL DEFAULT '',
	remote_type     TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL,
	source_url      TEXT NOT NULL DEFAULT '',
	skills          TEXT[] NOT NULL DEFAULT '{}',
	benefits        TEXT[] NOT NULL DEFAULT '{}',
	match_score     DOUBLE PRECISION,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_scraped_at ON jobs (scraped_at)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_source ON jobs (source)`,
}

// EnsureSchema creates the jobs table and its indexes if missing.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	for _, stmt := range schemaDDL {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("op=postgres.EnsureSchema: %w", err)
		}
	}
	return nil
}
