// Package postgres persists normalized jobs. The worker is the only
// writer; upserts are keyed on the deterministic job identity so stream
// replays and cross-day rescrapes converge on one row per posting.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// PgxPool is the minimal pool surface the repository needs. pgxpool.Pool
// satisfies it, and tests can substitute a mock.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ PgxPool = (*pgxpool.Pool)(nil)

// JobRepo stores jobs in PostgreSQL and implements domain.JobRepository.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

var _ domain.JobRepository = (*JobRepo)(nil)

const jobColumns = `id, title, description, company_name, company_type,
	location, posted_date, scraped_at, salary_min, salary_max,
	salary_currency, job_type, job_level, remote_type, source,
	source_url, skills, benefits, match_score`

// Upsert inserts a job or refreshes the existing row for its identity.
// The scrape timestamp on the stored row only moves forward, so a
// replayed older record cannot clobber a newer scrape.
func (r *JobRepo) Upsert(ctx domain.Context, j domain.Job) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Upsert")
	defer span.End()

	q := `INSERT INTO jobs (` + jobColumns + `, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			company_name = EXCLUDED.company_name,
			company_type = EXCLUDED.company_type,
			location = EXCLUDED.location,
			posted_date = EXCLUDED.posted_date,
			scraped_at = GREATEST(jobs.scraped_at, EXCLUDED.scraped_at),
			salary_min = EXCLUDED.salary_min,
			salary_max = EXCLUDED.salary_max,
			salary_currency = EXCLUDED.salary_currency,
			job_type = EXCLUDED.job_type,
			job_level = EXCLUDED.job_level,
			remote_type = EXCLUDED.remote_type,
			source = EXCLUDED.source,
			source_url = EXCLUDED.source_url,
			skills = EXCLUDED.skills,
			benefits = EXCLUDED.benefits,
			match_score = EXCLUDED.match_score,
			updated_at = EXCLUDED.updated_at`
	_, err := r.Pool.Exec(ctx, q,
		j.ID, j.Title, j.Description, j.Company.Name, string(j.Company.Type),
		j.Location, j.PostedDate.UTC(), j.ScrapedAt.UTC(), j.SalaryMin, j.SalaryMax,
		j.SalaryCurrency, string(j.JobType), string(j.JobLevel), string(j.RemoteType), j.Source,
		j.SourceURL, j.Skills, j.Benefits, j.MatchScore,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=jobs.upsert: %w", err)
	}
	return nil
}

// Get loads a job by its identity.
func (r *JobRepo) Get(ctx domain.Context, id string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()

	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	row := r.Pool.QueryRow(ctx, q, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("op=jobs.get: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=jobs.get: %w", err)
	}
	return j, nil
}

// CountBySourceSince reports how many jobs each source contributed from
// the given instant onward. The status API uses it for daily totals.
func (r *JobRepo) CountBySourceSince(ctx domain.Context, since time.Time) (map[string]int, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.CountBySourceSince")
	defer span.End()

	q := `SELECT source, COUNT(*) FROM jobs WHERE scraped_at >= $1 GROUP BY source`
	rows, err := r.Pool.Query(ctx, q, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("op=jobs.count_by_source: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("op=jobs.count_by_source: scan: %w", err)
		}
		out[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=jobs.count_by_source: %w", err)
	}
	return out, nil
}

func scanJob(row pgx.Row) (domain.Job, error) {
	var (
		j                            domain.Job
		companyType                  string
		jobType, jobLevel, remoteTyp string
	)
	err := row.Scan(
		&j.ID, &j.Title, &j.Description, &j.Company.Name, &companyType,
		&j.Location, &j.PostedDate, &j.ScrapedAt, &j.SalaryMin, &j.SalaryMax,
		&j.SalaryCurrency, &jobType, &jobLevel, &remoteTyp, &j.Source,
		&j.SourceURL, &j.Skills, &j.Benefits, &j.MatchScore,
	)
	if err != nil {
		return domain.Job{}, err
	}
	j.Company.Type = domain.CompanyType(companyType)
	j.JobType = domain.JobType(jobType)
	j.JobLevel = domain.JobLevel(jobLevel)
	j.RemoteType = domain.RemoteType(remoteTyp)
	return j, nil
}
