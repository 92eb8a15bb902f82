package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/jobharvest/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/jobharvest/internal/domain"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func sampleJob() domain.Job {
	min, max := 900000.0, 1100000.0
	score := 82.5
	return domain.Job{
		ID:             "a1b2c3d4e5f60718",
		Title:          "Senior Backend Engineer",
		Description:    "Build services in Go.",
		Company:        domain.Company{Name: "Takealot", Type: domain.CompanyPrivate},
		Location:       "cape town",
		PostedDate:     time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC),
		ScrapedAt:      time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC),
		SalaryMin:      &min,
		SalaryMax:      &max,
		SalaryCurrency: "ZAR",
		JobLevel:       domain.LevelSenior,
		RemoteType:     domain.RemoteHybrid,
		Source:         domain.SourceRSS,
		SourceURL:      "https://example.com/jobs/1",
		Skills:         []string{"go", "postgresql"},
		Benefits:       []string{"medical aid"},
		MatchScore:     &score,
	}
}

func TestJobRepo_Upsert(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(pgxmock.PgxPoolIface)
		wantErr bool
	}{
		{
			name: "insert succeeds",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectExec("INSERT INTO jobs").
					WithArgs(anyArgs(20)...).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "conflict updates existing row",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectExec("INSERT INTO jobs").
					WithArgs(anyArgs(20)...).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
		},
		{
			name: "database error surfaces",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectExec("INSERT INTO jobs").
					WithArgs(anyArgs(20)...).
					WillReturnError(assert.AnError)
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tt.setup(mock)
			repo := postgres.NewJobRepo(mock)

			err := repo.Upsert(context.Background(), sampleJob())
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestJobRepo_Get(t *testing.T) {
	want := sampleJob()
	cols := []string{
		"id", "title", "description", "company_name", "company_type",
		"location", "posted_date", "scraped_at", "salary_min", "salary_max",
		"salary_currency", "job_type", "job_level", "remote_type", "source",
		"source_url", "skills", "benefits", "match_score",
	}

	mock := newMockPool(t)
	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE id").
		WithArgs(want.ID).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			want.ID, want.Title, want.Description, want.Company.Name, string(want.Company.Type),
			want.Location, want.PostedDate, want.ScrapedAt, want.SalaryMin, want.SalaryMax,
			want.SalaryCurrency, string(want.JobType), string(want.JobLevel), string(want.RemoteType), want.Source,
			want.SourceURL, want.Skills, want.Benefits, want.MatchScore,
		))
	repo := postgres.NewJobRepo(mock)

	got, err := repo.Get(context.Background(), want.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_Get_NotFound(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	repo := postgres.NewJobRepo(mock)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_CountBySourceSince(t *testing.T) {
	since := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	mock := newMockPool(t)
	mock.ExpectQuery("SELECT source, COUNT").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"source", "count"}).
			AddRow(domain.SourceRSS, 812).
			AddRow(domain.SourceGovernment, 95).
			AddRow(domain.SourceSerpAPI, 9))
	repo := postgres.NewJobRepo(mock)

	got, err := repo.CountBySourceSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		domain.SourceRSS:        812,
		domain.SourceGovernment: 95,
		domain.SourceSerpAPI:    9,
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_jobs_scraped_at").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_jobs_source").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, postgres.EnsureSchema(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetentionService_PruneOldJobs(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec("DELETE FROM jobs WHERE scraped_at").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))

	svc := postgres.NewRetentionService(mock, 90, nil)
	deleted, err := svc.PruneOldJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
