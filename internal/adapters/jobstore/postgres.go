package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/retention/internal/domain/job"
)

const uniqueViolation = "23505"

const selectJob = `
	SELECT id, request, state, progress, stage, error, error_kind,
	       model_version, report_key, created_at, updated_at, started_at, finished_at
	FROM jobs`

// PostgresStore keeps jobs in the jobs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect opens a pool in UTC and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	config.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close closes the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserts a job.
func (s *PostgresStore) Create(ctx context.Context, j *job.Job) error {
	if j == nil {
		return ErrNilJob
	}
	req, err := json.Marshal(j.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal request of job %s: %w", j.ID, err)
	}

	query := `
		INSERT INTO jobs
		(id, request, state, progress, stage, error, error_kind, model_version,
		 report_key, created_at, updated_at, started_at, finished_at, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.pool.Exec(ctx, query,
		j.ID, req, string(j.State), j.Progress, j.Stage, j.Error, j.ErrorKind, j.ModelVersion,
		j.ReportKey, j.CreatedAt, j.UpdatedAt, j.StartedAt, j.FinishedAt, nullable(j.Request.IdempotencyKey),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("job %s: %w", j.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", j.ID, err)
	}
	return nil
}

// Get loads a job by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*job.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, selectJob+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, job.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return j, nil
}

// FindByIdempotencyKey loads the job created with key.
func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, key string) (*job.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, selectJob+` WHERE idempotency_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, job.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job by idempotency key: %w", err)
	}
	return j, nil
}

// Update writes the mutable fields of a job.
func (s *PostgresStore) Update(ctx context.Context, j *job.Job) error {
	if j == nil {
		return ErrNilJob
	}
	query := `
		UPDATE jobs
		SET state = $2, progress = $3, stage = $4, error = $5, error_kind = $6,
		    model_version = $7, report_key = $8, updated_at = $9, started_at = $10, finished_at = $11
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		j.ID, string(j.State), j.Progress, j.Stage, j.Error, j.ErrorKind,
		j.ModelVersion, j.ReportKey, j.UpdatedAt, j.StartedAt, j.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", j.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return job.ErrNotFound
	}
	return nil
}

// List returns up to limit jobs, newest first. limit <= 0 returns all.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]*job.Job, error) {
	query := selectJob + ` ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return out, nil
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var j job.Job
	var state string
	var req []byte
	err := row.Scan(
		&j.ID,
		&req,
		&state,
		&j.Progress,
		&j.Stage,
		&j.Error,
		&j.ErrorKind,
		&j.ModelVersion,
		&j.ReportKey,
		&j.CreatedAt,
		&j.UpdatedAt,
		&j.StartedAt,
		&j.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	j.State = job.State(state)
	if err := json.Unmarshal(req, &j.Request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request of job %s: %w", j.ID, err)
	}
	return &j, nil
}
