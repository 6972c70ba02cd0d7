package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teacurran/planning-poker/internal/models"
)

// ErrStatusConflict is returned by the conditional status transitions when
// the job is not in the expected source state.
var ErrStatusConflict = errors.New("export job not in expected status")

// ExportJobRepository handles export job database operations
type ExportJobRepository struct {
	pool *pgxpool.Pool
}

// NewExportJobRepository creates a new export job repository
func NewExportJobRepository(pool *pgxpool.Pool) *ExportJobRepository {
	return &ExportJobRepository{pool: pool}
}

const jobColumns = `id, user_id, session_id, format, status, download_url, error_message, created_at, completed_at, failed_at, expires_at`

func scanJob(row pgx.Row) (*models.ExportJob, error) {
	var job models.ExportJob
	err := row.Scan(
		&job.ID, &job.UserID, &job.SessionID, &job.Format, &job.Status,
		&job.DownloadURL, &job.ErrorMessage,
		&job.CreatedAt, &job.CompletedAt, &job.FailedAt, &job.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// Create inserts a pending job
func (r *ExportJobRepository) Create(ctx context.Context, job *models.ExportJob) (*models.ExportJob, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}

	query := `
		INSERT INTO export_jobs (id, user_id, session_id, format, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING ` + jobColumns

	return scanJob(r.pool.QueryRow(ctx, query, job.ID, job.UserID, job.SessionID, job.Format))
}

// FindByID finds a job by ID
func (r *ExportJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.ExportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM export_jobs WHERE id = $1`
	return scanJob(r.pool.QueryRow(ctx, query, id))
}

// ListByUser lists the user's jobs, newest first
func (r *ExportJobRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.ExportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM export_jobs WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.ExportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkProcessing advances pending -> processing. A job already past pending
// yields ErrStatusConflict so re-delivered stream messages skip work.
func (r *ExportJobRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (*models.ExportJob, error) {
	query := `
		UPDATE export_jobs SET status = 'processing'
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + jobColumns

	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if _, findErr := r.FindByID(ctx, id); findErr == nil {
				return nil, ErrStatusConflict
			}
			return nil, ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// MarkCompleted advances processing -> completed with the artifact location.
func (r *ExportJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, downloadURL string, expiresAt time.Time) (*models.ExportJob, error) {
	query := `
		UPDATE export_jobs
		SET status = 'completed', download_url = $2, expires_at = $3, completed_at = now()
		WHERE id = $1 AND status = 'processing'
		RETURNING ` + jobColumns

	job, err := scanJob(r.pool.QueryRow(ctx, query, id, downloadURL, expiresAt))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrStatusConflict
		}
		return nil, err
	}
	return job, nil
}

// MarkFailed terminates the job with an error message. Failure is recorded
// from pending or processing; completed jobs are never demoted.
func (r *ExportJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) (*models.ExportJob, error) {
	query := `
		UPDATE export_jobs
		SET status = 'failed', error_message = $2, failed_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')
		RETURNING ` + jobColumns

	job, err := scanJob(r.pool.QueryRow(ctx, query, id, errorMessage))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrStatusConflict
		}
		return nil, err
	}
	return job, nil
}
