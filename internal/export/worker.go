package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teacurran/planning-poker/internal/blob"
	"github.com/teacurran/planning-poker/internal/bus"
	"github.com/teacurran/planning-poker/internal/models"
	"github.com/teacurran/planning-poker/internal/repository/postgres"
)

const (
	// jobTimeout bounds one job attempt end to end.
	jobTimeout = 10 * time.Minute
	// downloadTTL is how long a finished artifact stays downloadable.
	downloadTTL = 7 * 24 * time.Hour
)

// Consumer-side views of the stores the worker reads and writes.

type JobRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.ExportJob, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) (*models.ExportJob, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, downloadURL string, expiresAt time.Time) (*models.ExportJob, error)
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) (*models.ExportJob, error)
}

type SessionRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.SessionHistory, error)
}

type RoundRepository interface {
	ListRevealedByRoom(ctx context.Context, roomID string) ([]*models.Round, error)
}

type VoteRepository interface {
	ListByRounds(ctx context.Context, roundIDs []uuid.UUID) ([]*models.Vote, error)
}

type ParticipantRepository interface {
	ListByRoom(ctx context.Context, roomID string) ([]*models.Participant, error)
}

// Worker consumes the export-jobs stream and renders reports. Failures are
// absorbed into the job record and the message acknowledged regardless, so
// a broken job never wedges the stream; redelivery after a crash resumes
// from whatever status the row reached.
type Worker struct {
	jobs         JobRepository
	sessions     SessionRepository
	rounds       RoundRepository
	votes        VoteRepository
	participants ParticipantRepository
	uploader     blob.Uploader
	bus          bus.Bus
}

// NewWorker creates an export worker.
func NewWorker(
	jobs JobRepository,
	sessions SessionRepository,
	rounds RoundRepository,
	votes VoteRepository,
	participants ParticipantRepository,
	uploader blob.Uploader,
	b bus.Bus,
) *Worker {
	return &Worker{
		jobs:         jobs,
		sessions:     sessions,
		rounds:       rounds,
		votes:        votes,
		participants: participants,
		uploader:     uploader,
		bus:          b,
	}
}

// Run consumes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.bus.ConsumeJobs(ctx)
	if err != nil {
		return fmt.Errorf("join export consumer group: %w", err)
	}
	slog.Info("export worker started")
	for msg := range msgs {
		w.handle(ctx, msg)
	}
	slog.Info("export worker stopped")
	return nil
}

func (w *Worker) handle(ctx context.Context, msg bus.JobMessage) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	job, err := w.jobs.FindByID(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			// Poison entry; acking drops it rather than redelivering forever.
			slog.Warn("export job not found, dropping", "job_id", msg.JobID)
			msg.Ack()
			return
		}
		slog.Error("load export job failed", "job_id", msg.JobID, "error", err)
		msg.Nack()
		return
	}

	switch job.Status {
	case models.JobCompleted, models.JobFailed:
		// Redelivery of finished work is a no-op.
		msg.Ack()
		return
	case models.JobPending:
		if job, err = w.jobs.MarkProcessing(ctx, job.ID); err != nil {
			if !errors.Is(err, postgres.ErrStatusConflict) {
				slog.Error("mark processing failed", "job_id", msg.JobID, "error", err)
				msg.Nack()
				return
			}
			// Lost the claim race; reload to see where it went.
			if job, err = w.jobs.FindByID(ctx, job.ID); err != nil || job.Status != models.JobProcessing {
				msg.Ack()
				return
			}
		}
	case models.JobProcessing:
		// A previous attempt died mid-flight; finish the work.
	}

	if err := w.process(ctx, job); err != nil {
		slog.Error("export job failed", "job_id", job.ID, "format", job.Format, "error", err)
		if _, ferr := w.jobs.MarkFailed(ctx, job.ID, err.Error()); ferr != nil {
			slog.Error("mark failed failed", "job_id", job.ID, "error", ferr)
			msg.Nack()
			return
		}
	}
	msg.Ack()
}

// process renders, uploads, and completes one claimed job.
func (w *Worker) process(ctx context.Context, job *models.ExportJob) error {
	session, err := w.sessions.FindByID(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", job.SessionID, err)
	}

	report, err := w.buildReport(ctx, session)
	if err != nil {
		return err
	}

	var data []byte
	switch job.Format {
	case models.FormatCSV:
		data, err = RenderCSV(report)
	case models.FormatPDF:
		data, err = RenderPDF(report)
	default:
		err = fmt.Errorf("unknown export format %q", job.Format)
	}
	if err != nil {
		return err
	}

	url, err := w.uploader.Put(ctx, fmt.Sprintf("%s.%s", job.ID, job.Format), data)
	if err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}

	if _, err := w.jobs.MarkCompleted(ctx, job.ID, url, time.Now().UTC().Add(downloadTTL)); err != nil {
		if errors.Is(err, postgres.ErrStatusConflict) {
			// Another attempt completed it first; the uploaded bytes are
			// identical, nothing to undo.
			return nil
		}
		return fmt.Errorf("mark completed: %w", err)
	}
	slog.Info("export job completed", "job_id", job.ID, "format", job.Format)
	return nil
}
