package export

import (
	"context"

	"go.uber.org/fx"

	"github.com/teacurran/planning-poker/internal/blob"
	"github.com/teacurran/planning-poker/internal/bus"
	"github.com/teacurran/planning-poker/internal/config"
	"github.com/teacurran/planning-poker/internal/repository/postgres"
)

var Module = fx.Module("export",
	fx.Provide(NewWorkerFx),
	fx.Invoke(RunWorker),
)

// NewWorkerFx creates the export worker for fx.
func NewWorkerFx(
	jobs *postgres.ExportJobRepository,
	sessions *postgres.SessionHistoryRepository,
	rounds *postgres.RoundRepository,
	votes *postgres.VoteRepository,
	participants *postgres.ParticipantRepository,
	uploader blob.Uploader,
	b bus.Bus,
) *Worker {
	return NewWorker(jobs, sessions, rounds, votes, participants, uploader, b)
}

// RunWorker starts the worker loop for the process lifetime when enabled.
// Pods that only serve connections run with EXPORT_WORKER_ENABLED=false.
func RunWorker(lc fx.Lifecycle, cfg *config.Config, worker *Worker) {
	if !cfg.Export.WorkerEnabled {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				_ = worker.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
