package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	"github.com/teacurran/planning-poker/internal/config"
)

var Module = fx.Module("repository",
	fx.Provide(
		NewDatabasePool,
		NewRoomRepository,
		NewParticipantRepository,
		NewRoundRepository,
		NewVoteRepository,
		NewSessionHistoryRepository,
		NewExportJobRepository,
	),
)

// NewDatabasePool opens the shared pgx pool and closes it on shutdown.
func NewDatabasePool(lc fx.Lifecycle, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	slog.Info("connected to database")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			pool.Close()
			slog.Info("database pool closed")
			return nil
		},
	})

	return pool, nil
}
