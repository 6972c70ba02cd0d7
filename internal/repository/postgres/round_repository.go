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

// allocateRetries bounds round-number allocation retries under contention.
const allocateRetries = 3

// RoundRepository handles round database operations
type RoundRepository struct {
	pool *pgxpool.Pool
}

// NewRoundRepository creates a new round repository
func NewRoundRepository(pool *pgxpool.Pool) *RoundRepository {
	return &RoundRepository{pool: pool}
}

const roundColumns = `id, room_id, round_number, story_title, started_at, revealed_at, average, median, consensus_reached`

func scanRound(row pgx.Row) (*models.Round, error) {
	var round models.Round
	err := row.Scan(
		&round.ID, &round.RoomID, &round.RoundNumber, &round.StoryTitle,
		&round.StartedAt, &round.RevealedAt, &round.Average, &round.Median, &round.ConsensusReached,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &round, nil
}

// AllocateNext inserts the next round for the room: it reads the current max
// round number in the transaction and inserts max+1. The unique constraint
// on (room_id, round_number) forces a retry when two hosts race; the partial
// unique index on active rounds turns a second concurrent start into
// ErrActiveRoundExists.
func (r *RoundRepository) AllocateNext(ctx context.Context, roomID string, storyTitle *string) (*models.Round, error) {
	query := `
		INSERT INTO rounds (id, room_id, round_number, story_title)
		SELECT $1, $2, COALESCE(MAX(round_number), 0) + 1, $3
		FROM rounds WHERE room_id = $2
		RETURNING ` + roundColumns

	var lastErr error
	for attempt := 0; attempt < allocateRetries; attempt++ {
		round, err := scanRound(r.pool.QueryRow(ctx, query, uuid.New(), roomID, storyTitle))
		if err == nil {
			return round, nil
		}
		if isUniqueViolation(err) {
			if active, findErr := r.FindActiveByRoom(ctx, roomID); findErr == nil && active != nil {
				return nil, ErrActiveRoundExists
			}
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// FindByID finds a round by ID
func (r *RoundRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1`
	return scanRound(r.pool.QueryRow(ctx, query, id))
}

// FindActiveByRoom returns the room's unrevealed round, or ErrNotFound.
func (r *RoundRepository) FindActiveByRoom(ctx context.Context, roomID string) (*models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE room_id = $1 AND revealed_at IS NULL`
	return scanRound(r.pool.QueryRow(ctx, query, roomID))
}

// FindLatestByRoom returns the room's highest-numbered round, revealed or
// not, or ErrNotFound when the room has no rounds.
func (r *RoundRepository) FindLatestByRoom(ctx context.Context, roomID string) (*models.Round, error) {
	query := `
		SELECT ` + roundColumns + ` FROM rounds
		WHERE room_id = $1
		ORDER BY round_number DESC
		LIMIT 1
	`
	return scanRound(r.pool.QueryRow(ctx, query, roomID))
}

// MarkRevealed conditionally transitions the round to revealed with its
// statistics. Returns ErrAlreadyRevealed when a competing reveal won.
func (r *RoundRepository) MarkRevealed(ctx context.Context, id uuid.UUID, avg *float64, median *string, consensus *bool, revealedAt time.Time) (*models.Round, error) {
	query := `
		UPDATE rounds
		SET revealed_at = $2, average = $3, median = $4, consensus_reached = $5
		WHERE id = $1 AND revealed_at IS NULL
		RETURNING ` + roundColumns

	round, err := scanRound(r.pool.QueryRow(ctx, query, id, revealedAt, avg, median, consensus))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// either the round is gone or it was already revealed
			if _, findErr := r.FindByID(ctx, id); findErr == nil {
				return nil, ErrAlreadyRevealed
			}
			return nil, ErrNotFound
		}
		return nil, err
	}
	return round, nil
}

// Reset deletes the round's votes and clears the reveal fields in one
// transaction. Resetting an already-active round is a no-op and not an error.
func (r *RoundRepository) Reset(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM votes WHERE round_id = $1`, id); err != nil {
		return nil, err
	}

	query := `
		UPDATE rounds
		SET revealed_at = NULL, average = NULL, median = NULL, consensus_reached = NULL
		WHERE id = $1
		RETURNING ` + roundColumns

	round, err := scanRound(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return round, nil
}

// ListRevealedByRoom lists the room's revealed rounds in round-number order.
func (r *RoundRepository) ListRevealedByRoom(ctx context.Context, roomID string) ([]*models.Round, error) {
	query := `
		SELECT ` + roundColumns + ` FROM rounds
		WHERE room_id = $1 AND revealed_at IS NOT NULL
		ORDER BY round_number
	`

	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []*models.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}
