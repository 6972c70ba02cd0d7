package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teacurran/planning-poker/internal/models"
)

// VoteRepository handles vote database operations
type VoteRepository struct {
	pool *pgxpool.Pool
}

// NewVoteRepository creates a new vote repository
func NewVoteRepository(pool *pgxpool.Pool) *VoteRepository {
	return &VoteRepository{pool: pool}
}

const voteColumns = `id, round_id, participant_id, card_value, voted_at`

func scanVote(row pgx.Row) (*models.Vote, error) {
	var vote models.Vote
	err := row.Scan(&vote.ID, &vote.RoundID, &vote.ParticipantID, &vote.CardValue, &vote.VotedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &vote, nil
}

// Upsert records the participant's card for the round, replacing an earlier
// card under the unique constraint on (round_id, participant_id). Returns
// the effective vote.
func (r *VoteRepository) Upsert(ctx context.Context, roundID, participantID uuid.UUID, cardValue string) (*models.Vote, error) {
	query := `
		INSERT INTO votes (id, round_id, participant_id, card_value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (round_id, participant_id)
		DO UPDATE SET card_value = $4, voted_at = now()
		RETURNING ` + voteColumns

	return scanVote(r.pool.QueryRow(ctx, query, uuid.New(), roundID, participantID, cardValue))
}

// ListByRound lists the round's votes in cast order (voted_at, indexed).
func (r *VoteRepository) ListByRound(ctx context.Context, roundID uuid.UUID) ([]*models.Vote, error) {
	query := `SELECT ` + voteColumns + ` FROM votes WHERE round_id = $1 ORDER BY voted_at, id`

	rows, err := r.pool.Query(ctx, query, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []*models.Vote
	for rows.Next() {
		vote, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		votes = append(votes, vote)
	}
	return votes, rows.Err()
}

// ListByRounds lists votes for a set of rounds (export and session rollups).
func (r *VoteRepository) ListByRounds(ctx context.Context, roundIDs []uuid.UUID) ([]*models.Vote, error) {
	query := `SELECT ` + voteColumns + ` FROM votes WHERE round_id = ANY($1) ORDER BY voted_at, id`

	rows, err := r.pool.Query(ctx, query, roundIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []*models.Vote
	for rows.Next() {
		vote, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		votes = append(votes, vote)
	}
	return votes, rows.Err()
}

// CountByRound counts votes cast in a round.
func (r *VoteRepository) CountByRound(ctx context.Context, roundID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM votes WHERE round_id = $1`, roundID).Scan(&count)
	return count, err
}
