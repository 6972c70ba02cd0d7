package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teacurran/planning-poker/internal/models"
)

// SessionHistoryRepository handles session history database operations
type SessionHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewSessionHistoryRepository creates a new session history repository
func NewSessionHistoryRepository(pool *pgxpool.Pool) *SessionHistoryRepository {
	return &SessionHistoryRepository{pool: pool}
}

const sessionColumns = `id, room_id, started_at, ended_at, total_rounds, total_stories, participants, summary_stats`

func scanSession(row pgx.Row) (*models.SessionHistory, error) {
	var s models.SessionHistory
	var participantsJSON, statsJSON []byte
	err := row.Scan(
		&s.ID, &s.RoomID, &s.StartedAt, &s.EndedAt,
		&s.TotalRounds, &s.TotalStories, &participantsJSON, &statsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(participantsJSON, &s.Participants); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(statsJSON, &s.SummaryStats); err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert writes the session record keyed by (room_id, started_at). Each
// reveal recomputes the rollup, so the update replaces every derived field.
func (r *SessionHistoryRepository) Upsert(ctx context.Context, s *models.SessionHistory) (*models.SessionHistory, error) {
	participantsJSON, err := json.Marshal(s.Participants)
	if err != nil {
		return nil, err
	}
	statsJSON, err := json.Marshal(s.SummaryStats)
	if err != nil {
		return nil, err
	}

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	query := `
		INSERT INTO session_history (id, room_id, started_at, ended_at, total_rounds, total_stories, participants, summary_stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (room_id, started_at)
		DO UPDATE SET ended_at = $4, total_rounds = $5, total_stories = $6, participants = $7, summary_stats = $8
		RETURNING ` + sessionColumns

	return scanSession(r.pool.QueryRow(ctx, query,
		s.ID, s.RoomID, s.StartedAt, s.EndedAt,
		s.TotalRounds, s.TotalStories, participantsJSON, statsJSON,
	))
}

// FindByID finds a session history record by session ID
func (r *SessionHistoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.SessionHistory, error) {
	query := `SELECT ` + sessionColumns + ` FROM session_history WHERE id = $1`
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

// FindByRoomAndStart finds the session record for a room's session boundary.
func (r *SessionHistoryRepository) FindByRoomAndStart(ctx context.Context, roomID string, startedAt time.Time) (*models.SessionHistory, error) {
	query := `SELECT ` + sessionColumns + ` FROM session_history WHERE room_id = $1 AND started_at = $2`
	return scanSession(r.pool.QueryRow(ctx, query, roomID, startedAt))
}
