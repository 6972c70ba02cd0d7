package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teacurran/planning-poker/internal/models"
)

// ParticipantRepository handles participant database operations
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new participant repository
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

const participantColumns = `id, room_id, user_id, anonymous_id, display_name, role, connected_at, disconnected_at`

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	err := row.Scan(
		&p.ID, &p.RoomID, &p.UserID, &p.AnonymousID,
		&p.DisplayName, &p.Role, &p.ConnectedAt, &p.DisconnectedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetOrCreate returns the participant for the identity within the room,
// creating it on first join and reusing (and reviving) it on reconnect.
// The display name and role are refreshed on reuse.
func (r *ParticipantRepository) GetOrCreate(ctx context.Context, p *models.Participant) (*models.Participant, error) {
	var query string
	var identity uuid.UUID
	switch {
	case p.UserID != nil:
		query = `
			INSERT INTO participants (id, room_id, user_id, display_name, role)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (room_id, user_id) WHERE user_id IS NOT NULL
			DO UPDATE SET display_name = $4, role = $5, connected_at = now(), disconnected_at = NULL
			RETURNING ` + participantColumns
		identity = *p.UserID
	case p.AnonymousID != nil:
		query = `
			INSERT INTO participants (id, room_id, anonymous_id, display_name, role)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (room_id, anonymous_id) WHERE anonymous_id IS NOT NULL
			DO UPDATE SET display_name = $4, role = $5, connected_at = now(), disconnected_at = NULL
			RETURNING ` + participantColumns
		identity = *p.AnonymousID
	default:
		return nil, errors.New("participant has neither userId nor anonymousId")
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	return scanParticipant(r.pool.QueryRow(ctx, query, p.ID, p.RoomID, identity, p.DisplayName, p.Role))
}

// FindByID finds a participant by ID
func (r *ParticipantRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1`
	return scanParticipant(r.pool.QueryRow(ctx, query, id))
}

// ListByRoom lists every participant record of a room, connected or not.
func (r *ParticipantRepository) ListByRoom(ctx context.Context, roomID string) ([]*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE room_id = $1 ORDER BY connected_at`

	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// ListConnectedByRoom lists participants that currently hold a connection.
func (r *ParticipantRepository) ListConnectedByRoom(ctx context.Context, roomID string) ([]*models.Participant, error) {
	query := `
		SELECT ` + participantColumns + ` FROM participants
		WHERE room_id = $1 AND disconnected_at IS NULL
		ORDER BY connected_at
	`

	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// MarkDisconnected records a graceful (or detected) close. The record is
// kept for reconnect.
func (r *ParticipantRepository) MarkDisconnected(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE participants SET disconnected_at = now() WHERE id = $1 AND disconnected_at IS NULL`,
		id,
	)
	return err
}
