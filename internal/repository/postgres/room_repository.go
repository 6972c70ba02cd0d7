package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teacurran/planning-poker/internal/models"
)

// roomIDRetries bounds how many fresh identifiers are tried on collision.
const roomIDRetries = 5

// RoomRepository handles room database operations
type RoomRepository struct {
	pool *pgxpool.Pool
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

const roomColumns = `id, title, privacy, owner_user_id, org_id, config, created_at, last_active_at, soft_deleted_at`

func scanRoom(row pgx.Row) (*models.Room, error) {
	var room models.Room
	var configJSON []byte
	err := row.Scan(
		&room.ID, &room.Title, &room.Privacy, &room.OwnerUserID, &room.OrgID,
		&configJSON, &room.CreatedAt, &room.LastActiveAt, &room.SoftDeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(configJSON, &room.Config); err != nil {
		return nil, err
	}
	return &room, nil
}

// Create inserts a room with a freshly generated identifier, retrying on
// collision up to roomIDRetries before surfacing ErrIdentifierExhausted.
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) (*models.Room, error) {
	configJSON, err := json.Marshal(room.Config)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO rooms (id, title, privacy, owner_user_id, org_id, config)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, last_active_at
	`

	for attempt := 0; attempt < roomIDRetries; attempt++ {
		id := room.ID
		if id == "" {
			id = models.NewRoomID()
		}

		err := r.pool.QueryRow(ctx, query,
			id, room.Title, room.Privacy, room.OwnerUserID, room.OrgID, configJSON,
		).Scan(&room.CreatedAt, &room.LastActiveAt)

		if err == nil {
			room.ID = id
			return room, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		if room.ID != "" {
			// caller pinned the id, a collision is final
			return nil, ErrIdentifierExhausted
		}
	}

	return nil, ErrIdentifierExhausted
}

// FindByID finds a room by its identifier, soft-deleted rooms included.
func (r *RoomRepository) FindByID(ctx context.Context, id string) (*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`
	return scanRoom(r.pool.QueryRow(ctx, query, id))
}

// UpdateConfig atomically replaces the room's embedded configuration.
func (r *RoomRepository) UpdateConfig(ctx context.Context, id string, cfg models.RoomConfig) error {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE rooms SET config = $2, last_active_at = now() WHERE id = $1 AND soft_deleted_at IS NULL`,
		id, configJSON,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastActive bumps the room's activity timestamp.
func (r *RoomRepository) TouchLastActive(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE rooms SET last_active_at = now() WHERE id = $1`, id)
	return err
}

// SoftDelete marks the room deleted without removing rows.
func (r *RoomRepository) SoftDelete(ctx context.Context, id string, ownerUserID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE rooms SET soft_deleted_at = now() WHERE id = $1 AND owner_user_id = $2 AND soft_deleted_at IS NULL`,
		id, ownerUserID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByOwner lists the owner's live rooms, most recently active first.
func (r *RoomRepository) ListByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]*models.Room, error) {
	query := `
		SELECT ` + roomColumns + ` FROM rooms
		WHERE owner_user_id = $1 AND soft_deleted_at IS NULL
		ORDER BY last_active_at DESC
	`

	rows, err := r.pool.Query(ctx, query, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
