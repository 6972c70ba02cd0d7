package voting

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/teacurran/planning-poker/internal/models"
)

// Consumer-side views of the persistence layer. The postgres repositories
// satisfy these; tests substitute fakes.

type RoomRepository interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
	UpdateConfig(ctx context.Context, id string, cfg models.RoomConfig) error
	TouchLastActive(ctx context.Context, id string) error
}

type ParticipantRepository interface {
	GetOrCreate(ctx context.Context, p *models.Participant) (*models.Participant, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	ListConnectedByRoom(ctx context.Context, roomID string) ([]*models.Participant, error)
	ListByRoom(ctx context.Context, roomID string) ([]*models.Participant, error)
	MarkDisconnected(ctx context.Context, id uuid.UUID) error
}

type RoundRepository interface {
	AllocateNext(ctx context.Context, roomID string, storyTitle *string) (*models.Round, error)
	FindActiveByRoom(ctx context.Context, roomID string) (*models.Round, error)
	FindLatestByRoom(ctx context.Context, roomID string) (*models.Round, error)
	MarkRevealed(ctx context.Context, id uuid.UUID, avg *float64, median *string, consensus *bool, revealedAt time.Time) (*models.Round, error)
	Reset(ctx context.Context, id uuid.UUID) (*models.Round, error)
	ListRevealedByRoom(ctx context.Context, roomID string) ([]*models.Round, error)
}

type VoteRepository interface {
	Upsert(ctx context.Context, roundID, participantID uuid.UUID, cardValue string) (*models.Vote, error)
	ListByRound(ctx context.Context, roundID uuid.UUID) ([]*models.Vote, error)
	ListByRounds(ctx context.Context, roundIDs []uuid.UUID) ([]*models.Vote, error)
}

type SessionHistoryRepository interface {
	Upsert(ctx context.Context, s *models.SessionHistory) (*models.SessionHistory, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.SessionHistory, error)
}
