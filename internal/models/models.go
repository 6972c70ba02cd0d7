package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a participant's role in a room
type Role string

const (
	RoleHost     Role = "host"
	RoleVoter    Role = "voter"
	RoleObserver Role = "observer"
)

// Privacy represents who may join a room
type Privacy string

const (
	PrivacyPublic        Privacy = "public"
	PrivacyInviteOnly    Privacy = "invite-only"
	PrivacyOrgRestricted Privacy = "org-restricted"
)

// DeckType identifies the card deck used by a room
type DeckType string

const (
	DeckFibonacci DeckType = "fibonacci"
	DeckTShirt    DeckType = "tshirt"
	DeckPowersOf2 DeckType = "powers-of-2"
	DeckCustom    DeckType = "custom"
)

// RevealBehavior controls how a round transitions to revealed
type RevealBehavior string

const (
	RevealManual    RevealBehavior = "manual"
	RevealAutomatic RevealBehavior = "automatic"
	RevealOnTimer   RevealBehavior = "on-timer"
)

// Tier represents a user's subscription tier
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
	TierTeam Tier = "team"
)

// ExportFormat identifies the artifact format of an export job
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// JobStatus represents the state of an export job. Status only moves
// forward: pending -> processing -> completed | failed.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// MaxCardValueLen bounds the length of any card value on the wire and in store.
const MaxCardValueLen = 10

// RoomConfig is embedded in a Room and replaced atomically
type RoomConfig struct {
	DeckType       DeckType       `json:"deckType"`
	CustomDeck     []string       `json:"customDeck,omitempty"`
	TimerEnabled   bool           `json:"timerEnabled"`
	TimerSeconds   int            `json:"timerSeconds"`
	RevealBehavior RevealBehavior `json:"revealBehavior"`
	AllowObservers bool           `json:"allowObservers"`
	AllowAnonymous bool           `json:"allowAnonymous"`
}

// Room represents an estimation room. IDs are 6-char [a-z0-9] and shareable.
type Room struct {
	ID            string     `json:"id" db:"id"`
	Title         string     `json:"title" db:"title"`
	Privacy       Privacy    `json:"privacy" db:"privacy"`
	OwnerUserID   *uuid.UUID `json:"ownerUserId,omitempty" db:"owner_user_id"`
	OrgID         *uuid.UUID `json:"orgId,omitempty" db:"org_id"`
	Config        RoomConfig `json:"config" db:"config"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
	LastActiveAt  time.Time  `json:"lastActiveAt" db:"last_active_at"`
	SoftDeletedAt *time.Time `json:"softDeletedAt,omitempty" db:"soft_deleted_at"`
}

// Deleted reports whether the room has been soft-deleted.
func (r *Room) Deleted() bool {
	return r.SoftDeletedAt != nil
}

// Participant represents a member of a room. Exactly one of UserID and
// AnonymousID is set; reconnection with the same identity reuses the record.
type Participant struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	RoomID         string     `json:"roomId" db:"room_id"`
	UserID         *uuid.UUID `json:"userId,omitempty" db:"user_id"`
	AnonymousID    *uuid.UUID `json:"anonymousId,omitempty" db:"anonymous_id"`
	DisplayName    string     `json:"displayName" db:"display_name"`
	Role           Role       `json:"role" db:"role"`
	ConnectedAt    time.Time  `json:"connectedAt" db:"connected_at"`
	DisconnectedAt *time.Time `json:"disconnectedAt,omitempty" db:"disconnected_at"`
}

// CanVote reports whether the participant's role permits casting cards.
func (p *Participant) CanVote() bool {
	return p.Role == RoleHost || p.Role == RoleVoter
}

// Round represents one story estimation. At most one round per room has
// RevealedAt unset (the active round).
type Round struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	RoomID           string     `json:"roomId" db:"room_id"`
	RoundNumber      int        `json:"roundNumber" db:"round_number"`
	StoryTitle       *string    `json:"storyTitle,omitempty" db:"story_title"`
	StartedAt        time.Time  `json:"startedAt" db:"started_at"`
	RevealedAt       *time.Time `json:"revealedAt,omitempty" db:"revealed_at"`
	Average          *float64   `json:"average,omitempty" db:"average"`
	Median           *string    `json:"median,omitempty" db:"median"`
	ConsensusReached *bool      `json:"consensusReached,omitempty" db:"consensus_reached"`
}

// Revealed reports whether the round has been revealed.
func (r *Round) Revealed() bool {
	return r.RevealedAt != nil
}

// Vote represents one participant's card in a round. At most one per
// (round, participant); mutable until the round is revealed.
type Vote struct {
	ID            uuid.UUID `json:"id" db:"id"`
	RoundID       uuid.UUID `json:"roundId" db:"round_id"`
	ParticipantID uuid.UUID `json:"participantId" db:"participant_id"`
	CardValue     string    `json:"cardValue" db:"card_value"`
	VotedAt       time.Time `json:"votedAt" db:"voted_at"`
}

// ParticipantSummary is the per-participant slice of a session history record
type ParticipantSummary struct {
	ParticipantID uuid.UUID `json:"participantId"`
	DisplayName   string    `json:"displayName"`
	VoteCount     int       `json:"voteCount"`
}

// SessionSummaryStats aggregates a session's revealed rounds
type SessionSummaryStats struct {
	TotalVotes           int     `json:"totalVotes"`
	ConsensusRate        float64 `json:"consensusRate"`
	AvgEstimationSeconds float64 `json:"avgEstimationSeconds"`
	RoundsWithConsensus  int     `json:"roundsWithConsensus"`
}

// SessionHistory records a contiguous span of estimation activity in a room.
// Identity is (roomId, startedAt of the first revealed round of the session).
type SessionHistory struct {
	ID           uuid.UUID            `json:"id" db:"id"`
	RoomID       string               `json:"roomId" db:"room_id"`
	StartedAt    time.Time            `json:"startedAt" db:"started_at"`
	EndedAt      *time.Time           `json:"endedAt,omitempty" db:"ended_at"`
	TotalRounds  int                  `json:"totalRounds" db:"total_rounds"`
	TotalStories int                  `json:"totalStories" db:"total_stories"`
	Participants []ParticipantSummary `json:"participants"`
	SummaryStats SessionSummaryStats  `json:"summaryStats"`
}

// ExportJob tracks an asynchronous report export request
type ExportJob struct {
	ID           uuid.UUID    `json:"jobId" db:"id"`
	UserID       uuid.UUID    `json:"userId" db:"user_id"`
	SessionID    uuid.UUID    `json:"sessionId" db:"session_id"`
	Format       ExportFormat `json:"format" db:"format"`
	Status       JobStatus    `json:"status" db:"status"`
	DownloadURL  *string      `json:"downloadUrl,omitempty" db:"download_url"`
	ErrorMessage *string      `json:"errorMessage,omitempty" db:"error_message"`
	CreatedAt    time.Time    `json:"createdAt" db:"created_at"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty" db:"completed_at"`
	FailedAt     *time.Time   `json:"failedAt,omitempty" db:"failed_at"`
	ExpiresAt    *time.Time   `json:"expiresAt,omitempty" db:"expires_at"`
}
