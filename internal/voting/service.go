// Package voting is the domain core: joining, round lifecycle, vote casting,
// reveal statistics, and the session-history rollup. Every mutation persists
// first and fans out through the bus second; subscribers that miss an event
// recover by re-reading the store on reconnect.
package voting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teacurran/planning-poker/internal/access"
	"github.com/teacurran/planning-poker/internal/auth"
	"github.com/teacurran/planning-poker/internal/bus"
	"github.com/teacurran/planning-poker/internal/models"
	"github.com/teacurran/planning-poker/internal/protocol"
	"github.com/teacurran/planning-poker/internal/repository/postgres"
)

// Timer bounds for rooms with a reveal timer enabled.
const (
	minTimerSeconds = 10
	maxTimerSeconds = 3600
)

// Service implements the room domain operations. Callers (the connection
// gateway, the REST handlers) serialize per-room mutations through the room
// hub; the service itself holds no room state.
type Service struct {
	rooms        RoomRepository
	participants ParticipantRepository
	rounds       RoundRepository
	votes        VoteRepository
	sessions     SessionHistoryRepository
	resolver     *access.Resolver
	bus          bus.Bus
}

// NewService creates the domain service.
func NewService(
	rooms RoomRepository,
	participants ParticipantRepository,
	rounds RoundRepository,
	votes VoteRepository,
	sessions SessionHistoryRepository,
	resolver *access.Resolver,
	b bus.Bus,
) *Service {
	return &Service{
		rooms:        rooms,
		participants: participants,
		rounds:       rounds,
		votes:        votes,
		sessions:     sessions,
		resolver:     resolver,
		bus:          b,
	}
}

// Join admits the identity into the room: permission check, participant
// create-or-reuse, fan-out of participant_joined, and a state snapshot for
// the joining client. Reconnection with the same identity reuses the
// participant row.
func (s *Service) Join(ctx context.Context, identity *auth.Identity, roomID, displayName string, asObserver bool) (*models.Participant, *protocol.RoomSnapshotPayload, error) {
	room, err := s.findLiveRoom(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.resolver.CanJoin(ctx, identity, room); err != nil {
		return nil, nil, err
	}
	if asObserver && !room.Config.AllowObservers {
		return nil, nil, ErrObserversDisabled
	}

	role := models.RoleVoter
	if room.OwnerUserID != nil && identity.UserID != nil && *identity.UserID == *room.OwnerUserID {
		role = models.RoleHost
	} else if asObserver {
		role = models.RoleObserver
	}

	participant, err := s.participants.GetOrCreate(ctx, &models.Participant{
		RoomID:      roomID,
		UserID:      identity.UserID,
		AnonymousID: identity.AnonymousID,
		DisplayName: displayName,
		Role:        role,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("join room %s: %w", roomID, err)
	}

	if err := s.rooms.TouchLastActive(ctx, roomID); err != nil {
		slog.Warn("touch last_active failed", "room_id", roomID, "error", err)
	}

	s.publish(ctx, roomID, protocol.TypeParticipantJoined, protocol.ParticipantJoinedPayload{
		Participant: participantInfo(participant),
	})

	snapshot, err := s.snapshot(ctx, room, participant)
	if err != nil {
		return nil, nil, err
	}
	return participant, snapshot, nil
}

// Leave marks the participant disconnected and fans out participant_left.
// Called by the gateway on every connection teardown, clean or not.
func (s *Service) Leave(ctx context.Context, roomID string, participantID uuid.UUID) error {
	if err := s.participants.MarkDisconnected(ctx, participantID); err != nil && !errors.Is(err, postgres.ErrNotFound) {
		return err
	}
	s.publish(ctx, roomID, protocol.TypeParticipantLeft, protocol.ParticipantLeftPayload{
		ParticipantID: participantID,
	})
	return nil
}

// StartRound opens the next round for the room. Host only; fails while
// another round is active.
func (s *Service) StartRound(ctx context.Context, roomID string, actor *models.Participant, storyTitle *string) (*models.Round, error) {
	if actor.Role != models.RoleHost {
		return nil, ErrNotHost
	}
	if _, err := s.findLiveRoom(ctx, roomID); err != nil {
		return nil, err
	}

	round, err := s.rounds.AllocateNext(ctx, roomID, storyTitle)
	if err != nil {
		if errors.Is(err, postgres.ErrActiveRoundExists) {
			return nil, ErrActiveRoundExists
		}
		return nil, fmt.Errorf("start round in %s: %w", roomID, err)
	}

	s.publish(ctx, roomID, protocol.TypeRoundStarted, protocol.RoundStartedPayload{
		RoundID:     round.ID,
		RoundNumber: round.RoundNumber,
		StoryTitle:  round.StoryTitle,
		StartedAt:   round.StartedAt,
	})
	return round, nil
}

// CastVote records or replaces the actor's card in the active round. The
// fan-out announces who voted, never the value.
func (s *Service) CastVote(ctx context.Context, roomID string, actor *models.Participant, cardValue string) (*models.Vote, error) {
	if !actor.CanVote() {
		return nil, ErrObserverCannotVote
	}
	room, err := s.findLiveRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.Config.DeckContains(cardValue) {
		return nil, ErrCardNotInDeck
	}

	round, err := s.rounds.FindActiveByRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNoActiveRound
		}
		return nil, err
	}

	vote, err := s.votes.Upsert(ctx, round.ID, actor.ID, cardValue)
	if err != nil {
		return nil, fmt.Errorf("cast vote in round %s: %w", round.ID, err)
	}

	s.publish(ctx, roomID, protocol.TypeVoteRecorded, protocol.VoteRecordedPayload{
		ParticipantID: actor.ID,
		VotedAt:       vote.VotedAt,
	})
	return vote, nil
}

// Reveal transitions the active round to revealed, computes statistics over
// the cast cards, fans out the full vote list, and refreshes the session
// history rollup. Host only; revealing twice is a conflict.
func (s *Service) Reveal(ctx context.Context, roomID string, actor *models.Participant) (*models.Round, []*models.Vote, protocol.RoundStats, error) {
	var none protocol.RoundStats
	if actor.Role != models.RoleHost {
		return nil, nil, none, ErrNotHost
	}

	round, err := s.rounds.FindActiveByRoom(ctx, roomID)
	if err != nil {
		if !errors.Is(err, postgres.ErrNotFound) {
			return nil, nil, none, err
		}
		// No active round: a room whose latest round is already revealed is
		// a conflict, a room that never started one is a not-found.
		latest, lerr := s.rounds.FindLatestByRoom(ctx, roomID)
		if lerr == nil && latest.Revealed() {
			return nil, nil, none, ErrRoundAlreadyRevealed
		}
		return nil, nil, none, ErrNoActiveRound
	}

	votes, err := s.votes.ListByRound(ctx, round.ID)
	if err != nil {
		return nil, nil, none, err
	}
	values := make([]string, len(votes))
	for i, v := range votes {
		values[i] = v.CardValue
	}
	stats := ComputeStats(values)

	// With zero votes there is nothing to agree on; consensus stays null
	// rather than false.
	var consensus *bool
	if len(votes) > 0 {
		consensus = &stats.Consensus
	}

	revealedAt := time.Now().UTC()
	roundID := round.ID
	round, err = s.rounds.MarkRevealed(ctx, roundID, stats.Avg, stats.Median, consensus, revealedAt)
	if err != nil {
		if errors.Is(err, postgres.ErrAlreadyRevealed) {
			return nil, nil, none, ErrRoundAlreadyRevealed
		}
		return nil, nil, none, fmt.Errorf("reveal round %s: %w", roundID, err)
	}

	revealed := make([]protocol.RevealedVote, len(votes))
	for i, v := range votes {
		revealed[i] = protocol.RevealedVote{ParticipantID: v.ParticipantID, CardValue: v.CardValue}
	}
	s.publish(ctx, roomID, protocol.TypeRoundRevealed, protocol.RoundRevealedPayload{
		RoundID:    round.ID,
		Votes:      revealed,
		Stats:      stats,
		RevealedAt: *round.RevealedAt,
	})

	// Rollup failure must not undo the reveal; the next reveal repairs it.
	if err := s.updateSessionHistory(ctx, roomID); err != nil {
		slog.Error("session history rollup failed", "room_id", roomID, "error", err)
	}
	return round, votes, stats, nil
}

// Reset returns the room's current round to a clean active state: votes
// deleted, reveal fields cleared. Works on the active round if one exists,
// otherwise re-opens the most recent revealed round. Host only.
func (s *Service) Reset(ctx context.Context, roomID string, actor *models.Participant) (*models.Round, error) {
	if actor.Role != models.RoleHost {
		return nil, ErrNotHost
	}

	round, err := s.rounds.FindActiveByRoom(ctx, roomID)
	if errors.Is(err, postgres.ErrNotFound) {
		round, err = s.rounds.FindLatestByRoom(ctx, roomID)
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNoRounds
		}
	}
	if err != nil {
		return nil, err
	}

	roundID := round.ID
	round, err = s.rounds.Reset(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("reset round %s: %w", roundID, err)
	}

	s.publish(ctx, roomID, protocol.TypeRoundWasReset, protocol.RoundResetPayload{RoundID: round.ID})
	return round, nil
}

// UpdateConfig atomically replaces the room configuration. Host only; the
// new deck applies to votes cast after this point, already-cast votes keep
// their values.
func (s *Service) UpdateConfig(ctx context.Context, roomID string, actor *models.Participant, cfg models.RoomConfig) error {
	if actor.Role != models.RoleHost {
		return ErrNotHost
	}
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	if _, err := s.findLiveRoom(ctx, roomID); err != nil {
		return err
	}

	if err := s.rooms.UpdateConfig(ctx, roomID, cfg); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("update config of %s: %w", roomID, err)
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	s.publish(ctx, roomID, protocol.TypeConfigUpdated, protocol.ConfigUpdatePayload{Config: data})
	return nil
}

// Participant loads a participant by id, for gateway rebinds.
func (s *Service) Participant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	return s.participants.FindByID(ctx, id)
}

// ValidateConfig checks a replacement room configuration.
func ValidateConfig(cfg models.RoomConfig) error {
	switch cfg.DeckType {
	case models.DeckFibonacci, models.DeckTShirt, models.DeckPowersOf2:
	case models.DeckCustom:
		if len(cfg.CustomDeck) == 0 {
			return fmt.Errorf("%w: custom deck is empty", ErrInvalidConfig)
		}
		for _, card := range cfg.CustomDeck {
			if card == "" || len(card) > models.MaxCardValueLen {
				return fmt.Errorf("%w: card %q exceeds length limit", ErrInvalidConfig, card)
			}
		}
	default:
		return fmt.Errorf("%w: unknown deck type %q", ErrInvalidConfig, cfg.DeckType)
	}
	if cfg.TimerEnabled && (cfg.TimerSeconds < minTimerSeconds || cfg.TimerSeconds > maxTimerSeconds) {
		return fmt.Errorf("%w: timer seconds out of range", ErrInvalidConfig)
	}
	switch cfg.RevealBehavior {
	case models.RevealManual, models.RevealAutomatic, models.RevealOnTimer:
	default:
		return fmt.Errorf("%w: unknown reveal behavior %q", ErrInvalidConfig, cfg.RevealBehavior)
	}
	return nil
}

func (s *Service) findLiveRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if room.Deleted() {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// snapshot assembles the room.snapshot.v1 payload: config, connected
// participants, and the active round with who-voted (values withheld).
func (s *Service) snapshot(ctx context.Context, room *models.Room, you *models.Participant) (*protocol.RoomSnapshotPayload, error) {
	connected, err := s.participants.ListConnectedByRoom(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	infos := make([]protocol.ParticipantInfo, len(connected))
	for i, p := range connected {
		infos[i] = participantInfo(p)
	}

	cfgData, err := json.Marshal(room.Config)
	if err != nil {
		return nil, err
	}
	snap := &protocol.RoomSnapshotPayload{
		RoomID:       room.ID,
		Title:        room.Title,
		Config:       cfgData,
		You:          participantInfo(you),
		Participants: infos,
	}

	round, err := s.rounds.FindActiveByRoom(ctx, room.ID)
	if errors.Is(err, postgres.ErrNotFound) {
		return snap, nil
	}
	if err != nil {
		return nil, err
	}

	votes, err := s.votes.ListByRound(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	voted := make([]uuid.UUID, len(votes))
	for i, v := range votes {
		voted[i] = v.ParticipantID
	}
	snap.ActiveRound = &protocol.SnapshotRound{
		RoundID:     round.ID,
		RoundNumber: round.RoundNumber,
		StoryTitle:  round.StoryTitle,
		StartedAt:   round.StartedAt,
		Voted:       voted,
	}
	return snap, nil
}

// publish fans an event out through the bus. Room events are at-most-once:
// a publish failure is logged, not propagated, because the state change is
// already durable and clients recover via snapshot on reconnect.
func (s *Service) publish(ctx context.Context, roomID, msgType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event payload", "type", msgType, "error", err)
		return
	}
	if err := s.bus.PublishRoom(ctx, roomID, bus.Event{Type: msgType, Payload: data}); err != nil {
		slog.Error("publish room event failed", "room_id", roomID, "type", msgType, "error", err)
	}
}

func participantInfo(p *models.Participant) protocol.ParticipantInfo {
	return protocol.ParticipantInfo{
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		Role:          string(p.Role),
	}
}
