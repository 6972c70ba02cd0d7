package voting

import (
	"context"

	"github.com/google/uuid"

	"github.com/teacurran/planning-poker/internal/models"
)

// updateSessionHistory recomputes the room's session rollup from its
// revealed rounds. Identity is (roomId, startedAt of the earliest revealed
// round), so repeated reveals upsert the same record; a reset excludes the
// reopened round until it is revealed again.
func (s *Service) updateSessionHistory(ctx context.Context, roomID string) error {
	rounds, err := s.rounds.ListRevealedByRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if len(rounds) == 0 {
		return nil
	}

	sessionStart := rounds[0].StartedAt
	for _, r := range rounds {
		if r.StartedAt.Before(sessionStart) {
			sessionStart = r.StartedAt
		}
	}

	roundIDs := make([]uuid.UUID, len(rounds))
	consensusRounds := 0
	var estimationSeconds float64
	var lastRevealed = *rounds[0].RevealedAt
	for i, r := range rounds {
		roundIDs[i] = r.ID
		if r.ConsensusReached != nil && *r.ConsensusReached {
			consensusRounds++
		}
		estimationSeconds += r.RevealedAt.Sub(r.StartedAt).Seconds()
		if r.RevealedAt.After(lastRevealed) {
			lastRevealed = *r.RevealedAt
		}
	}

	votes, err := s.votes.ListByRounds(ctx, roundIDs)
	if err != nil {
		return err
	}
	voteCounts := make(map[uuid.UUID]int)
	for _, v := range votes {
		voteCounts[v.ParticipantID]++
	}

	participants, err := s.participants.ListByRoom(ctx, roomID)
	if err != nil {
		return err
	}
	summaries := make([]models.ParticipantSummary, len(participants))
	for i, p := range participants {
		summaries[i] = models.ParticipantSummary{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			VoteCount:     voteCounts[p.ID],
		}
	}

	history := &models.SessionHistory{
		ID:           uuid.New(),
		RoomID:       roomID,
		StartedAt:    sessionStart,
		EndedAt:      &lastRevealed,
		TotalRounds:  len(rounds),
		TotalStories: len(rounds), // one story per round
		Participants: summaries,
		SummaryStats: models.SessionSummaryStats{
			TotalVotes:           len(votes),
			ConsensusRate:        float64(consensusRounds) / float64(len(rounds)),
			AvgEstimationSeconds: estimationSeconds / float64(len(rounds)),
			RoundsWithConsensus:  consensusRounds,
		},
	}

	_, err = s.sessions.Upsert(ctx, history)
	return err
}
