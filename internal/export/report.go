// Package export turns session history into downloadable report artifacts.
// Jobs arrive over the durable bus stream, are rendered deterministically
// (same session, same bytes), uploaded, and recorded on the job row.
package export

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/teacurran/planning-poker/internal/models"
)

// Report is the assembled input of a render: the session rollup plus the
// per-round detail the rollup summarizes.
type Report struct {
	Session      *models.SessionHistory
	Rounds       []*models.Round
	VotesByRound map[uuid.UUID][]*models.Vote
	Names        map[uuid.UUID]string
}

// buildReport loads everything a renderer needs for the session. Rounds are
// limited to the session's span and ordered by round number.
func (w *Worker) buildReport(ctx context.Context, session *models.SessionHistory) (*Report, error) {
	all, err := w.rounds.ListRevealedByRoom(ctx, session.RoomID)
	if err != nil {
		return nil, fmt.Errorf("load rounds: %w", err)
	}
	var rounds []*models.Round
	for _, r := range all {
		if r.StartedAt.Before(session.StartedAt) {
			continue
		}
		rounds = append(rounds, r)
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].RoundNumber < rounds[j].RoundNumber })

	roundIDs := make([]uuid.UUID, len(rounds))
	for i, r := range rounds {
		roundIDs[i] = r.ID
	}
	votes, err := w.votes.ListByRounds(ctx, roundIDs)
	if err != nil {
		return nil, fmt.Errorf("load votes: %w", err)
	}
	byRound := make(map[uuid.UUID][]*models.Vote)
	for _, v := range votes {
		byRound[v.RoundID] = append(byRound[v.RoundID], v)
	}

	participants, err := w.participants.ListByRoom(ctx, session.RoomID)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	names := make(map[uuid.UUID]string, len(participants))
	for _, p := range participants {
		names[p.ID] = p.DisplayName
	}

	return &Report{
		Session:      session,
		Rounds:       rounds,
		VotesByRound: byRound,
		Names:        names,
	}, nil
}

// orderedVotes returns the round's votes sorted by participant display name,
// participant id as tiebreak. Renderers share this so the two formats list
// rows identically.
func (r *Report) orderedVotes(roundID uuid.UUID) []*models.Vote {
	votes := append([]*models.Vote(nil), r.VotesByRound[roundID]...)
	sort.Slice(votes, func(i, j int) bool {
		ni, nj := r.Names[votes[i].ParticipantID], r.Names[votes[j].ParticipantID]
		if ni != nj {
			return ni < nj
		}
		return votes[i].ParticipantID.String() < votes[j].ParticipantID.String()
	})
	return votes
}
