package voting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teacurran/planning-poker/internal/bus"
	"github.com/teacurran/planning-poker/internal/models"
	"github.com/teacurran/planning-poker/internal/repository/postgres"
)

// In-memory fakes mirroring the postgres repositories' contracts, including
// their sentinel errors.

type fakeRoomRepo struct {
	mu    sync.Mutex
	rooms map[string]*models.Room
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rooms: make(map[string]*models.Room)}
}

func (f *fakeRoomRepo) FindByID(_ context.Context, id string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *room
	return &cp, nil
}

func (f *fakeRoomRepo) UpdateConfig(_ context.Context, id string, cfg models.RoomConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok || room.SoftDeletedAt != nil {
		return postgres.ErrNotFound
	}
	room.Config = cfg
	return nil
}

func (f *fakeRoomRepo) TouchLastActive(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok := f.rooms[id]; ok {
		room.LastActiveAt = time.Now()
	}
	return nil
}

type fakeParticipantRepo struct {
	mu           sync.Mutex
	participants map[uuid.UUID]*models.Participant
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{participants: make(map[uuid.UUID]*models.Participant)}
}

func (f *fakeParticipantRepo) GetOrCreate(_ context.Context, p *models.Participant) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.participants {
		if existing.RoomID != p.RoomID {
			continue
		}
		sameUser := p.UserID != nil && existing.UserID != nil && *p.UserID == *existing.UserID
		sameAnon := p.AnonymousID != nil && existing.AnonymousID != nil && *p.AnonymousID == *existing.AnonymousID
		if sameUser || sameAnon {
			existing.DisplayName = p.DisplayName
			existing.Role = p.Role
			existing.ConnectedAt = time.Now()
			existing.DisconnectedAt = nil
			cp := *existing
			return &cp, nil
		}
	}
	stored := *p
	stored.ID = uuid.New()
	stored.ConnectedAt = time.Now()
	f.participants[stored.ID] = &stored
	cp := stored
	return &cp, nil
}

func (f *fakeParticipantRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeParticipantRepo) ListConnectedByRoom(_ context.Context, roomID string) ([]*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Participant
	for _, p := range f.participants {
		if p.RoomID == roomID && p.DisconnectedAt == nil {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeParticipantRepo) ListByRoom(_ context.Context, roomID string) ([]*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Participant
	for _, p := range f.participants {
		if p.RoomID == roomID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeParticipantRepo) MarkDisconnected(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[id]
	if !ok {
		return postgres.ErrNotFound
	}
	now := time.Now()
	p.DisconnectedAt = &now
	return nil
}

type fakeRoundRepo struct {
	mu     sync.Mutex
	rounds map[uuid.UUID]*models.Round
	votes  *fakeVoteRepo
}

func newFakeRoundRepo(votes *fakeVoteRepo) *fakeRoundRepo {
	return &fakeRoundRepo{rounds: make(map[uuid.UUID]*models.Round), votes: votes}
}

func (f *fakeRoundRepo) AllocateNext(_ context.Context, roomID string, storyTitle *string) (*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := 0
	for _, r := range f.rounds {
		if r.RoomID != roomID {
			continue
		}
		if r.RevealedAt == nil {
			return nil, postgres.ErrActiveRoundExists
		}
		if r.RoundNumber > max {
			max = r.RoundNumber
		}
	}
	round := &models.Round{
		ID:          uuid.New(),
		RoomID:      roomID,
		RoundNumber: max + 1,
		StoryTitle:  storyTitle,
		StartedAt:   time.Now(),
	}
	f.rounds[round.ID] = round
	cp := *round
	return &cp, nil
}

func (f *fakeRoundRepo) FindActiveByRoom(_ context.Context, roomID string) (*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rounds {
		if r.RoomID == roomID && r.RevealedAt == nil {
			cp := *r
			return &cp, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (f *fakeRoundRepo) FindLatestByRoom(_ context.Context, roomID string) (*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.Round
	for _, r := range f.rounds {
		if r.RoomID == roomID && (latest == nil || r.RoundNumber > latest.RoundNumber) {
			latest = r
		}
	}
	if latest == nil {
		return nil, postgres.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeRoundRepo) MarkRevealed(_ context.Context, id uuid.UUID, avg *float64, median *string, consensus *bool, revealedAt time.Time) (*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rounds[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	if r.RevealedAt != nil {
		return nil, postgres.ErrAlreadyRevealed
	}
	r.RevealedAt = &revealedAt
	r.Average = avg
	r.Median = median
	r.ConsensusReached = consensus
	cp := *r
	return &cp, nil
}

func (f *fakeRoundRepo) Reset(_ context.Context, id uuid.UUID) (*models.Round, error) {
	f.mu.Lock()
	r, ok := f.rounds[id]
	if !ok {
		f.mu.Unlock()
		return nil, postgres.ErrNotFound
	}
	r.RevealedAt = nil
	r.Average = nil
	r.Median = nil
	r.ConsensusReached = nil
	cp := *r
	f.mu.Unlock()

	f.votes.deleteByRound(id)
	return &cp, nil
}

func (f *fakeRoundRepo) ListRevealedByRoom(_ context.Context, roomID string) ([]*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Round
	for _, r := range f.rounds {
		if r.RoomID == roomID && r.RevealedAt != nil {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

type fakeVoteRepo struct {
	mu    sync.Mutex
	votes map[uuid.UUID]*models.Vote
}

func newFakeVoteRepo() *fakeVoteRepo {
	return &fakeVoteRepo{votes: make(map[uuid.UUID]*models.Vote)}
}

func (f *fakeVoteRepo) Upsert(_ context.Context, roundID, participantID uuid.UUID, cardValue string) (*models.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.votes {
		if v.RoundID == roundID && v.ParticipantID == participantID {
			v.CardValue = cardValue
			v.VotedAt = time.Now()
			cp := *v
			return &cp, nil
		}
	}
	vote := &models.Vote{
		ID:            uuid.New(),
		RoundID:       roundID,
		ParticipantID: participantID,
		CardValue:     cardValue,
		VotedAt:       time.Now(),
	}
	f.votes[vote.ID] = vote
	cp := *vote
	return &cp, nil
}

func (f *fakeVoteRepo) ListByRound(_ context.Context, roundID uuid.UUID) ([]*models.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Vote
	for _, v := range f.votes {
		if v.RoundID == roundID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VotedAt.Before(out[j].VotedAt) })
	return out, nil
}

func (f *fakeVoteRepo) ListByRounds(_ context.Context, roundIDs []uuid.UUID) ([]*models.Vote, error) {
	ids := make(map[uuid.UUID]bool, len(roundIDs))
	for _, id := range roundIDs {
		ids[id] = true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Vote
	for _, v := range f.votes {
		if ids[v.RoundID] {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeVoteRepo) deleteByRound(roundID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, v := range f.votes {
		if v.RoundID == roundID {
			delete(f.votes, id)
		}
	}
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.SessionHistory
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*models.SessionHistory)}
}

func (f *fakeSessionRepo) Upsert(_ context.Context, s *models.SessionHistory) (*models.SessionHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sessions {
		if existing.RoomID == s.RoomID && existing.StartedAt.Equal(s.StartedAt) {
			s.ID = existing.ID
			cp := *s
			f.sessions[existing.ID] = &cp
			return &cp, nil
		}
	}
	cp := *s
	f.sessions[s.ID] = &cp
	return &cp, nil
}

func (f *fakeSessionRepo) FindByID(_ context.Context, id uuid.UUID) (*models.SessionHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionRepo) all() []*models.SessionHistory {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SessionHistory
	for _, s := range f.sessions {
		cp := *s
		out = append(out, &cp)
	}
	return out
}

// fakeBus records published room events.
type fakeBus struct {
	mu     sync.Mutex
	events []bus.Event
}

func (f *fakeBus) PublishRoom(_ context.Context, _ string, evt bus.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeBus) SubscribeRoom(context.Context, string) (<-chan bus.Event, error) {
	ch := make(chan bus.Event)
	close(ch)
	return ch, nil
}

func (f *fakeBus) AppendJob(context.Context, uuid.UUID) error { return nil }

func (f *fakeBus) ConsumeJobs(context.Context) (<-chan bus.JobMessage, error) {
	ch := make(chan bus.JobMessage)
	close(ch)
	return ch, nil
}

func (f *fakeBus) Close() error { return nil }

func (f *fakeBus) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}
