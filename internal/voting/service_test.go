package voting

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teacurran/planning-poker/internal/access"
	"github.com/teacurran/planning-poker/internal/auth"
	"github.com/teacurran/planning-poker/internal/models"
	"github.com/teacurran/planning-poker/internal/protocol"
)

type serviceFixture struct {
	service  *Service
	rooms    *fakeRoomRepo
	sessions *fakeSessionRepo
	bus      *fakeBus
	room     *models.Room
	owner    uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	rooms := newFakeRoomRepo()
	participants := newFakeParticipantRepo()
	votes := newFakeVoteRepo()
	rounds := newFakeRoundRepo(votes)
	sessions := newFakeSessionRepo()
	fb := &fakeBus{}

	owner := uuid.New()
	room := &models.Room{
		ID:      "abc123",
		Title:   "Sprint 42",
		Privacy: models.PrivacyPublic,
		OwnerUserID: &owner,
		Config: models.RoomConfig{
			DeckType:       models.DeckFibonacci,
			RevealBehavior: models.RevealManual,
			AllowObservers: true,
			AllowAnonymous: true,
		},
	}
	rooms.rooms[room.ID] = room

	svc := NewService(rooms, participants, rounds, votes, sessions, access.NewResolver(nil), fb)
	return &serviceFixture{service: svc, rooms: rooms, sessions: sessions, bus: fb, room: room, owner: owner}
}

func (fx *serviceFixture) join(t *testing.T, userID uuid.UUID, name string, asObserver bool) *models.Participant {
	t.Helper()
	identity := &auth.Identity{UserID: &userID, Name: name, Tier: models.TierFree}
	p, snap, err := fx.service.Join(context.Background(), identity, fx.room.ID, name, asObserver)
	require.NoError(t, err)
	require.NotNil(t, snap)
	return p
}

func (fx *serviceFixture) joinHost(t *testing.T) *models.Participant {
	t.Helper()
	return fx.join(t, fx.owner, "Host", false)
}

func TestJoin_OwnerBecomesHost(t *testing.T) {
	fx := newServiceFixture(t)

	host := fx.joinHost(t)
	assert.Equal(t, models.RoleHost, host.Role)

	voter := fx.join(t, uuid.New(), "Dana", false)
	assert.Equal(t, models.RoleVoter, voter.Role)
}

func TestJoin_ReconnectReusesParticipant(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()

	first := fx.join(t, userID, "Dana", false)
	second := fx.join(t, userID, "Dana R", false)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Dana R", second.DisplayName)
}

func TestJoin_UnknownRoom(t *testing.T) {
	fx := newServiceFixture(t)
	userID := uuid.New()
	identity := &auth.Identity{UserID: &userID, Tier: models.TierFree}

	_, _, err := fx.service.Join(context.Background(), identity, "zzzzzz", "Dana", false)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestJoin_DeletedRoomLooksAbsent(t *testing.T) {
	fx := newServiceFixture(t)
	now := time.Now()
	fx.room.SoftDeletedAt = &now

	userID := uuid.New()
	identity := &auth.Identity{UserID: &userID, Tier: models.TierFree}
	_, _, err := fx.service.Join(context.Background(), identity, fx.room.ID, "Dana", false)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestJoin_AnonymousBlockedWhenDisallowed(t *testing.T) {
	fx := newServiceFixture(t)
	fx.room.Config.AllowAnonymous = false

	anonID := uuid.New()
	identity := &auth.Identity{AnonymousID: &anonID, Tier: models.TierFree}
	_, _, err := fx.service.Join(context.Background(), identity, fx.room.ID, "Ghost", false)
	assert.ErrorIs(t, err, access.ErrJoinDenied)
}

func TestJoin_ObserverBlockedWhenDisallowed(t *testing.T) {
	fx := newServiceFixture(t)
	fx.room.Config.AllowObservers = false

	userID := uuid.New()
	identity := &auth.Identity{UserID: &userID, Tier: models.TierFree}
	_, _, err := fx.service.Join(context.Background(), identity, fx.room.ID, "Watcher", true)
	assert.ErrorIs(t, err, ErrObserversDisabled)
}

func TestJoin_SnapshotCarriesActiveRound(t *testing.T) {
	fx := newServiceFixture(t)
	host := fx.joinHost(t)

	round, err := fx.service.StartRound(context.Background(), fx.room.ID, host, nil)
	require.NoError(t, err)
	_, err = fx.service.CastVote(context.Background(), fx.room.ID, host, "5")
	require.NoError(t, err)

	userID := uuid.New()
	identity := &auth.Identity{UserID: &userID, Tier: models.TierFree}
	_, snap, err := fx.service.Join(context.Background(), identity, fx.room.ID, "Late", false)
	require.NoError(t, err)

	require.NotNil(t, snap.ActiveRound)
	assert.Equal(t, round.ID, snap.ActiveRound.RoundID)
	// the snapshot names who voted but never the card value
	assert.Equal(t, []uuid.UUID{host.ID}, snap.ActiveRound.Voted)
}

func TestStartRound_NonHostForbidden(t *testing.T) {
	fx := newServiceFixture(t)
	fx.joinHost(t)
	voter := fx.join(t, uuid.New(), "Dana", false)

	_, err := fx.service.StartRound(context.Background(), fx.room.ID, voter, nil)
	assert.ErrorIs(t, err, ErrNotHost)
}

func TestStartRound_SecondActiveRoundConflicts(t *testing.T) {
	fx := newServiceFixture(t)
	host := fx.joinHost(t)

	_, err := fx.service.StartRound(context.Background(), fx.room.ID, host, nil)
	require.NoError(t, err)
	_, err = fx.service.StartRound(context.Background(), fx.room.ID, host, nil)
	assert.ErrorIs(t, err, ErrActiveRoundExists)
}

func TestStartRound_NumbersAreSequential(t *testing.T) {
	fx := newServiceFixture(t)
	host := fx.joinHost(t)

	for want := 1; want <= 3; want++ {
		round, err := fx.service.StartRound(context.Background(), fx.room.ID, host, nil)
		require.NoError(t, err)
		assert.Equal(t, want, round.RoundNumber)
		_, _, _, err = fx.service.Reveal(context.Background(), fx.room.ID, host)
		require.NoError(t, err)
	}
}

func TestCastVote_ObserverForbidden(t *testing.T) {
	fx := newServiceFixture(t)
	host := fx.joinHost(t)
	_, err := fx.service.StartRound(context.Background(), fx.room.ID, host, nil)
	require.NoError(t, err)

	observer := fx.join(t, uuid.New(), "Watcher", true)
	_, err = fx.service.CastVote(context.Background(), fx.room.ID, observer, "5")
	assert.ErrorIs(t, err, ErrObserverCannotVote)
}

func TestCastVote_OutsideDeckConflicts(t *testing.T) {
	fx := newServiceFixture(t)
	host := fx.joinHost(t)
	_, err := fx.service.StartRound(context.Background(), fx.room.ID, host, nil)
	require.NoError(t, err)

	_, err = fx.service.CastVote(context.Background(), fx.room.ID, host, "4")
	assert.ErrorIs(t, err, ErrCardNotInDeck)
}

func TestCastVote_NoActiveRound(t *testing.T) {
	fx := newServiceFixture(t)
	host := fx.joinHost(t)

	_, err := fx.service.CastVote(context.Background(), fx.room.ID, host, "5")
	assert.ErrorIs(t, err, ErrNoActiveRound)
}

func TestCastVote_RevoteReplaces(t *testing.T) {
	fx := newServiceFixture(t)
	host := fx.joinHost(t)
	_, err := fx.service.StartRound(context.Background(), fx.room.ID, host, nil)
	require.NoError(t, err)

	_, err = fx.service.CastVote(context.Background(), fx.room.ID, host, "5")
	require.NoError(t, err)
	_, err = fx.service.CastVote(context.Background(), fx.room.ID, host, "8")
	require.NoError(t, err)

	_, votes, stats, err := fx.service.Reveal(context.Background(), fx.room.ID, host)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, "8", votes[0].CardValue)
	require.NotNil(t, stats.Avg)
	assert.Equal(t, 8.0, *stats.Avg)
}

func TestReveal_TwiceConflicts(t *testing.T) {
	fx := newServiceFixture(t)
	host := fx.joinHost(t)
	_, err := fx.service.StartRound(context.Background(), fx.room.ID, host, nil)
	require.NoError(t, err)

	_, _, _, err = fx.service.Reveal(context.Background(), fx.room.ID, host)
	require.NoError(t, err)
	_, _, _, err = fx.service.Reveal(context.Background(), fx.room.ID, host)
	assert.ErrorIs(t, err, ErrRoundAlreadyRevealed)
}

func TestReveal_NoRoundsYet(t *testing.T) {
	fx := newServiceFixture(t)
	host := fx.joinHost(t)

	_, _, _, err := fx.service.Reveal(context.Background(), fx.room.ID, host)
	assert.ErrorIs(t, err, ErrNoActiveRound)
}

func TestReveal_NoVotesLeavesConsensusUnset(t *testing.T) {
	fx := newServiceFixture(t)
	host := fx.joinHost(t)

	_, err := fx.service.StartRound(context.Background(), fx.room.ID, host, nil)
	require.NoError(t, err)

	round, votes, stats, err := fx.service.Reveal(context.Background(), fx.room.ID, host)
	require.NoError(t, err)
	assert.Empty(t, votes)
	assert.Nil(t, stats.Avg)
	assert.Nil(t, stats.Median)
	assert.Nil(t, round.ConsensusReached)
}

func TestReveal_PersistsStatsAndRollsUpSession(t *testing.T) {
	fx := newServiceFixture(t)
	host := fx.joinHost(t)
	voter := fx.join(t, uuid.New(), "Dana", false)

	_, err := fx.service.StartRound(context.Background(), fx.room.ID, host, nil)
	require.NoError(t, err)
	_, err = fx.service.CastVote(context.Background(), fx.room.ID, host, "5")
	require.NoError(t, err)
	_, err = fx.service.CastVote(context.Background(), fx.room.ID, voter, "5")
	require.NoError(t, err)

	round, votes, stats, err := fx.service.Reveal(context.Background(), fx.room.ID, host)
	require.NoError(t, err)
	assert.True(t, round.Revealed())
	assert.Len(t, votes, 2)
	assert.True(t, stats.Consensus)

	sessions := fx.sessions.all()
	require.Len(t, sessions, 1)
	assert.Equal(t, fx.room.ID, sessions[0].RoomID)
	assert.Equal(t, 1, sessions[0].TotalRounds)
	// one story per round, titled or not
	assert.Equal(t, 1, sessions[0].TotalStories)
	assert.Equal(t, 2, sessions[0].SummaryStats.TotalVotes)
	assert.Equal(t, 1.0, sessions[0].SummaryStats.ConsensusRate)
}

func TestReveal_RepeatedRevealsUpsertOneSession(t *testing.T) {
	fx := newServiceFixture(t)
	host := fx.joinHost(t)

	for i := 0; i < 3; i++ {
		_, err := fx.service.StartRound(context.Background(), fx.room.ID, host, nil)
		require.NoError(t, err)
		_, err = fx.service.CastVote(context.Background(), fx.room.ID, host, "3")
		require.NoError(t, err)
		_, _, _, err = fx.service.Reveal(context.Background(), fx.room.ID, host)
		require.NoError(t, err)
	}

	sessions := fx.sessions.all()
	require.Len(t, sessions, 1)
	assert.Equal(t, 3, sessions[0].TotalRounds)
}

func TestReset_ClearsVotesAndReactivates(t *testing.T) {
	fx := newServiceFixture(t)
	host := fx.joinHost(t)

	_, err := fx.service.StartRound(context.Background(), fx.room.ID, host, nil)
	require.NoError(t, err)
	_, err = fx.service.CastVote(context.Background(), fx.room.ID, host, "13")
	require.NoError(t, err)
	_, _, _, err = fx.service.Reveal(context.Background(), fx.room.ID, host)
	require.NoError(t, err)

	round, err := fx.service.Reset(context.Background(), fx.room.ID, host)
	require.NoError(t, err)
	assert.False(t, round.Revealed())

	// a fresh vote then reveal must look like the round ran clean
	_, err = fx.service.CastVote(context.Background(), fx.room.ID, host, "5")
	require.NoError(t, err)
	_, votes, stats, err := fx.service.Reveal(context.Background(), fx.room.ID, host)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, "5", votes[0].CardValue)
	require.NotNil(t, stats.Avg)
	assert.Equal(t, 5.0, *stats.Avg)
}

func TestReset_NoRounds(t *testing.T) {
	fx := newServiceFixture(t)
	host := fx.joinHost(t)

	_, err := fx.service.Reset(context.Background(), fx.room.ID, host)
	assert.ErrorIs(t, err, ErrNoRounds)
}

func TestUpdateConfig_HostOnlyAndBroadcast(t *testing.T) {
	fx := newServiceFixture(t)
	host := fx.joinHost(t)
	voter := fx.join(t, uuid.New(), "Dana", false)

	cfg := fx.room.Config
	cfg.DeckType = models.DeckTShirt

	err := fx.service.UpdateConfig(context.Background(), fx.room.ID, voter, cfg)
	assert.ErrorIs(t, err, ErrNotHost)

	require.NoError(t, fx.service.UpdateConfig(context.Background(), fx.room.ID, host, cfg))
	assert.Contains(t, fx.bus.eventTypes(), protocol.TypeConfigUpdated)

	// votes validate against the new deck from now on
	_, err = fx.service.StartRound(context.Background(), fx.room.ID, host, nil)
	require.NoError(t, err)
	_, err = fx.service.CastVote(context.Background(), fx.room.ID, host, "5")
	assert.ErrorIs(t, err, ErrCardNotInDeck)
	_, err = fx.service.CastVote(context.Background(), fx.room.ID, host, "M")
	assert.NoError(t, err)
}

func TestUpdateConfig_Validation(t *testing.T) {
	err := ValidateConfig(models.RoomConfig{DeckType: "tarot", RevealBehavior: models.RevealManual})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = ValidateConfig(models.RoomConfig{DeckType: models.DeckCustom, RevealBehavior: models.RevealManual})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = ValidateConfig(models.RoomConfig{
		DeckType:       models.DeckCustom,
		CustomDeck:     []string{"waytoolongcard"},
		RevealBehavior: models.RevealManual,
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = ValidateConfig(models.RoomConfig{
		DeckType:       models.DeckFibonacci,
		TimerEnabled:   true,
		TimerSeconds:   5,
		RevealBehavior: models.RevealOnTimer,
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = ValidateConfig(models.RoomConfig{
		DeckType:       models.DeckCustom,
		CustomDeck:     []string{"1", "2", "3"},
		RevealBehavior: models.RevealAutomatic,
	})
	assert.NoError(t, err)
}

func TestLeave_PublishesParticipantLeft(t *testing.T) {
	fx := newServiceFixture(t)
	p := fx.join(t, uuid.New(), "Dana", false)

	require.NoError(t, fx.service.Leave(context.Background(), fx.room.ID, p.ID))
	types := fx.bus.eventTypes()
	assert.Contains(t, types, protocol.TypeParticipantLeft)
}
