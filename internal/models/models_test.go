package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoomID_FormatAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewRoomID()
		require.True(t, ValidRoomID(id), "generated id %q", id)
		seen[id] = true
	}
	// 1000 draws from 36^6 should not collide
	assert.Len(t, seen, 1000)
}

func TestValidRoomID(t *testing.T) {
	assert.True(t, ValidRoomID("abc123"))
	assert.False(t, ValidRoomID("ABC123"))
	assert.False(t, ValidRoomID("abc12"))
	assert.False(t, ValidRoomID("abc1234"))
	assert.False(t, ValidRoomID("abc-12"))
}

func TestDeck_BuiltIns(t *testing.T) {
	fib := RoomConfig{DeckType: DeckFibonacci}
	assert.Contains(t, fib.Deck(), "13")
	assert.Contains(t, fib.Deck(), "☕")

	shirt := RoomConfig{DeckType: DeckTShirt}
	assert.Contains(t, shirt.Deck(), "XL")

	pow := RoomConfig{DeckType: DeckPowersOf2}
	assert.Contains(t, pow.Deck(), "16")
}

func TestDeck_CustomOverrides(t *testing.T) {
	cfg := RoomConfig{DeckType: DeckCustom, CustomDeck: []string{"S", "M", "L"}}
	assert.Equal(t, []string{"S", "M", "L"}, cfg.Deck())
}

func TestDeckContains(t *testing.T) {
	cfg := RoomConfig{DeckType: DeckFibonacci}
	assert.True(t, cfg.DeckContains("8"))
	assert.True(t, cfg.DeckContains("?"))
	assert.False(t, cfg.DeckContains("4"))
	assert.False(t, cfg.DeckContains(""))
}

func TestParticipantCanVote(t *testing.T) {
	assert.True(t, (&Participant{Role: RoleHost}).CanVote())
	assert.True(t, (&Participant{Role: RoleVoter}).CanVote())
	assert.False(t, (&Participant{Role: RoleObserver}).CanVote())
}
