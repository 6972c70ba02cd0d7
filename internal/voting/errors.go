package voting

import "errors"

var (
	// ErrRoomNotFound is returned when the room does not exist or is deleted.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotHost is returned when a non-host attempts a host-only operation.
	ErrNotHost = errors.New("operation requires the host role")
	// ErrObserverCannotVote is returned when an observer casts a card.
	ErrObserverCannotVote = errors.New("observers cannot vote")
	// ErrObserversDisabled is returned when joining as observer in a room
	// whose config disallows observers.
	ErrObserversDisabled = errors.New("room does not allow observers")
	// ErrNoActiveRound is returned when an operation needs an active round
	// and none exists.
	ErrNoActiveRound = errors.New("no active round")
	// ErrActiveRoundExists is returned when starting a round while one is
	// already active.
	ErrActiveRoundExists = errors.New("a round is already active")
	// ErrRoundAlreadyRevealed is returned when revealing a round twice.
	ErrRoundAlreadyRevealed = errors.New("round already revealed")
	// ErrCardNotInDeck is returned when the cast card is not in the room's
	// configured deck.
	ErrCardNotInDeck = errors.New("card value not in the room's deck")
	// ErrNoRounds is returned when resetting a room that never started a round.
	ErrNoRounds = errors.New("room has no rounds")
	// ErrInvalidConfig is returned when a config replacement fails validation.
	ErrInvalidConfig = errors.New("invalid room configuration")
)
