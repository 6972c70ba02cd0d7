// Package protocol defines the JSON frame format exchanged over the
// persistent connection and the event payloads fanned out through the bus.
// Every frame is a single object {type, requestId, payload}; requestId is
// echoed on the first directly-correlated response.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Inbound message types (client -> server).
const (
	TypeRoomJoin         = "room.join.v1"
	TypeRoundStart       = "round.start.v1"
	TypeVoteCast         = "vote.cast.v1"
	TypeRoundReveal      = "round.reveal.v1"
	TypeRoundReset       = "round.reset.v1"
	TypeHeartbeatPong    = "heartbeat.pong.v1"
	TypeRoomConfigUpdate = "room.config.update.v1"
)

// Outbound message types (server -> client).
const (
	TypeParticipantJoined = "room.participant_joined.v1"
	TypeParticipantLeft   = "room.participant_left.v1"
	TypeConfigUpdated     = "room.config_updated.v1"
	TypeRoundStarted      = "round.started.v1"
	TypeVoteRecorded      = "vote.recorded.v1"
	TypeRoundRevealed     = "round.revealed.v1"
	TypeRoundWasReset     = "round.reset.v1"
	TypeHeartbeatPing     = "heartbeat.ping.v1"
	TypeError             = "error.v1"
	TypeRoomSnapshot      = "room.snapshot.v1"
)

// Error codes carried in error.v1 payloads.
const (
	CodeBadRequest      = 4000
	CodeUnauthenticated = 4001
	CodeForbidden       = 4003
	CodeNotFound        = 4004
	CodeConflict        = 4009
	CodeRateLimited     = 4029
	CodeInternal        = 5000
)

// Close reasons used when the server terminates a connection.
const (
	CloseJoinTimeout      = "JOIN_TIMEOUT"
	CloseHeartbeatTimeout = "HEARTBEAT_TIMEOUT"
	CloseSlowConsumer     = "SLOW_CONSUMER"
	CloseUnauthenticated  = "UNAUTHENTICATED"
	CloseProtocolError    = "BAD_REQUEST"
)

// Payload limits.
const (
	MaxDisplayNameLen = 100
	MaxStoryTitleLen  = 500
)

// ErrMalformedFrame is returned by ParseFrame for frames that cannot carry
// a valid message at all (bad JSON, empty type).
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is the wire envelope for every message in either direction.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ParseFrame decodes a raw inbound frame.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return &f, nil
}

// NewFrame builds an outbound frame, marshaling the payload. Marshal errors
// are programming errors (payload types are ours) and panic.
func NewFrame(msgType, requestID string, payload any) Frame {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("protocol: marshal %s payload: %v", msgType, err))
		}
		raw = data
	}
	return Frame{Type: msgType, RequestID: requestID, Payload: raw}
}

// Encode serializes the frame for the wire.
func (f Frame) Encode() []byte {
	data, err := json.Marshal(f)
	if err != nil {
		panic(fmt.Sprintf("protocol: marshal frame: %v", err))
	}
	return data
}

// JoinPayload is the payload of room.join.v1.
type JoinPayload struct {
	DisplayName string `json:"displayName"`
	AsObserver  bool   `json:"asObserver,omitempty"`
}

// StartRoundPayload is the payload of round.start.v1.
type StartRoundPayload struct {
	StoryTitle *string `json:"storyTitle"`
}

// CastVotePayload is the payload of vote.cast.v1.
type CastVotePayload struct {
	CardValue string `json:"cardValue"`
}

// ConfigUpdatePayload is the payload of room.config.update.v1: the full
// replacement configuration.
type ConfigUpdatePayload struct {
	Config json.RawMessage `json:"config"`
}

// ParticipantInfo describes a participant in fan-out events and snapshots.
type ParticipantInfo struct {
	ParticipantID uuid.UUID `json:"participantId"`
	DisplayName   string    `json:"displayName"`
	Role          string    `json:"role"`
}

// ParticipantJoinedPayload is the payload of room.participant_joined.v1.
type ParticipantJoinedPayload struct {
	Participant ParticipantInfo `json:"participant"`
}

// ParticipantLeftPayload is the payload of room.participant_left.v1.
type ParticipantLeftPayload struct {
	ParticipantID uuid.UUID `json:"participantId"`
}

// RoundStartedPayload is the payload of round.started.v1.
type RoundStartedPayload struct {
	RoundID     uuid.UUID `json:"roundId"`
	RoundNumber int       `json:"roundNumber"`
	StoryTitle  *string   `json:"storyTitle"`
	StartedAt   time.Time `json:"startedAt"`
}

// VoteRecordedPayload is the payload of vote.recorded.v1. The card value is
// deliberately omitted pre-reveal.
type VoteRecordedPayload struct {
	ParticipantID uuid.UUID `json:"participantId"`
	VotedAt       time.Time `json:"votedAt"`
}

// RevealedVote is one entry of the round.revealed.v1 vote list.
type RevealedVote struct {
	ParticipantID uuid.UUID `json:"participantId"`
	CardValue     string    `json:"cardValue"`
}

// RoundStats carries the computed statistics of a revealed round.
type RoundStats struct {
	Avg       *float64 `json:"avg"`
	Median    *string  `json:"median"`
	Consensus bool     `json:"consensus"`
}

// RoundRevealedPayload is the payload of round.revealed.v1.
type RoundRevealedPayload struct {
	RoundID    uuid.UUID      `json:"roundId"`
	Votes      []RevealedVote `json:"votes"`
	Stats      RoundStats     `json:"stats"`
	RevealedAt time.Time      `json:"revealedAt"`
}

// RoundResetPayload is the payload of the outbound round.reset.v1.
type RoundResetPayload struct {
	RoundID uuid.UUID `json:"roundId"`
}

// SnapshotRound describes the room's active round inside a snapshot. Voted
// carries only who has cast, never the card values.
type SnapshotRound struct {
	RoundID     uuid.UUID   `json:"roundId"`
	RoundNumber int         `json:"roundNumber"`
	StoryTitle  *string     `json:"storyTitle"`
	StartedAt   time.Time   `json:"startedAt"`
	Voted       []uuid.UUID `json:"voted"`
}

// RoomSnapshotPayload is the payload of room.snapshot.v1, sent once to a
// client directly after a successful join.
type RoomSnapshotPayload struct {
	RoomID       string            `json:"roomId"`
	Title        string            `json:"title"`
	Config       json.RawMessage   `json:"config"`
	You          ParticipantInfo   `json:"you"`
	Participants []ParticipantInfo `json:"participants"`
	ActiveRound  *SnapshotRound    `json:"activeRound"`
}

// ErrorPayload is the payload of error.v1.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ErrorFrame builds an error.v1 frame correlated to requestID.
func ErrorFrame(requestID string, code int, symbol, message string) Frame {
	return NewFrame(TypeError, requestID, ErrorPayload{Code: code, Error: symbol, Message: message})
}
