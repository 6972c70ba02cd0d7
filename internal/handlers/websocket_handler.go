package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/teacurran/planning-poker/internal/access"
	"github.com/teacurran/planning-poker/internal/auth"
	"github.com/teacurran/planning-poker/internal/hub"
	"github.com/teacurran/planning-poker/internal/models"
	"github.com/teacurran/planning-poker/internal/protocol"
	"github.com/teacurran/planning-poker/internal/voting"
)

const (
	// defaultJoinTimeout is how long a fresh connection may idle before
	// sending room.join.
	defaultJoinTimeout = 10 * time.Second
	// opTimeout bounds each domain operation; a store stall surfaces as an
	// INTERNAL error instead of wedging the connection.
	opTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin check in production
		return true
	},
}

// WebSocketHandler is the connection gateway: token check, upgrade, join
// handshake, inbound demux, and teardown bookkeeping.
type WebSocketHandler struct {
	verifier *auth.Verifier
	service  *voting.Service
	registry *hub.Registry

	joinTimeout time.Duration
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(verifier *auth.Verifier, service *voting.Service, registry *hub.Registry) *WebSocketHandler {
	return &WebSocketHandler{
		verifier:    verifier,
		service:     service,
		registry:    registry,
		joinTimeout: defaultJoinTimeout,
	}
}

// connState is the per-connection gateway state. Mutated only on the read
// goroutine; the joined flag is atomic because the join timer also reads it.
type connState struct {
	client      *hub.Client
	identity    *auth.Identity
	roomID      string
	hub         *hub.RoomHub
	participant *models.Participant
	joined      atomic.Bool
	joinTimer   *time.Timer
}

// HandleConnection upgrades the connection and runs its read loop. The
// bearer token rides a query parameter because browser WebSocket clients
// cannot set headers.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if !models.ValidRoomID(roomID) {
		http.Error(w, `{"error": "invalid room id"}`, http.StatusNotFound)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, `{"error": "missing token"}`, http.StatusUnauthorized)
		return
	}
	identity, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := hub.NewClient(conn)
	st := &connState{client: client, identity: identity, roomID: roomID}
	st.joinTimer = time.AfterFunc(h.joinTimeout, func() {
		if !st.joined.Load() {
			client.CloseWithReason(protocol.CloseJoinTimeout)
		}
	})

	go client.WritePump()
	client.ReadPump(
		func(_ *hub.Client, data []byte) { h.dispatch(st, data) },
		func(*hub.Client) { h.teardown(st) },
	)
}

// dispatch demuxes one inbound frame. Runs on the connection's read
// goroutine, so per-connection ordering is inherent.
func (h *WebSocketHandler) dispatch(st *connState, data []byte) {
	frame, err := protocol.ParseFrame(data)
	if err != nil {
		// Protocol errors end the connection after the error frame.
		st.client.SendFrame(protocol.ErrorFrame("", protocol.CodeBadRequest, "BAD_REQUEST", "malformed frame"))
		st.client.CloseWithReason(protocol.CloseProtocolError)
		return
	}

	if frame.Type == protocol.TypeHeartbeatPong {
		st.client.RecordPong()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if frame.Type == protocol.TypeRoomJoin {
		h.handleJoin(ctx, st, frame)
		return
	}
	if !st.joined.Load() {
		st.client.SendFrame(protocol.ErrorFrame(frame.RequestID, protocol.CodeForbidden, "NOT_JOINED", "join the room first"))
		return
	}

	switch frame.Type {
	case protocol.TypeRoundStart:
		h.handleStartRound(ctx, st, frame)
	case protocol.TypeVoteCast:
		h.handleCastVote(ctx, st, frame)
	case protocol.TypeRoundReveal:
		h.handleReveal(ctx, st, frame)
	case protocol.TypeRoundReset:
		h.handleReset(ctx, st, frame)
	case protocol.TypeRoomConfigUpdate:
		h.handleConfigUpdate(ctx, st, frame)
	default:
		st.client.SendFrame(protocol.ErrorFrame(frame.RequestID, protocol.CodeBadRequest, "UNKNOWN_TYPE", "unknown message type"))
		st.client.CloseWithReason(protocol.CloseProtocolError)
	}
}

func (h *WebSocketHandler) handleJoin(ctx context.Context, st *connState, frame *protocol.Frame) {
	if st.joined.Load() {
		st.client.SendFrame(protocol.ErrorFrame(frame.RequestID, protocol.CodeConflict, "ALREADY_JOINED", "connection already joined"))
		return
	}

	var payload protocol.JoinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		st.client.SendFrame(protocol.ErrorFrame(frame.RequestID, protocol.CodeBadRequest, "BAD_REQUEST", "invalid join payload"))
		return
	}
	if payload.DisplayName == "" || len(payload.DisplayName) > protocol.MaxDisplayNameLen {
		st.client.SendFrame(protocol.ErrorFrame(frame.RequestID, protocol.CodeBadRequest, "BAD_REQUEST", "displayName is required and limited to 100 characters"))
		return
	}

	roomHub, err := h.registry.GetOrCreate(st.roomID)
	if err != nil {
		slog.Error("hub create failed", "roomId", st.roomID, "error", err)
		st.client.SendFrame(protocol.ErrorFrame(frame.RequestID, protocol.CodeInternal, "INTERNAL", "room unavailable"))
		return
	}

	var (
		participant *models.Participant
		snapshot    *protocol.RoomSnapshotPayload
		joinErr     error
	)
	err = roomHub.Do(ctx, func() {
		participant, snapshot, joinErr = h.service.Join(ctx, st.identity, st.roomID, payload.DisplayName, payload.AsObserver)
	})
	if err == nil {
		err = joinErr
	}
	if err != nil {
		st.client.SendFrame(errorFrameFor(frame.RequestID, err))
		return
	}

	st.client.RoomID = st.roomID
	st.client.ParticipantID = participant.ID
	st.client.DisplayName = participant.DisplayName
	st.client.Role = participant.Role
	st.participant = participant
	st.hub = roomHub
	st.joined.Store(true)
	st.joinTimer.Stop()

	if err := roomHub.Attach(st.client); err != nil {
		st.client.SendFrame(protocol.ErrorFrame(frame.RequestID, protocol.CodeInternal, "INTERNAL", "room unavailable"))
		return
	}
	st.client.SendFrame(protocol.NewFrame(protocol.TypeRoomSnapshot, frame.RequestID, snapshot))
}

func (h *WebSocketHandler) handleStartRound(ctx context.Context, st *connState, frame *protocol.Frame) {
	var payload protocol.StartRoundPayload
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			st.client.SendFrame(protocol.ErrorFrame(frame.RequestID, protocol.CodeBadRequest, "BAD_REQUEST", "invalid payload"))
			return
		}
	}
	if payload.StoryTitle != nil && len(*payload.StoryTitle) > protocol.MaxStoryTitleLen {
		st.client.SendFrame(protocol.ErrorFrame(frame.RequestID, protocol.CodeBadRequest, "BAD_REQUEST", "storyTitle limited to 500 characters"))
		return
	}

	var (
		round *models.Round
		opErr error
	)
	err := st.hub.Do(ctx, func() {
		round, opErr = h.service.StartRound(ctx, st.roomID, st.participant, payload.StoryTitle)
	})
	if err == nil {
		err = opErr
	}
	if err != nil {
		st.client.SendFrame(errorFrameFor(frame.RequestID, err))
		return
	}
	st.client.SendFrame(protocol.NewFrame(protocol.TypeRoundStarted, frame.RequestID, protocol.RoundStartedPayload{
		RoundID:     round.ID,
		RoundNumber: round.RoundNumber,
		StoryTitle:  round.StoryTitle,
		StartedAt:   round.StartedAt,
	}))
}

func (h *WebSocketHandler) handleCastVote(ctx context.Context, st *connState, frame *protocol.Frame) {
	var payload protocol.CastVotePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		st.client.SendFrame(protocol.ErrorFrame(frame.RequestID, protocol.CodeBadRequest, "BAD_REQUEST", "invalid payload"))
		return
	}
	if payload.CardValue == "" || len(payload.CardValue) > models.MaxCardValueLen {
		st.client.SendFrame(protocol.ErrorFrame(frame.RequestID, protocol.CodeBadRequest, "BAD_REQUEST", "cardValue is required and limited to 10 characters"))
		return
	}

	var (
		vote  *models.Vote
		opErr error
	)
	err := st.hub.Do(ctx, func() {
		vote, opErr = h.service.CastVote(ctx, st.roomID, st.participant, payload.CardValue)
	})
	if err == nil {
		err = opErr
	}
	if err != nil {
		st.client.SendFrame(errorFrameFor(frame.RequestID, err))
		return
	}
	st.client.SendFrame(protocol.NewFrame(protocol.TypeVoteRecorded, frame.RequestID, protocol.VoteRecordedPayload{
		ParticipantID: st.participant.ID,
		VotedAt:       vote.VotedAt,
	}))
}

func (h *WebSocketHandler) handleReveal(ctx context.Context, st *connState, frame *protocol.Frame) {
	var (
		round *models.Round
		votes []*models.Vote
		stats protocol.RoundStats
		opErr error
	)
	err := st.hub.Do(ctx, func() {
		round, votes, stats, opErr = h.service.Reveal(ctx, st.roomID, st.participant)
	})
	if err == nil {
		err = opErr
	}
	if err != nil {
		st.client.SendFrame(errorFrameFor(frame.RequestID, err))
		return
	}

	revealed := make([]protocol.RevealedVote, len(votes))
	for i, v := range votes {
		revealed[i] = protocol.RevealedVote{ParticipantID: v.ParticipantID, CardValue: v.CardValue}
	}
	st.client.SendFrame(protocol.NewFrame(protocol.TypeRoundRevealed, frame.RequestID, protocol.RoundRevealedPayload{
		RoundID:    round.ID,
		Votes:      revealed,
		Stats:      stats,
		RevealedAt: *round.RevealedAt,
	}))
}

func (h *WebSocketHandler) handleReset(ctx context.Context, st *connState, frame *protocol.Frame) {
	var (
		round *models.Round
		opErr error
	)
	err := st.hub.Do(ctx, func() {
		round, opErr = h.service.Reset(ctx, st.roomID, st.participant)
	})
	if err == nil {
		err = opErr
	}
	if err != nil {
		st.client.SendFrame(errorFrameFor(frame.RequestID, err))
		return
	}
	st.client.SendFrame(protocol.NewFrame(protocol.TypeRoundWasReset, frame.RequestID, protocol.RoundResetPayload{RoundID: round.ID}))
}

func (h *WebSocketHandler) handleConfigUpdate(ctx context.Context, st *connState, frame *protocol.Frame) {
	var payload protocol.ConfigUpdatePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		st.client.SendFrame(protocol.ErrorFrame(frame.RequestID, protocol.CodeBadRequest, "BAD_REQUEST", "invalid payload"))
		return
	}
	var cfg models.RoomConfig
	if err := json.Unmarshal(payload.Config, &cfg); err != nil {
		st.client.SendFrame(protocol.ErrorFrame(frame.RequestID, protocol.CodeBadRequest, "BAD_REQUEST", "invalid config"))
		return
	}

	var opErr error
	err := st.hub.Do(ctx, func() {
		opErr = h.service.UpdateConfig(ctx, st.roomID, st.participant, cfg)
	})
	if err == nil {
		err = opErr
	}
	if err != nil {
		st.client.SendFrame(errorFrameFor(frame.RequestID, err))
		return
	}
	st.client.SendFrame(protocol.NewFrame(protocol.TypeConfigUpdated, frame.RequestID, protocol.ConfigUpdatePayload{Config: payload.Config}))
}

// teardown runs once when the read loop exits, clean close or not.
func (h *WebSocketHandler) teardown(st *connState) {
	st.joinTimer.Stop()
	if !st.joined.Load() {
		return
	}

	st.hub.Detach(st.client)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := h.service.Leave(ctx, st.roomID, st.participant.ID); err != nil {
		slog.Warn("leave bookkeeping failed", "roomId", st.roomID, "participantId", st.participant.ID, "error", err)
	}
}

// errorFrameFor maps domain errors onto the wire error families.
func errorFrameFor(requestID string, err error) protocol.Frame {
	switch {
	case errors.Is(err, voting.ErrRoomNotFound):
		return protocol.ErrorFrame(requestID, protocol.CodeNotFound, "ROOM_NOT_FOUND", "room not found")
	case errors.Is(err, voting.ErrNoActiveRound):
		return protocol.ErrorFrame(requestID, protocol.CodeNotFound, "NO_ACTIVE_ROUND", "no active round")
	case errors.Is(err, voting.ErrNoRounds):
		return protocol.ErrorFrame(requestID, protocol.CodeNotFound, "NO_ROUNDS", "room has no rounds")
	case errors.Is(err, voting.ErrNotHost):
		return protocol.ErrorFrame(requestID, protocol.CodeForbidden, "HOST_REQUIRED", "operation requires the host role")
	case errors.Is(err, voting.ErrObserverCannotVote):
		return protocol.ErrorFrame(requestID, protocol.CodeForbidden, "OBSERVER_CANNOT_VOTE", "observers cannot vote")
	case errors.Is(err, voting.ErrObserversDisabled):
		return protocol.ErrorFrame(requestID, protocol.CodeForbidden, "OBSERVERS_DISABLED", "room does not allow observers")
	case errors.Is(err, access.ErrJoinDenied):
		return protocol.ErrorFrame(requestID, protocol.CodeForbidden, "JOIN_DENIED", "you may not join this room")
	case errors.Is(err, voting.ErrActiveRoundExists):
		return protocol.ErrorFrame(requestID, protocol.CodeConflict, "ROUND_ACTIVE", "a round is already active")
	case errors.Is(err, voting.ErrRoundAlreadyRevealed):
		return protocol.ErrorFrame(requestID, protocol.CodeConflict, "ALREADY_REVEALED", "round already revealed")
	case errors.Is(err, voting.ErrCardNotInDeck):
		return protocol.ErrorFrame(requestID, protocol.CodeConflict, "CARD_NOT_IN_DECK", "card value not in the room's deck")
	case errors.Is(err, voting.ErrInvalidConfig):
		return protocol.ErrorFrame(requestID, protocol.CodeBadRequest, "INVALID_CONFIG", err.Error())
	default:
		slog.Error("operation failed", "error", err)
		return protocol.ErrorFrame(requestID, protocol.CodeInternal, "INTERNAL", "internal error")
	}
}
