package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teacurran/planning-poker/internal/access"
	"github.com/teacurran/planning-poker/internal/auth"
	"github.com/teacurran/planning-poker/internal/protocol"
	"github.com/teacurran/planning-poker/internal/voting"
)

func gatewayFixture(t *testing.T) (*WebSocketHandler, *httptest.Server, *auth.Verifier) {
	t.Helper()
	verifier := auth.NewVerifier("secret")
	h := NewWebSocketHandler(verifier, nil, nil)
	r := chi.NewRouter()
	r.Get("/ws/room/{roomId}", h.HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return h, srv, verifier
}

func gatewayServer(t *testing.T) *httptest.Server {
	t.Helper()
	_, srv, _ := gatewayFixture(t)
	return srv
}

func dialGateway(t *testing.T, srv *httptest.Server, verifier *auth.Verifier) *websocket.Conn {
	t.Helper()
	userID := uuid.New()
	token, err := verifier.Mint(auth.Identity{UserID: &userID}, time.Minute)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/room/abc123?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntilClose drains frames until the server closes the connection and
// returns the close error.
func readUntilClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		return closeErr
	}
}

func TestHandleConnection_RejectsBadRoomID(t *testing.T) {
	srv := gatewayServer(t)

	resp, err := http.Get(srv.URL + "/ws/room/NOPE?token=x")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleConnection_RejectsMissingToken(t *testing.T) {
	srv := gatewayServer(t)

	resp, err := http.Get(srv.URL + "/ws/room/abc123")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleConnection_RejectsBadToken(t *testing.T) {
	srv := gatewayServer(t)

	resp, err := http.Get(srv.URL + "/ws/room/abc123?token=garbage")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleConnection_ClosesAfterJoinTimeout(t *testing.T) {
	h, srv, verifier := gatewayFixture(t)
	h.joinTimeout = 100 * time.Millisecond

	conn := dialGateway(t, srv, verifier)

	closeErr := readUntilClose(t, conn)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, protocol.CloseJoinTimeout, closeErr.Text)
}

func TestHandleConnection_MalformedFrameClosesConnection(t *testing.T) {
	_, srv, verifier := gatewayFixture(t)

	conn := dialGateway(t, srv, verifier)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	closeErr := readUntilClose(t, conn)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, protocol.CloseProtocolError, closeErr.Text)
}

func decodeError(t *testing.T, frame protocol.Frame) protocol.ErrorPayload {
	t.Helper()
	var payload protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	return payload
}

func TestErrorFrameFor_Mapping(t *testing.T) {
	tests := []struct {
		err    error
		code   int
		symbol string
	}{
		{voting.ErrRoomNotFound, protocol.CodeNotFound, "ROOM_NOT_FOUND"},
		{voting.ErrNoActiveRound, protocol.CodeNotFound, "NO_ACTIVE_ROUND"},
		{voting.ErrNoRounds, protocol.CodeNotFound, "NO_ROUNDS"},
		{voting.ErrNotHost, protocol.CodeForbidden, "HOST_REQUIRED"},
		{voting.ErrObserverCannotVote, protocol.CodeForbidden, "OBSERVER_CANNOT_VOTE"},
		{voting.ErrObserversDisabled, protocol.CodeForbidden, "OBSERVERS_DISABLED"},
		{access.ErrJoinDenied, protocol.CodeForbidden, "JOIN_DENIED"},
		{voting.ErrActiveRoundExists, protocol.CodeConflict, "ROUND_ACTIVE"},
		{voting.ErrRoundAlreadyRevealed, protocol.CodeConflict, "ALREADY_REVEALED"},
		{voting.ErrCardNotInDeck, protocol.CodeConflict, "CARD_NOT_IN_DECK"},
		{voting.ErrInvalidConfig, protocol.CodeBadRequest, "INVALID_CONFIG"},
		{errors.New("pq: connection refused"), protocol.CodeInternal, "INTERNAL"},
	}

	for _, tt := range tests {
		frame := errorFrameFor("r-1", tt.err)
		assert.Equal(t, protocol.TypeError, frame.Type)
		assert.Equal(t, "r-1", frame.RequestID)

		payload := decodeError(t, frame)
		assert.Equal(t, tt.code, payload.Code, "for %v", tt.err)
		assert.Equal(t, tt.symbol, payload.Error, "for %v", tt.err)
	}
}

func TestErrorFrameFor_WrappedErrors(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), voting.ErrCardNotInDeck)
	payload := decodeError(t, errorFrameFor("", wrapped))
	assert.Equal(t, protocol.CodeConflict, payload.Code)
}
