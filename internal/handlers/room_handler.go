package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teacurran/planning-poker/internal/middleware"
	"github.com/teacurran/planning-poker/internal/models"
	"github.com/teacurran/planning-poker/internal/repository/postgres"
	"github.com/teacurran/planning-poker/internal/voting"
)

// RoomHandler handles room CRUD endpoints
type RoomHandler struct {
	rooms *postgres.RoomRepository
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(rooms *postgres.RoomRepository) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// CreateRoomRequest represents a create room request
type CreateRoomRequest struct {
	Title   string             `json:"title"`
	Privacy models.Privacy     `json:"privacy"`
	Config  *models.RoomConfig `json:"config"`
}

// defaultConfig is applied when a create request omits the config block.
func defaultConfig() models.RoomConfig {
	return models.RoomConfig{
		DeckType:       models.DeckFibonacci,
		RevealBehavior: models.RevealManual,
		AllowObservers: true,
		AllowAnonymous: true,
	}
}

// Create creates a new room owned by the caller
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, `{"error": "title is required"}`, http.StatusBadRequest)
		return
	}

	switch req.Privacy {
	case "":
		req.Privacy = models.PrivacyPublic
	case models.PrivacyPublic, models.PrivacyInviteOnly, models.PrivacyOrgRestricted:
	default:
		http.Error(w, `{"error": "unknown privacy mode"}`, http.StatusBadRequest)
		return
	}
	if req.Privacy == models.PrivacyOrgRestricted && identity.OrgID == nil {
		http.Error(w, `{"error": "org-restricted rooms require an org"}`, http.StatusBadRequest)
		return
	}

	cfg := defaultConfig()
	if req.Config != nil {
		cfg = *req.Config
	}
	if err := voting.ValidateConfig(cfg); err != nil {
		http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	room := &models.Room{
		Title:       req.Title,
		Privacy:     req.Privacy,
		OwnerUserID: identity.UserID,
		Config:      cfg,
	}
	if req.Privacy == models.PrivacyOrgRestricted {
		room.OrgID = identity.OrgID
	}

	room, err := h.rooms.Create(ctx, room)
	if err != nil {
		middleware.LoggerWithIdentity(ctx).Error("create room failed", "error", err)
		http.Error(w, `{"error": "could not create room"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(room)
}

// Get returns a room by ID
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := chi.URLParam(r, "roomId")

	room, err := h.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			http.Error(w, `{"error": "room not found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error": "could not load room"}`, http.StatusInternalServerError)
		return
	}
	if room.Deleted() {
		http.Error(w, `{"error": "room not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(room)
}

// List lists the caller's rooms
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	if identity.UserID == nil {
		http.Error(w, `{"error": "account required"}`, http.StatusForbidden)
		return
	}

	rooms, err := h.rooms.ListByOwner(ctx, *identity.UserID)
	if err != nil {
		http.Error(w, `{"error": "could not list rooms"}`, http.StatusInternalServerError)
		return
	}
	if rooms == nil {
		rooms = []*models.Room{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rooms)
}

// Delete soft-deletes a room; only the owner may delete
func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	roomID := chi.URLParam(r, "roomId")
	if identity.UserID == nil {
		http.Error(w, `{"error": "account required"}`, http.StatusForbidden)
		return
	}

	if err := h.rooms.SoftDelete(ctx, roomID, *identity.UserID); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			http.Error(w, `{"error": "room not found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error": "could not delete room"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
