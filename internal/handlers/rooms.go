package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/waveroom/backend/internal/config"
	"github.com/waveroom/backend/internal/crypto"
	"github.com/waveroom/backend/internal/events"
	"github.com/waveroom/backend/internal/fanout"
	"github.com/waveroom/backend/internal/logging"
	"github.com/waveroom/backend/internal/middleware"
	"github.com/waveroom/backend/internal/models"
	"github.com/waveroom/backend/internal/provider"
	"github.com/waveroom/backend/internal/services"
	"github.com/waveroom/backend/internal/session"
)

// RoomHandler manages room lifecycle over HTTP: creation, listing, and
// deletion. Everything inside a live room happens over the socket.
type RoomHandler struct {
	repo        *session.Repository
	authService *services.AuthService
	nameService *services.NameService
	pub         *fanout.Publisher
	cfg         *config.Config
}

// NewRoomHandler creates a RoomHandler with the required dependencies.
func NewRoomHandler(repo *session.Repository, authService *services.AuthService,
	nameService *services.NameService, pub *fanout.Publisher, cfg *config.Config) *RoomHandler {
	return &RoomHandler{
		repo:        repo,
		authService: authService,
		nameService: nameService,
		pub:         pub,
		cfg:         cfg,
	}
}

// Create initializes a new room with the caller as creator.
// Returns the room, the creator's user ID, and a creator JWT token.
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Type == "" {
		req.Type = models.RoomTypeJukebox
	}
	if req.Type != models.RoomTypeJukebox && req.Type != models.RoomTypeRadio {
		writeError(w, http.StatusBadRequest, "type must be 'jukebox' or 'radio'")
		return
	}
	if req.Type == models.RoomTypeRadio && req.RadioURL == "" {
		writeError(w, http.StatusBadRequest, "radioUrl is required for radio rooms")
		return
	}
	if req.RadioProtocol != "" &&
		req.RadioProtocol != provider.ProtocolIcecast &&
		req.RadioProtocol != provider.ProtocolShoutcast {
		writeError(w, http.StatusBadRequest, "radioProtocol must be 'icecast' or 'shoutcast'")
		return
	}

	// Verify operator portal password
	expectedPortalHash, err := crypto.HashPortalPassword(h.cfg.PortalPassword)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to hash portal password", err)
		return
	}
	if req.PortalPasswordHash != expectedPortalHash {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventBadPortalPassword, "invalid portal password on room creation")
		writeError(w, http.StatusUnauthorized, "invalid portal password")
		return
	}

	creatorID := req.CreatorID
	if creatorID == "" {
		creatorID = uuid.New().String()
	}

	now := time.Now()
	room := &models.Room{
		ID:             uuid.New().String(),
		Creator:        creatorID,
		Type:           req.Type,
		Title:          req.Title,
		Password:       req.Password,
		FetchMeta:      req.FetchMeta,
		RadioURL:       req.RadioURL,
		RadioMetaURL:   req.RadioMetaURL,
		RadioProtocol:  req.RadioProtocol,
		DeputizeOnJoin: req.DeputizeOnJoin,
		AnnounceTracks: true,
		AnnounceJoins:  true,
		CreatedAt:      now,
		RefreshedAt:    now,
	}

	creator := h.repo.FindUser(r.Context(), creatorID)
	if creator == nil {
		creator = &models.User{
			ID:          creatorID,
			Username:    h.nameService.Generate(),
			Status:      models.StatusParticipating,
			ConnectedAt: now,
		}
	}
	creator.IsAdmin = true
	h.repo.SaveUser(r.Context(), creator)
	h.repo.SaveRoom(r.Context(), room)

	token, err := h.authService.GenerateToken(room.ID, creatorID, services.RoleCreator)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to generate token", err)
		return
	}

	writeJSON(w, http.StatusCreated, models.CreateRoomResponse{
		Room:      room,
		CreatorID: creatorID,
		Token:     token,
	})
}

// List returns a summary of every known room.
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	roomIDs := h.repo.RoomIDs(r.Context())
	summaries := make([]models.RoomSummary, 0, len(roomIDs))

	for _, roomID := range roomIDs {
		room := h.repo.FindRoom(r.Context(), roomID)
		if room == nil {
			continue
		}
		summaries = append(summaries, models.RoomSummary{
			ID:          room.ID,
			Title:       room.Title,
			Type:        room.Type,
			HasPassword: room.HasPassword(),
			OnlineCount: h.repo.OnlineCount(r.Context(), roomID),
		})
	}

	writeJSON(w, http.StatusOK, summaries)
}

// Get returns one room's public details.
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	room := h.repo.FindRoom(r.Context(), roomID)
	if room == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// Delete removes a room and all of its state. Creator token required, and
// it has to be a token for this room.
func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	claims := middleware.GetClaims(r.Context())
	if claims == nil || claims.RoomID != roomID {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventNonAdminAction, "room deletion with foreign token")
		writeError(w, http.StatusForbidden, "token does not grant access to this room")
		return
	}

	if !h.repo.RoomExists(r.Context(), roomID) {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	h.repo.DeleteRoom(r.Context(), roomID)
	h.pub.Publish(r.Context(), events.ChannelRoomDeleted, events.RoomDeletedPayload{RoomID: roomID})

	w.WriteHeader(http.StatusNoContent)
}
