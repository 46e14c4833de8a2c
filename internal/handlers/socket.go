package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/waveroom/backend/internal/config"
	"github.com/waveroom/backend/internal/events"
	"github.com/waveroom/backend/internal/fanout"
	"github.com/waveroom/backend/internal/logging"
	"github.com/waveroom/backend/internal/models"
	"github.com/waveroom/backend/internal/provider"
	"github.com/waveroom/backend/internal/services"
	"github.com/waveroom/backend/internal/session"
	"github.com/waveroom/backend/internal/ws"
)

// SocketHandler owns the websocket side of a room: the join handshake and
// every in-room event. It implements ws.Dispatcher.
type SocketHandler struct {
	hub         *ws.Hub
	repo        *session.Repository
	nameService *services.NameService
	spotify     *provider.SpotifyService
	pub         *fanout.Publisher
	cfg         *config.Config
	upgrader    websocket.Upgrader
}

func NewSocketHandler(hub *ws.Hub, repo *session.Repository, nameService *services.NameService,
	spotify *provider.SpotifyService, pub *fanout.Publisher, cfg *config.Config) *SocketHandler {
	allowed := make(map[string]bool)
	for _, origin := range cfg.CORSAllowedOrigins {
		allowed[origin] = true
	}

	h := &SocketHandler{
		hub:         hub,
		repo:        repo,
		nameService: nameService,
		spotify:     spotify,
		pub:         pub,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
	}
	hub.SetDisconnectHandler(h.handleDisconnect)
	return h
}

// Serve upgrades the connection and starts the read/write pumps. The
// socket stays unauthenticated until a successful login event arrives.
func (h *SocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed",
			slog.String("ip", logging.ExtractClientIP(r)), slog.Any("error", err))
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h)
}

// HandleEvent dispatches one inbound envelope. Anything other than a login
// attempt is dropped until the socket has joined, and a rejected socket is
// deaf for the rest of its life.
func (h *SocketHandler) HandleEvent(client *ws.Client, envelope events.Envelope) {
	ctx := context.Background()

	switch client.State {
	case ws.StateRejected:
		return
	case ws.StateUnauthenticated, ws.StatePasswordCheck:
		if envelope.Type == events.Login {
			h.handleLogin(ctx, client, envelope.Data)
		}
		return
	}

	switch envelope.Type {
	case events.Login:
		// Already joined; a second login is a no-op.
	case events.ChangeUsername:
		h.handleChangeUsername(ctx, client, envelope.Data)
	case events.QueueSong:
		h.handleQueueSong(ctx, client, envelope.Data)
	case events.AddReaction:
		h.handleReaction(ctx, client, envelope.Data, true)
	case events.RemoveReaction:
		h.handleReaction(ctx, client, envelope.Data, false)
	case events.SetRoomSettings:
		h.handleSetRoomSettings(ctx, client, envelope.Data)
	case events.DeputizeUser:
		h.handleDeputize(ctx, client, envelope.Data)
	case events.SendMessage:
		h.handleSendMessage(ctx, client, envelope.Data)
	case events.StartTyping:
		h.handleTyping(ctx, client, true)
	case events.StopTyping:
		h.handleTyping(ctx, client, false)
	default:
		client.Emit(events.ErrorEvent, map[string]string{"error": "unknown event type"})
	}
}

type loginRequest struct {
	RoomID        string `json:"roomId"`
	UserID        string `json:"userId,omitempty"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	ProviderToken string `json:"providerToken,omitempty"`
}

type initPayload struct {
	Room      *models.Room           `json:"room"`
	Users     []models.User          `json:"users"`
	Messages  []models.Message       `json:"messages"`
	Current   *models.Current        `json:"current"`
	Queue     []models.QueueEntry    `json:"queue"`
	Playlist  []models.PlaylistTrack `json:"playlist"`
	Reactions models.RoomReactions   `json:"reactions"`
	UserID    string                 `json:"userId"`
	Username  string                 `json:"username"`
	IsAdmin   bool                   `json:"isAdmin"`
	IsDeputy  bool                   `json:"isDeputyDj"`
	IsNewUser bool                   `json:"isNewUser"`
}

func (h *SocketHandler) handleLogin(ctx context.Context, client *ws.Client, data json.RawMessage) {
	var req loginRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == "" {
		client.Emit(events.ErrorEvent, map[string]string{"error": "invalid login payload"})
		return
	}

	room := h.repo.FindRoom(ctx, req.RoomID)
	if room == nil {
		// Stay unauthenticated so a corrected login can still succeed.
		client.Emit(events.NotFound, models.ErrorResponse{
			Error:  "room not found",
			Status: http.StatusNotFound,
		})
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = uuid.New().String()
	}

	// The creator is never asked for their own room's password.
	if room.HasPassword() && userID != room.Creator && req.Password != room.Password {
		if req.Password == "" && client.State == ws.StateUnauthenticated {
			// First attempt without a password: ask for one, keep listening.
			client.State = ws.StatePasswordCheck
			client.Emit(events.Unauthorized, models.ErrorResponse{
				Error:  "password required",
				Status: http.StatusUnauthorized,
			})
			return
		}
		logging.LogSecurityEvent(ctx, logging.SecurityEventBadRoomPassword, "wrong room password on login")
		client.State = ws.StateRejected
		client.Emit(events.Unauthorized, models.ErrorResponse{
			Error:  "wrong password",
			Status: http.StatusUnauthorized,
		})
		return
	}

	user := h.repo.FindUser(ctx, userID)
	isNewUser := user == nil
	if user == nil {
		user = &models.User{
			ID:     userID,
			Status: models.StatusParticipating,
		}
	}
	if req.Username != "" {
		user.Username = req.Username
	}
	if user.Username == "" {
		user.Username = h.nameService.Generate()
	}
	user.ConnectionID = client.ID.String()
	user.RoomID = room.ID
	user.IsAdmin = userID == room.Creator
	user.ConnectedAt = time.Now()
	if room.DeputizeOnJoin && !user.IsAdmin {
		user.IsDeputyDJ = true
	}

	h.repo.SaveUser(ctx, user)
	if req.ProviderToken != "" {
		h.repo.SaveProviderToken(ctx, userID, req.ProviderToken)
	}
	h.repo.AddOnlineUser(ctx, room.ID, userID)
	h.repo.PersistUser(ctx, userID)
	if user.IsDJ || user.IsDeputyDJ {
		h.repo.AddDJ(ctx, room.ID, userID)
	}
	h.repo.TouchRoom(ctx, room.ID)

	// The creator being back cancels any pending room expiry.
	if user.IsAdmin && h.repo.RoomHasTTL(ctx, room.ID) {
		h.repo.PersistRoom(ctx, room.ID)
	}

	client.State = ws.StateJoined
	client.UserID = userID
	client.Username = user.Username
	client.IsAdmin = user.IsAdmin
	client.IsDeputyDJ = user.IsDeputyDJ
	h.hub.JoinRoom(client, room.ID)

	users := h.repo.GetRoomUsers(ctx, room.ID)
	client.Emit(events.Init, initPayload{
		Room:      room,
		Users:     users,
		Messages:  h.repo.GetMessages(ctx, room.ID, 0, h.cfg.MessageHistorySize),
		Current:   h.repo.GetCurrent(ctx, room.ID),
		Queue:     h.repo.GetQueue(ctx, room.ID),
		Playlist:  h.repo.GetRoomPlaylist(ctx, room.ID),
		Reactions: h.repo.GetAllRoomReactions(ctx, room.ID),
		UserID:    userID,
		Username:  user.Username,
		IsAdmin:   user.IsAdmin,
		IsDeputy:  user.IsDeputyDJ,
		IsNewUser: isNewUser,
	})

	h.pub.Publish(ctx, events.ChannelUserJoined, events.UserJoinedPayload{
		RoomID: room.ID,
		User:   user,
		Users:  users,
	})

	slog.Info("user joined room",
		slog.String("room_id", room.ID),
		slog.String("user_id", userID),
		slog.String("username", user.Username))
}

func (h *SocketHandler) handleChangeUsername(ctx context.Context, client *ws.Client, data json.RawMessage) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Username == "" {
		client.Emit(events.ErrorEvent, map[string]string{"error": "username is required"})
		return
	}

	user := h.repo.FindUser(ctx, client.UserID)
	if user == nil {
		return
	}
	user.Username = req.Username
	h.repo.SaveUser(ctx, user)
	client.Username = req.Username

	h.broadcastUsers(ctx, client.RoomID)
}

func (h *SocketHandler) handleQueueSong(ctx context.Context, client *ws.Client, data json.RawMessage) {
	var req struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.URI == "" {
		client.Emit(events.ErrorEvent, map[string]string{"error": "uri is required"})
		return
	}

	if !client.IsAdmin && !client.IsDeputyDJ {
		logging.LogSecurityEvent(ctx, logging.SecurityEventNonDJAction, "queue attempt without dj role")
		client.Emit(events.Unauthorized, models.ErrorResponse{
			Error:  "queueing requires dj privileges",
			Status: http.StatusUnauthorized,
		})
		return
	}

	// The track rides the creator's provider queue so it actually plays;
	// the local entry keeps the proposer attribution for the playlist.
	if room := h.repo.FindRoom(ctx, client.RoomID); room != nil {
		if token := h.repo.ProviderToken(ctx, room.Creator); token != "" {
			if err := h.spotify.AddToQueue(ctx, token, req.URI); err != nil {
				slog.Warn("provider queue push failed",
					slog.String("room_id", client.RoomID),
					slog.String("uri", req.URI), slog.Any("error", err))
			}
		}
	}

	h.repo.AddToQueue(ctx, client.RoomID, models.QueueEntry{
		URI:         req.URI,
		AddedBy:     client.UserID,
		AddedByName: client.Username,
		AddedAt:     time.Now(),
	})

	client.Emit(events.SongQueued, map[string]string{"uri": req.URI})
}

func (h *SocketHandler) handleReaction(ctx context.Context, client *ws.Client, data json.RawMessage, add bool) {
	var req struct {
		Emoji   string                 `json:"emoji"`
		Subject models.ReactionSubject `json:"subject"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Emoji == "" || req.Subject.ID == "" {
		client.Emit(events.ErrorEvent, map[string]string{"error": "emoji and subject are required"})
		return
	}
	if req.Subject.Type != models.ReactToMessage && req.Subject.Type != models.ReactToTrack {
		client.Emit(events.ErrorEvent, map[string]string{"error": "subject type must be 'message' or 'track'"})
		return
	}

	reaction := models.Reaction{
		Emoji:   req.Emoji,
		UserID:  client.UserID,
		Subject: req.Subject,
	}
	if add {
		h.repo.AddReaction(ctx, client.RoomID, reaction)
	} else {
		h.repo.RemoveReaction(ctx, client.RoomID, reaction)
	}

	h.broadcastRoom(ctx, client.RoomID, events.ReactionsUpdated, map[string]any{
		"subject":   req.Subject,
		"reactions": h.repo.GetSubjectReactions(ctx, client.RoomID, req.Subject),
	})
}

func (h *SocketHandler) handleSetRoomSettings(ctx context.Context, client *ws.Client, data json.RawMessage) {
	if !client.IsAdmin {
		logging.LogSecurityEvent(ctx, logging.SecurityEventNonAdminAction, "settings change without admin role")
		client.Emit(events.Unauthorized, models.ErrorResponse{
			Error:  "settings require room admin",
			Status: http.StatusUnauthorized,
		})
		return
	}

	var patch models.RoomPatch
	if err := json.Unmarshal(data, &patch); err != nil {
		client.Emit(events.ErrorEvent, map[string]string{"error": "invalid settings payload"})
		return
	}

	// Any settings change wipes sticky provider and stream errors so
	// polling gets another chance with the new configuration.
	empty := ""
	patch.ProviderError = &empty
	patch.StreamError = &empty

	h.repo.UpdateRoom(ctx, client.RoomID, &patch)

	room := h.repo.FindRoom(ctx, client.RoomID)
	if room == nil {
		return
	}

	h.pub.Publish(ctx, events.ChannelRoomSettings, events.RoomSettingsPayload{
		RoomID: room.ID,
		Room:   room,
	})
	// Resync everyone's now-playing view against the updated room.
	h.pub.Publish(ctx, events.ChannelNowPlaying, events.NowPlayingPayload{
		RoomID:  room.ID,
		Current: h.repo.GetCurrent(ctx, room.ID),
	})
}

func (h *SocketHandler) handleDeputize(ctx context.Context, client *ws.Client, data json.RawMessage) {
	if !client.IsAdmin && !client.IsDeputyDJ {
		logging.LogSecurityEvent(ctx, logging.SecurityEventNonDJAction, "deputize attempt without dj role")
		client.Emit(events.Unauthorized, models.ErrorResponse{
			Error:  "deputizing requires dj privileges",
			Status: http.StatusUnauthorized,
		})
		return
	}

	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.UserID == "" {
		client.Emit(events.ErrorEvent, map[string]string{"error": "userId is required"})
		return
	}

	target := h.repo.FindUser(ctx, req.UserID)
	if target == nil {
		client.Emit(events.NotFound, models.ErrorResponse{
			Error:  "user not found",
			Status: http.StatusNotFound,
		})
		return
	}

	// Toggle: deputizing an existing deputy demotes them.
	target.IsDeputyDJ = !target.IsDeputyDJ
	h.repo.SaveUser(ctx, target)
	if target.IsDeputyDJ {
		h.repo.AddDJ(ctx, client.RoomID, target.ID)
	} else if !target.IsDJ {
		h.repo.RemoveDJ(ctx, client.RoomID, target.ID)
	}

	h.broadcastUsers(ctx, client.RoomID)
}

func (h *SocketHandler) handleSendMessage(ctx context.Context, client *ws.Client, data json.RawMessage) {
	var req struct {
		Body string `json:"body"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Body == "" {
		client.Emit(events.ErrorEvent, map[string]string{"error": "message body is required"})
		return
	}

	message := models.Message{
		ID:       uuid.New().String(),
		UserID:   client.UserID,
		Username: client.Username,
		Body:     req.Body,
		SentAt:   time.Now(),
	}
	h.repo.PersistMessage(ctx, client.RoomID, message)

	// Sending a message implicitly ends the sender's typing state.
	h.repo.RemoveTyping(ctx, client.RoomID, client.UserID)

	h.broadcastRoom(ctx, client.RoomID, events.NewMessage, message)
	h.broadcastTyping(ctx, client.RoomID)
}

func (h *SocketHandler) handleTyping(ctx context.Context, client *ws.Client, typing bool) {
	if typing {
		h.repo.AddTyping(ctx, client.RoomID, client.UserID)
	} else {
		h.repo.RemoveTyping(ctx, client.RoomID, client.UserID)
	}
	h.broadcastTyping(ctx, client.RoomID)
}

// handleDisconnect runs after the hub drops a socket. Sockets that never
// joined have nothing to clean up.
func (h *SocketHandler) handleDisconnect(client *ws.Client) {
	if client.State != ws.StateJoined || client.RoomID == "" {
		return
	}
	ctx := context.Background()

	h.repo.RemoveOnlineUser(ctx, client.RoomID, client.UserID)

	room := h.repo.FindRoom(ctx, client.RoomID)
	if room == nil {
		return
	}

	h.broadcastRoom(ctx, client.RoomID, events.UserLeft, map[string]any{
		"userId":   client.UserID,
		"username": client.Username,
		"users":    h.repo.GetRoomUsers(ctx, client.RoomID),
	})
	h.broadcastTyping(ctx, client.RoomID)

	// The creator walking away starts the room's grace countdown; the
	// sweeper re-arms or cancels it if this view was stale.
	if client.UserID == room.Creator && !room.Persistent {
		h.repo.ExpireRoom(ctx, client.RoomID, h.cfg.RoomGraceTTL)
		slog.Info("room expiry armed, creator disconnected",
			slog.String("room_id", client.RoomID))
	}
}

func (h *SocketHandler) broadcastUsers(ctx context.Context, roomID string) {
	h.broadcastRoom(ctx, roomID, events.UsersUpdated, map[string]any{
		"users": h.repo.GetRoomUsers(ctx, roomID),
	})
}

func (h *SocketHandler) broadcastTyping(ctx context.Context, roomID string) {
	h.broadcastRoom(ctx, roomID, events.TypingUpdated, map[string]any{
		"userIds": h.repo.GetTyping(ctx, roomID),
	})
}

// broadcastRoom routes socket-originated room events through pub/sub so
// every process, this one included, delivers them to its own sockets.
func (h *SocketHandler) broadcastRoom(ctx context.Context, roomID string, t events.Type, data any) {
	h.pub.Publish(ctx, events.ChannelRoomBroadcast, events.RoomBroadcastPayload{
		RoomID: roomID,
		Event:  t,
		Data:   data,
	})
}
