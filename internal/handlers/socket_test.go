package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"github.com/waveroom/backend/internal/events"
	"github.com/waveroom/backend/internal/fanout"
	"github.com/waveroom/backend/internal/models"
	"github.com/waveroom/backend/internal/provider"
	"github.com/waveroom/backend/internal/services"
	"github.com/waveroom/backend/internal/session"
	"github.com/waveroom/backend/internal/ws"
)

type socketFixture struct {
	repo   *session.Repository
	hub    *ws.Hub
	server *httptest.Server

	// URIs the fake provider saw on its add-to-queue endpoint.
	queuedURIs chan string
}

func newSocketFixture(t *testing.T) *socketFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	queuedURIs := make(chan string, 8)
	providerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/me/player/queue" {
			queuedURIs <- r.URL.Query().Get("uri")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(providerSrv.Close)
	spotify := provider.NewSpotifyService("client-id", "client-secret")
	spotify.BaseURL = providerSrv.URL

	cfg := testConfig()
	repo := session.New(rdb, time.Hour)
	hub := ws.NewHub()
	pub := fanout.NewPublisher(rdb)
	sub := fanout.NewSubscriber(rdb, hub)
	handler := NewSocketHandler(hub, repo, services.NewNameService(), spotify, pub, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run()
	go sub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		hub.Stop()
	})

	server := httptest.NewServer(http.HandlerFunc(handler.Serve))
	t.Cleanup(server.Close)

	// Give the subscriber a beat to establish its pattern subscription.
	time.Sleep(50 * time.Millisecond)

	return &socketFixture{repo: repo, hub: hub, server: server, queuedURIs: queuedURIs}
}

func (f *socketFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing socket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventType events.Type, data any) {
	t.Helper()
	message, err := events.Marshal(eventType, data)
	if err != nil {
		t.Fatalf("marshaling %s: %v", eventType, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
		t.Fatalf("sending %s: %v", eventType, err)
	}
}

// waitFor reads envelopes until one of the wanted type arrives.
func waitFor(t *testing.T, conn *websocket.Conn, want events.Type) events.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		var envelope events.Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			t.Fatalf("malformed envelope: %v", err)
		}
		if envelope.Type == want {
			return envelope
		}
	}
}

func TestSocketLoginAndJoinBroadcast(t *testing.T) {
	f := newSocketFixture(t)
	ctx := context.Background()

	f.repo.SaveRoom(ctx, &models.Room{
		ID: "room-1", Creator: "creator-1", Type: models.RoomTypeJukebox, Title: "Open Room",
	})

	alice := f.dial(t)
	send(t, alice, events.Login, loginRequest{RoomID: "room-1", UserID: "user-a", Username: "Alice"})

	initEnv := waitFor(t, alice, events.Init)
	var init initPayload
	if err := json.Unmarshal(initEnv.Data, &init); err != nil {
		t.Fatalf("decoding init payload: %v", err)
	}
	if init.UserID != "user-a" || init.Username != "Alice" {
		t.Errorf("init identity = %s/%s", init.UserID, init.Username)
	}
	if init.IsAdmin {
		t.Error("non-creator login must not be admin")
	}
	if !init.IsNewUser {
		t.Error("first login should be flagged as a new user")
	}
	if init.Room == nil || init.Room.ID != "room-1" {
		t.Errorf("init room = %+v", init.Room)
	}
	if len(init.Users) != 1 || init.Users[0].Username != "Alice" {
		t.Errorf("init users = %+v", init.Users)
	}

	if !f.repo.IsOnline(ctx, "room-1", "user-a") {
		t.Error("joined user not marked online")
	}

	// A second participant joins; both sockets hear about it.
	bob := f.dial(t)
	send(t, bob, events.Login, loginRequest{RoomID: "room-1", UserID: "user-b", Username: "Bob"})
	waitFor(t, bob, events.Init)

	joined := waitFor(t, alice, events.UserJoined)
	var payload events.UserJoinedPayload
	if err := json.Unmarshal(joined.Data, &payload); err != nil {
		t.Fatalf("decoding user joined payload: %v", err)
	}
	// Alice also hears her own join first; skip until Bob's shows up.
	for payload.User != nil && payload.User.ID != "user-b" {
		joined = waitFor(t, alice, events.UserJoined)
		if err := json.Unmarshal(joined.Data, &payload); err != nil {
			t.Fatalf("decoding user joined payload: %v", err)
		}
	}
	if len(payload.Users) != 2 {
		t.Errorf("user joined carried %d users, want both", len(payload.Users))
	}
}

func TestSocketLoginPasswordFlow(t *testing.T) {
	f := newSocketFixture(t)
	ctx := context.Background()

	f.repo.SaveRoom(ctx, &models.Room{
		ID: "room-1", Creator: "creator-1", Type: models.RoomTypeJukebox,
		Title: "Locked Room", Password: "hunter2",
	})

	// No password: asked to retry, socket stays usable.
	conn := f.dial(t)
	send(t, conn, events.Login, loginRequest{RoomID: "room-1", UserID: "user-a"})
	denied := waitFor(t, conn, events.Unauthorized)
	var deniedPayload models.ErrorResponse
	if err := json.Unmarshal(denied.Data, &deniedPayload); err != nil {
		t.Fatalf("decoding unauthorized payload: %v", err)
	}
	if deniedPayload.Status != http.StatusUnauthorized {
		t.Errorf("unauthorized status = %d, want %d", deniedPayload.Status, http.StatusUnauthorized)
	}
	if f.repo.IsOnline(ctx, "room-1", "user-a") {
		t.Error("user online after passwordless attempt")
	}

	// Wrong password: rejected for good, no side effects.
	send(t, conn, events.Login, loginRequest{RoomID: "room-1", UserID: "user-a", Password: "wrong"})
	waitFor(t, conn, events.Unauthorized)
	if f.repo.IsOnline(ctx, "room-1", "user-a") {
		t.Error("user online after wrong password")
	}
	if f.hub.RoomConnectionCount("room-1") != 0 {
		t.Error("rejected socket attached to the room")
	}

	// Fresh connection with the right password joins.
	conn2 := f.dial(t)
	send(t, conn2, events.Login, loginRequest{RoomID: "room-1", UserID: "user-a", Password: "hunter2"})
	waitFor(t, conn2, events.Init)
	if !f.repo.IsOnline(ctx, "room-1", "user-a") {
		t.Error("user not online after correct password")
	}
}

func TestSocketCreatorNeedsNoPassword(t *testing.T) {
	f := newSocketFixture(t)
	ctx := context.Background()

	f.repo.SaveRoom(ctx, &models.Room{
		ID: "room-1", Creator: "creator-1", Type: models.RoomTypeJukebox,
		Title: "Locked Room", Password: "hunter2",
	})

	// The creator reconnects without supplying the room password.
	conn := f.dial(t)
	send(t, conn, events.Login, loginRequest{RoomID: "room-1", UserID: "creator-1"})

	initEnv := waitFor(t, conn, events.Init)
	var init initPayload
	if err := json.Unmarshal(initEnv.Data, &init); err != nil {
		t.Fatalf("decoding init payload: %v", err)
	}
	if !init.IsAdmin {
		t.Error("creator login not flagged admin")
	}
	if !f.repo.IsOnline(ctx, "room-1", "creator-1") {
		t.Error("creator not online after passwordless login")
	}
}

func TestSocketLoginUnknownRoom(t *testing.T) {
	f := newSocketFixture(t)
	ctx := context.Background()

	conn := f.dial(t)
	send(t, conn, events.Login, loginRequest{RoomID: "no-such-room"})
	notFound := waitFor(t, conn, events.NotFound)
	var payload models.ErrorResponse
	if err := json.Unmarshal(notFound.Data, &payload); err != nil {
		t.Fatalf("decoding not found payload: %v", err)
	}
	if payload.Status != http.StatusNotFound {
		t.Errorf("not found status = %d, want %d", payload.Status, http.StatusNotFound)
	}

	// The socket is still listening; a corrected login joins.
	f.repo.SaveRoom(ctx, &models.Room{
		ID: "room-1", Creator: "creator-1", Type: models.RoomTypeJukebox, Title: "Second Try",
	})
	send(t, conn, events.Login, loginRequest{RoomID: "room-1", UserID: "user-a"})
	waitFor(t, conn, events.Init)
	if !f.repo.IsOnline(ctx, "room-1", "user-a") {
		t.Error("user not online after corrected login")
	}
}

func TestSocketQueueSongReachesProvider(t *testing.T) {
	f := newSocketFixture(t)
	ctx := context.Background()

	f.repo.SaveRoom(ctx, &models.Room{
		ID: "room-1", Creator: "creator-1", Type: models.RoomTypeJukebox, Title: "Jukebox",
	})

	creator := f.dial(t)
	send(t, creator, events.Login, loginRequest{
		RoomID: "room-1", UserID: "creator-1", Username: "Boss", ProviderToken: "tok-1",
	})
	waitFor(t, creator, events.Init)

	send(t, creator, events.QueueSong, map[string]string{"uri": "spotify:track:abc"})
	waitFor(t, creator, events.SongQueued)

	select {
	case uri := <-f.queuedURIs:
		if uri != "spotify:track:abc" {
			t.Errorf("provider queue got uri %q", uri)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("provider add-to-queue was never called")
	}

	queue := f.repo.GetQueue(ctx, "room-1")
	if len(queue) != 1 || queue[0].URI != "spotify:track:abc" || queue[0].AddedBy != "creator-1" {
		t.Errorf("stored queue = %+v", queue)
	}
}

func TestSocketChatRoundTrip(t *testing.T) {
	f := newSocketFixture(t)
	ctx := context.Background()

	f.repo.SaveRoom(ctx, &models.Room{
		ID: "room-1", Creator: "creator-1", Type: models.RoomTypeJukebox, Title: "Chatty",
	})

	alice := f.dial(t)
	send(t, alice, events.Login, loginRequest{RoomID: "room-1", UserID: "user-a", Username: "Alice"})
	waitFor(t, alice, events.Init)

	bob := f.dial(t)
	send(t, bob, events.Login, loginRequest{RoomID: "room-1", UserID: "user-b", Username: "Bob"})
	waitFor(t, bob, events.Init)

	send(t, alice, events.StartTyping, nil)
	typing := waitFor(t, bob, events.TypingUpdated)
	var typingPayload struct {
		UserIDs []string `json:"userIds"`
	}
	if err := json.Unmarshal(typing.Data, &typingPayload); err != nil {
		t.Fatalf("decoding typing payload: %v", err)
	}
	if len(typingPayload.UserIDs) != 1 || typingPayload.UserIDs[0] != "user-a" {
		t.Errorf("typing users = %v, want [user-a]", typingPayload.UserIDs)
	}

	send(t, alice, events.SendMessage, map[string]string{"body": "hello room"})
	msgEnv := waitFor(t, bob, events.NewMessage)
	var message models.Message
	if err := json.Unmarshal(msgEnv.Data, &message); err != nil {
		t.Fatalf("decoding message payload: %v", err)
	}
	if message.Body != "hello room" || message.Username != "Alice" {
		t.Errorf("message = %+v", message)
	}

	// Sending cleared the sender's typing state.
	if typing := f.repo.GetTyping(ctx, "room-1"); len(typing) != 0 {
		t.Errorf("typing set = %v after send, want empty", typing)
	}

	stored := f.repo.GetMessages(ctx, "room-1", 0, 10)
	if len(stored) != 1 || stored[0].Body != "hello room" {
		t.Errorf("stored messages = %+v", stored)
	}
}

func TestSocketDeputizeToggle(t *testing.T) {
	f := newSocketFixture(t)
	ctx := context.Background()

	f.repo.SaveRoom(ctx, &models.Room{
		ID: "room-1", Creator: "creator-1", Type: models.RoomTypeJukebox, Title: "DJs",
	})

	creator := f.dial(t)
	send(t, creator, events.Login, loginRequest{RoomID: "room-1", UserID: "creator-1", Username: "Boss"})
	waitFor(t, creator, events.Init)

	guest := f.dial(t)
	send(t, guest, events.Login, loginRequest{RoomID: "room-1", UserID: "user-b", Username: "Bob"})
	waitFor(t, guest, events.Init)

	send(t, creator, events.DeputizeUser, map[string]string{"userId": "user-b"})
	waitFor(t, creator, events.UsersUpdated)
	if target := f.repo.FindUser(ctx, "user-b"); target == nil || !target.IsDeputyDJ {
		t.Fatalf("target not deputized: %+v", target)
	}

	// Deputizing again reverses it.
	send(t, creator, events.DeputizeUser, map[string]string{"userId": "user-b"})
	waitFor(t, creator, events.UsersUpdated)
	if target := f.repo.FindUser(ctx, "user-b"); target == nil || target.IsDeputyDJ {
		t.Fatalf("second deputize did not demote: %+v", target)
	}
}
