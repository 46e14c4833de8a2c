package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"

	"github.com/waveroom/backend/internal/config"
	"github.com/waveroom/backend/internal/crypto"
	"github.com/waveroom/backend/internal/fanout"
	"github.com/waveroom/backend/internal/middleware"
	"github.com/waveroom/backend/internal/models"
	"github.com/waveroom/backend/internal/services"
	"github.com/waveroom/backend/internal/session"
)

func testConfig() *config.Config {
	return &config.Config{
		PortalPassword:       "portal-secret",
		JWTSecret:            "test-secret",
		CreatorTokenDuration: time.Hour,
		RoomGraceTTL:         15 * time.Minute,
		MessageHistorySize:   50,
	}
}

func newTestRoomHandler(t *testing.T) (*RoomHandler, *session.Repository, *services.AuthService) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := testConfig()
	repo := session.New(rdb, time.Hour)
	auth := services.NewAuthService(cfg.JWTSecret, cfg.CreatorTokenDuration)
	handler := NewRoomHandler(repo, auth, services.NewNameService(), fanout.NewPublisher(rdb), cfg)
	return handler, repo, auth
}

func portalHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := crypto.HashPortalPassword(password)
	if err != nil {
		t.Fatalf("hashing portal password: %v", err)
	}
	return hash
}

func TestPortalHandler_Verify(t *testing.T) {
	handler := NewPortalHandler(testConfig())

	correctHash := portalHash(t, "portal-secret")
	wrongHash := portalHash(t, "wrong-password")

	tests := []struct {
		name          string
		passwordHash  string
		expectedValid bool
	}{
		{"correct password hash", correctHash, true},
		{"wrong password hash", wrongHash, false},
		{"empty hash", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(models.VerifyPortalRequest{PasswordHash: tt.passwordHash})
			req := httptest.NewRequest(http.MethodPost, "/api/portal/verify", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			handler.Verify(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("Status = %d, want %d", rec.Code, http.StatusOK)
			}

			var resp models.VerifyPortalResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}

			if resp.Valid != tt.expectedValid {
				t.Errorf("Valid = %v, want %v", resp.Valid, tt.expectedValid)
			}
		})
	}
}

func TestRoomHandler_Create(t *testing.T) {
	handler, repo, auth := newTestRoomHandler(t)

	body, _ := json.Marshal(models.CreateRoomRequest{
		Title:              "Friday Vibes",
		Type:               models.RoomTypeJukebox,
		Password:           "hunter2",
		FetchMeta:          true,
		PortalPasswordHash: portalHash(t, "portal-secret"),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var resp models.CreateRoomResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Room == nil || resp.Room.ID == "" {
		t.Fatal("response missing room")
	}
	if resp.CreatorID == "" || resp.Token == "" {
		t.Fatal("response missing creator ID or token")
	}

	claims, err := auth.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("returned token is invalid: %v", err)
	}
	if claims.RoomID != resp.Room.ID || claims.Role != services.RoleCreator {
		t.Errorf("claims = %+v, want creator claims for the new room", claims)
	}

	saved := repo.FindRoom(context.Background(), resp.Room.ID)
	if saved == nil {
		t.Fatal("room not persisted")
	}
	if saved.Password != "hunter2" {
		t.Errorf("Password = %q, want the literal value", saved.Password)
	}
	if creator := repo.FindUser(context.Background(), resp.CreatorID); creator == nil || !creator.IsAdmin {
		t.Errorf("creator user = %+v, want admin record", creator)
	}
}

func TestRoomHandler_CreateRejectsBadPortalPassword(t *testing.T) {
	handler, repo, _ := newTestRoomHandler(t)

	body, _ := json.Marshal(models.CreateRoomRequest{
		Title:              "Nope",
		Type:               models.RoomTypeJukebox,
		PortalPasswordHash: portalHash(t, "guessed-wrong"),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if ids := repo.RoomIDs(context.Background()); len(ids) != 0 {
		t.Errorf("room created despite rejected portal password: %v", ids)
	}
}

func TestRoomHandler_CreateValidation(t *testing.T) {
	handler, _, _ := newTestRoomHandler(t)
	hash := portalHash(t, "portal-secret")

	tests := []struct {
		name string
		req  models.CreateRoomRequest
	}{
		{"missing title", models.CreateRoomRequest{Type: models.RoomTypeJukebox, PortalPasswordHash: hash}},
		{"bad type", models.CreateRoomRequest{Title: "X", Type: "cinema", PortalPasswordHash: hash}},
		{"radio without url", models.CreateRoomRequest{Title: "X", Type: models.RoomTypeRadio, PortalPasswordHash: hash}},
		{"bad protocol", models.CreateRoomRequest{Title: "X", Type: models.RoomTypeRadio, RadioURL: "http://s", RadioProtocol: "rtmp", PortalPasswordHash: hash}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.req)
			rec := httptest.NewRecorder()
			handler.Create(rec, httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewReader(body)))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestRoomHandler_ListAndGet(t *testing.T) {
	handler, repo, _ := newTestRoomHandler(t)
	ctx := context.Background()

	repo.SaveRoom(ctx, &models.Room{
		ID: "room-1", Creator: "c1", Type: models.RoomTypeJukebox,
		Title: "Open Room",
	})
	repo.SaveRoom(ctx, &models.Room{
		ID: "room-2", Creator: "c2", Type: models.RoomTypeRadio,
		Title: "Locked Room", Password: "pw",
	})
	repo.AddOnlineUser(ctx, "room-2", "c2")

	rec := httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))

	var summaries []models.RoomSummary
	if err := json.NewDecoder(rec.Body).Decode(&summaries); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("List() returned %d rooms, want 2", len(summaries))
	}
	byID := map[string]models.RoomSummary{}
	for _, s := range summaries {
		byID[s.ID] = s
	}
	if byID["room-2"].HasPassword != true || byID["room-2"].OnlineCount != 1 {
		t.Errorf("room-2 summary = %+v", byID["room-2"])
	}
	if byID["room-1"].HasPassword {
		t.Error("room-1 should not report a password")
	}

	// Get serves the full room, minus the password field.
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("roomID", "room-2")
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/room-2", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec = httptest.NewRecorder()
	handler.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Get() status = %d", rec.Code)
	}
	var raw map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if raw["title"] != "Locked Room" {
		t.Errorf("title = %v", raw["title"])
	}
	if _, leaked := raw["password"]; leaked {
		t.Error("room password leaked in the Get response")
	}
}

func TestRoomHandler_Delete(t *testing.T) {
	handler, repo, _ := newTestRoomHandler(t)
	ctx := context.Background()

	repo.SaveRoom(ctx, &models.Room{
		ID: "room-1", Creator: "c1", Type: models.RoomTypeJukebox, Title: "Doomed",
	})

	makeReq := func(claims *services.Claims) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("roomID", "room-1")
		req := httptest.NewRequest(http.MethodDelete, "/api/rooms/room-1/manage", nil)
		reqCtx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
		if claims != nil {
			reqCtx = context.WithValue(reqCtx, middleware.ClaimsKey, claims)
		}
		return req.WithContext(reqCtx)
	}

	// Creator token for a different room must not work.
	rec := httptest.NewRecorder()
	handler.Delete(rec, makeReq(&services.Claims{RoomID: "other-room", UserID: "c1", Role: services.RoleCreator}))
	if rec.Code != http.StatusForbidden {
		t.Errorf("Status = %d with foreign token, want %d", rec.Code, http.StatusForbidden)
	}
	if !repo.RoomExists(ctx, "room-1") {
		t.Fatal("room deleted by a foreign token")
	}

	rec = httptest.NewRecorder()
	handler.Delete(rec, makeReq(&services.Claims{RoomID: "room-1", UserID: "c1", Role: services.RoleCreator}))
	if rec.Code != http.StatusNoContent {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if repo.RoomExists(ctx, "room-1") {
		t.Error("room still exists after delete")
	}
}
