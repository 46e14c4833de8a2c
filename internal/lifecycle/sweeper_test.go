package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/waveroom/backend/internal/config"
	"github.com/waveroom/backend/internal/fanout"
	"github.com/waveroom/backend/internal/models"
	"github.com/waveroom/backend/internal/session"
)

func newTestSweeper(t *testing.T) (*Sweeper, *session.Repository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		RoomTTL:       24 * time.Hour,
		RoomGraceTTL:  15 * time.Minute,
		SweepInterval: time.Minute,
	}
	repo := session.New(rdb, time.Hour)
	return NewSweeper(cfg, repo, fanout.NewPublisher(rdb)), repo, mr
}

func saveRoomWithCreator(ctx context.Context, repo *session.Repository, roomID string, persistent bool) *models.Room {
	room := &models.Room{
		ID:          roomID,
		Creator:     "creator-1",
		Type:        models.RoomTypeJukebox,
		Title:       "Test Room",
		Persistent:  persistent,
		CreatedAt:   time.Now(),
		RefreshedAt: time.Now(),
	}
	repo.SaveRoom(ctx, room)
	repo.SaveUser(ctx, &models.User{ID: "creator-1", Username: "Alice"})
	return room
}

func TestSweepRepairsIndex(t *testing.T) {
	s, repo, mr := newTestSweeper(t)
	ctx := context.Background()

	// Index points at a room whose keys expired.
	repo.SaveRoom(ctx, &models.Room{ID: "gone", Creator: "x", Type: models.RoomTypeJukebox, Title: "Gone"})
	repo.ExpireRoom(ctx, "gone", time.Minute)
	mr.FastForward(2 * time.Minute)

	s.Sweep(ctx)

	if ids := repo.RoomIDs(ctx); len(ids) != 0 {
		t.Errorf("RoomIDs() = %v after sweep, want empty", ids)
	}
}

func TestSweepDeletesOrphanedRoom(t *testing.T) {
	s, repo, _ := newTestSweeper(t)
	ctx := context.Background()

	// Room whose creator record no longer exists.
	repo.SaveRoom(ctx, &models.Room{ID: "room-1", Creator: "ghost", Type: models.RoomTypeJukebox, Title: "Orphan"})

	s.Sweep(ctx)

	if repo.RoomExists(ctx, "room-1") {
		t.Error("orphaned room survived the sweep")
	}
}

func TestSweepArmsExpiryWhenCreatorAbsent(t *testing.T) {
	s, repo, _ := newTestSweeper(t)
	ctx := context.Background()

	saveRoomWithCreator(ctx, repo, "room-1", false)

	s.Sweep(ctx)

	if !repo.RoomHasTTL(ctx, "room-1") {
		t.Error("sweep did not arm expiry for a room with an absent creator")
	}
}

func TestSweepCancelsExpiryWhenCreatorReturns(t *testing.T) {
	s, repo, _ := newTestSweeper(t)
	ctx := context.Background()

	saveRoomWithCreator(ctx, repo, "room-1", false)
	repo.AddOnlineUser(ctx, "room-1", "creator-1")
	repo.ExpireRoom(ctx, "room-1", 15*time.Minute)

	s.Sweep(ctx)

	if repo.RoomHasTTL(ctx, "room-1") {
		t.Error("sweep left expiry armed while the creator is online")
	}
}

func TestSweepKeepsPersistentRooms(t *testing.T) {
	s, repo, _ := newTestSweeper(t)
	ctx := context.Background()

	saveRoomWithCreator(ctx, repo, "room-1", true)
	repo.ExpireRoom(ctx, "room-1", 15*time.Minute)

	s.Sweep(ctx)

	if repo.RoomHasTTL(ctx, "room-1") {
		t.Error("persistent room still had a TTL after the sweep")
	}
	if !repo.RoomExists(ctx, "room-1") {
		t.Error("persistent room deleted by the sweep")
	}
}
