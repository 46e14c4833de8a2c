package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/waveroom/backend/internal/models"
)

func newTestRepo(t *testing.T) (*Repository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, time.Hour), mr
}

func testRoom(id string) *models.Room {
	now := time.Now().Truncate(time.Millisecond)
	return &models.Room{
		ID:             id,
		Creator:        "creator-1",
		Type:           models.RoomTypeJukebox,
		Title:          "Friday Vibes",
		Password:       "hunter2",
		FetchMeta:      true,
		DeputizeOnJoin: true,
		AnnounceTracks: true,
		CreatedAt:      now,
		RefreshedAt:    now,
	}
}

func TestRoomRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	room := testRoom("room-1")
	repo.SaveRoom(ctx, room)

	got := repo.FindRoom(ctx, "room-1")
	if got == nil {
		t.Fatal("FindRoom() returned nil for saved room")
	}
	if got.Title != room.Title {
		t.Errorf("Title = %q, want %q", got.Title, room.Title)
	}
	if got.Creator != room.Creator {
		t.Errorf("Creator = %q, want %q", got.Creator, room.Creator)
	}
	if got.Type != models.RoomTypeJukebox {
		t.Errorf("Type = %q, want jukebox", got.Type)
	}
	if !got.FetchMeta || !got.DeputizeOnJoin || !got.AnnounceTracks {
		t.Error("boolean settings not preserved")
	}
	if !got.HasPassword() || got.Password != "hunter2" {
		t.Errorf("Password = %q, want literal %q", got.Password, "hunter2")
	}

	if !repo.RoomExists(ctx, "room-1") {
		t.Error("RoomExists() = false for saved room")
	}

	ids := repo.RoomIDs(ctx)
	if len(ids) != 1 || ids[0] != "room-1" {
		t.Errorf("RoomIDs() = %v, want [room-1]", ids)
	}
}

func TestFindRoomMissing(t *testing.T) {
	repo, _ := newTestRepo(t)

	if got := repo.FindRoom(context.Background(), "nope"); got != nil {
		t.Errorf("FindRoom() = %+v, want nil for missing room", got)
	}
}

func TestUpdateRoomPatchesOnlyProvidedFields(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	repo.SaveRoom(ctx, testRoom("room-1"))

	title := "Saturday Vibes"
	persistent := true
	repo.UpdateRoom(ctx, "room-1", &models.RoomPatch{
		Title:      &title,
		Persistent: &persistent,
	})

	got := repo.FindRoom(ctx, "room-1")
	if got.Title != "Saturday Vibes" {
		t.Errorf("Title = %q, want patched value", got.Title)
	}
	if !got.Persistent {
		t.Error("Persistent not patched")
	}
	if got.Password != "hunter2" {
		t.Errorf("Password = %q, unpatched field should survive", got.Password)
	}
	if !got.FetchMeta {
		t.Error("FetchMeta should survive a partial patch")
	}
}

func TestDeleteRoomRemovesAllState(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	repo.SaveRoom(ctx, testRoom("room-1"))
	repo.AddOnlineUser(ctx, "room-1", "user-1")
	repo.PersistMessage(ctx, "room-1", models.Message{ID: "m1", Body: "hi", SentAt: time.Now()})

	repo.DeleteRoom(ctx, "room-1")

	if repo.RoomExists(ctx, "room-1") {
		t.Error("RoomExists() = true after delete")
	}
	if ids := repo.RoomIDs(ctx); len(ids) != 0 {
		t.Errorf("RoomIDs() = %v after delete, want empty", ids)
	}
	for _, key := range mr.Keys() {
		if key != "rooms" && len(key) > 5 && key[:5] == "room:" {
			t.Errorf("leftover room key after delete: %s", key)
		}
	}
}

func TestSetQueueReconciles(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Millisecond)
	original := models.QueueEntry{
		URI: "spotify:track:a", AddedBy: "user-1", AddedByName: "Alice", AddedAt: base,
	}
	repo.AddToQueue(ctx, "room-1", original)

	// Snapshot contains the same track with different attribution plus a new one.
	fresh := []models.QueueEntry{
		{URI: "spotify:track:a", AddedBy: "player", AddedByName: "Player", AddedAt: base.Add(time.Minute)},
		{URI: "spotify:track:b", AddedBy: "user-2", AddedByName: "Bob", AddedAt: base.Add(2 * time.Minute)},
	}
	repo.SetQueue(ctx, "room-1", fresh)

	queue := repo.GetQueue(ctx, "room-1")
	if len(queue) != 2 {
		t.Fatalf("queue length = %d, want 2", len(queue))
	}
	if queue[0].URI != "spotify:track:a" || queue[0].AddedBy != "user-1" {
		t.Errorf("entry present in both snapshots must keep its proposer, got %+v", queue[0])
	}
	if queue[1].URI != "spotify:track:b" || queue[1].AddedBy != "user-2" {
		t.Errorf("new entry not added, got %+v", queue[1])
	}

	// Same snapshot again changes nothing.
	repo.SetQueue(ctx, "room-1", fresh)
	again := repo.GetQueue(ctx, "room-1")
	if len(again) != 2 || again[0].AddedBy != "user-1" {
		t.Errorf("second reconcile with identical snapshot changed the queue: %+v", again)
	}

	// Dropping a track from the snapshot removes it.
	repo.SetQueue(ctx, "room-1", fresh[1:])
	final := repo.GetQueue(ctx, "room-1")
	if len(final) != 1 || final[0].URI != "spotify:track:b" {
		t.Errorf("queue after removal = %+v, want only track b", final)
	}
}

func TestReactionsDualIndex(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	msgSubject := models.ReactionSubject{Type: models.ReactToMessage, ID: "msg-1"}
	trackSubject := models.ReactionSubject{Type: models.ReactToTrack, ID: "spotify:track:a"}

	repo.AddReaction(ctx, "room-1", models.Reaction{Emoji: "🔥", UserID: "user-1", Subject: msgSubject})
	repo.AddReaction(ctx, "room-1", models.Reaction{Emoji: "🔥", UserID: "user-2", Subject: msgSubject})
	repo.AddReaction(ctx, "room-1", models.Reaction{Emoji: "❤️", UserID: "user-1", Subject: trackSubject})

	// Re-adding the same (subject, user, emoji) does not duplicate.
	repo.AddReaction(ctx, "room-1", models.Reaction{Emoji: "🔥", UserID: "user-1", Subject: msgSubject})

	byMsg := repo.GetSubjectReactions(ctx, "room-1", msgSubject)
	if len(byMsg) != 2 {
		t.Errorf("message reactions = %d, want 2", len(byMsg))
	}

	all := repo.GetAllRoomReactions(ctx, "room-1")
	if len(all.Message["msg-1"]) != 2 {
		t.Errorf("bucketed message reactions = %d, want 2", len(all.Message["msg-1"]))
	}
	if len(all.Track["spotify:track:a"]) != 1 {
		t.Errorf("bucketed track reactions = %d, want 1", len(all.Track["spotify:track:a"]))
	}

	repo.RemoveReaction(ctx, "room-1", models.Reaction{Emoji: "🔥", UserID: "user-2", Subject: msgSubject})
	if got := repo.GetSubjectReactions(ctx, "room-1", msgSubject); len(got) != 1 {
		t.Errorf("message reactions after remove = %d, want 1", len(got))
	}

	// Removing a reaction that never existed is a no-op.
	repo.RemoveReaction(ctx, "room-1", models.Reaction{Emoji: "👀", UserID: "user-9", Subject: msgSubject})
	if got := repo.GetSubjectReactions(ctx, "room-1", msgSubject); len(got) != 1 {
		t.Errorf("phantom remove changed reactions: %d", len(got))
	}
}

func TestOnlineAndTyping(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	repo.SaveUser(ctx, &models.User{ID: "user-1", Username: "Alice", Status: models.StatusParticipating})
	repo.AddOnlineUser(ctx, "room-1", "user-1")
	repo.AddTyping(ctx, "room-1", "user-1")

	if !repo.IsOnline(ctx, "room-1", "user-1") {
		t.Error("IsOnline() = false after AddOnlineUser")
	}
	if repo.OnlineCount(ctx, "room-1") != 1 {
		t.Error("OnlineCount() != 1")
	}
	if typing := repo.GetTyping(ctx, "room-1"); len(typing) != 1 {
		t.Errorf("GetTyping() = %v, want [user-1]", typing)
	}

	users := repo.GetRoomUsers(ctx, "room-1")
	if len(users) != 1 || users[0].Username != "Alice" {
		t.Errorf("GetRoomUsers() = %+v, want Alice", users)
	}

	// Leaving clears both presence and typing state.
	repo.RemoveOnlineUser(ctx, "room-1", "user-1")
	if repo.IsOnline(ctx, "room-1", "user-1") {
		t.Error("IsOnline() = true after RemoveOnlineUser")
	}
	if typing := repo.GetTyping(ctx, "room-1"); len(typing) != 0 {
		t.Errorf("GetTyping() = %v after leave, want empty", typing)
	}
}

func TestRoomExpiry(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	repo.SaveRoom(ctx, testRoom("room-1"))

	if repo.RoomHasTTL(ctx, "room-1") {
		t.Error("fresh room should have no TTL")
	}

	repo.ExpireRoom(ctx, "room-1", 15*time.Minute)
	if !repo.RoomHasTTL(ctx, "room-1") {
		t.Error("RoomHasTTL() = false after ExpireRoom")
	}

	repo.PersistRoom(ctx, "room-1")
	if repo.RoomHasTTL(ctx, "room-1") {
		t.Error("RoomHasTTL() = true after PersistRoom")
	}

	// Expired keys disappear; the index entry is repaired separately.
	repo.ExpireRoom(ctx, "room-1", time.Minute)
	mr.FastForward(2 * time.Minute)
	if repo.RoomExists(ctx, "room-1") {
		t.Error("RoomExists() = true after the TTL elapsed")
	}
	repo.DropFromIndex(ctx, "room-1")
	if ids := repo.RoomIDs(ctx); len(ids) != 0 {
		t.Errorf("RoomIDs() = %v after index repair, want empty", ids)
	}
}

func TestCurrentRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	if repo.GetCurrent(ctx, "room-1") != nil {
		t.Error("GetCurrent() != nil before any save")
	}

	repo.SaveCurrent(ctx, "room-1", &models.Current{
		Track: &models.Track{
			URI: "spotify:track:a", Title: "Song", Artist: "Band",
			Album: "Record", DurationMS: 215000, Playing: true,
		},
		Station: &models.StationMeta{Title: "FM One", Genre: "jazz", Bitrate: 192, Listeners: 12},
	})

	got := repo.GetCurrent(ctx, "room-1")
	if got == nil || got.Track == nil {
		t.Fatal("GetCurrent() lost the track")
	}
	if got.Track.URI != "spotify:track:a" || got.Track.DurationMS != 215000 || !got.Track.Playing {
		t.Errorf("track fields = %+v", got.Track)
	}
	if got.Station == nil || got.Station.Bitrate != 192 {
		t.Errorf("station fields = %+v", got.Station)
	}
	if got.LastUpdatedAt.IsZero() {
		t.Error("LastUpdatedAt not set")
	}

	repo.ClearCurrent(ctx, "room-1")
	if repo.GetCurrent(ctx, "room-1") != nil {
		t.Error("GetCurrent() != nil after clear")
	}
}

func TestMessagesNewestFirst(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Millisecond)
	for i, body := range []string{"first", "second", "third"} {
		repo.PersistMessage(ctx, "room-1", models.Message{
			ID:     body,
			UserID: "user-1",
			Body:   body,
			SentAt: base.Add(time.Duration(i) * time.Second),
		})
	}

	got := repo.GetMessages(ctx, "room-1", 0, 2)
	if len(got) != 2 {
		t.Fatalf("GetMessages() = %d messages, want 2", len(got))
	}
	if got[0].Body != "third" || got[1].Body != "second" {
		t.Errorf("order = [%s %s], want newest first", got[0].Body, got[1].Body)
	}

	rest := repo.GetMessages(ctx, "room-1", 2, 2)
	if len(rest) != 1 || rest[0].Body != "first" {
		t.Errorf("offset page = %+v, want [first]", rest)
	}
}

func TestPlaylistOldestFirst(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Millisecond)
	for i, title := range []string{"one", "two", "three"} {
		repo.AddTrackToRoomPlaylist(ctx, "room-1", models.PlaylistTrack{
			URI:      "spotify:track:" + title,
			Title:    title,
			PlayedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	got := repo.GetRoomPlaylist(ctx, "room-1")
	if len(got) != 3 {
		t.Fatalf("playlist length = %d, want 3", len(got))
	}
	if got[0].Title != "one" || got[2].Title != "three" {
		t.Errorf("order = [%s %s %s], want oldest first", got[0].Title, got[1].Title, got[2].Title)
	}
}

func TestProviderToken(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	if token := repo.ProviderToken(ctx, "user-1"); token != "" {
		t.Errorf("ProviderToken() = %q for unknown user, want empty", token)
	}

	repo.SaveUser(ctx, &models.User{ID: "user-1", Username: "Alice"})
	repo.SaveProviderToken(ctx, "user-1", "tok-abc")

	if token := repo.ProviderToken(ctx, "user-1"); token != "tok-abc" {
		t.Errorf("ProviderToken() = %q, want tok-abc", token)
	}
}
