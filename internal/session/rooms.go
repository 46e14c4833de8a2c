package session

import (
	"context"
	"strconv"
	"time"

	"github.com/waveroom/backend/internal/models"
	"github.com/waveroom/backend/internal/store"
)

func roomToMap(room *models.Room) map[string]interface{} {
	return map[string]interface{}{
		"id":             room.ID,
		"creator":        room.Creator,
		"type":           string(room.Type),
		"title":          room.Title,
		"password":       room.Password,
		"fetchMeta":      strconv.FormatBool(room.FetchMeta),
		"radioUrl":       room.RadioURL,
		"radioMetaUrl":   room.RadioMetaURL,
		"radioProtocol":  room.RadioProtocol,
		"deputizeOnJoin": strconv.FormatBool(room.DeputizeOnJoin),
		"announceTracks": strconv.FormatBool(room.AnnounceTracks),
		"announceJoins":  strconv.FormatBool(room.AnnounceJoins),
		"persistent":     strconv.FormatBool(room.Persistent),
		"providerError":  room.ProviderError,
		"streamError":    room.StreamError,
		"createdAt":      formatTime(room.CreatedAt),
		"refreshedAt":    formatTime(room.RefreshedAt),
	}
}

func roomFromMap(m map[string]string) *models.Room {
	return &models.Room{
		ID:             m["id"],
		Creator:        m["creator"],
		Type:           models.RoomType(m["type"]),
		Title:          m["title"],
		Password:       m["password"],
		FetchMeta:      parseBool(m["fetchMeta"]),
		RadioURL:       m["radioUrl"],
		RadioMetaURL:   m["radioMetaUrl"],
		RadioProtocol:  m["radioProtocol"],
		DeputizeOnJoin: parseBool(m["deputizeOnJoin"]),
		AnnounceTracks: parseBool(m["announceTracks"]),
		AnnounceJoins:  parseBool(m["announceJoins"]),
		Persistent:     parseBool(m["persistent"]),
		ProviderError:  m["providerError"],
		StreamError:    m["streamError"],
		CreatedAt:      parseTime(m["createdAt"]),
		RefreshedAt:    parseTime(m["refreshedAt"]),
	}
}

// FindRoom returns the room, or nil when it is absent or the store failed.
func (r *Repository) FindRoom(ctx context.Context, roomID string) *models.Room {
	m, err := r.rdb.HGetAll(ctx, store.RoomDetailsKey(roomID)).Result()
	if err != nil {
		r.logErr(ctx, "findRoom", err)
		return nil
	}
	if len(m) == 0 {
		return nil
	}
	return roomFromMap(m)
}

// SaveRoom writes the full room hash and registers the room in the global
// and per-creator indexes.
func (r *Repository) SaveRoom(ctx context.Context, room *models.Room) {
	if err := r.rdb.HSet(ctx, store.RoomDetailsKey(room.ID), roomToMap(room)).Err(); err != nil {
		r.logErr(ctx, "saveRoom", err)
		return
	}
	r.logErr(ctx, "saveRoom.index", r.rdb.SAdd(ctx, store.RoomsKey, room.ID).Err())
	if room.Creator != "" {
		r.logErr(ctx, "saveRoom.userIndex", r.rdb.SAdd(ctx, store.UserRoomsKey(room.Creator), room.ID).Err())
	}
}

// UpdateRoom merges the non-nil patch fields into the stored hash.
// Fields absent from the patch keep their stored values.
func (r *Repository) UpdateRoom(ctx context.Context, roomID string, patch *models.RoomPatch) {
	fields := map[string]interface{}{}
	if patch.Title != nil {
		fields["title"] = *patch.Title
	}
	if patch.Password != nil {
		fields["password"] = *patch.Password
	}
	if patch.FetchMeta != nil {
		fields["fetchMeta"] = strconv.FormatBool(*patch.FetchMeta)
	}
	if patch.RadioURL != nil {
		fields["radioUrl"] = *patch.RadioURL
	}
	if patch.RadioMetaURL != nil {
		fields["radioMetaUrl"] = *patch.RadioMetaURL
	}
	if patch.RadioProtocol != nil {
		fields["radioProtocol"] = *patch.RadioProtocol
	}
	if patch.DeputizeOnJoin != nil {
		fields["deputizeOnJoin"] = strconv.FormatBool(*patch.DeputizeOnJoin)
	}
	if patch.AnnounceTracks != nil {
		fields["announceTracks"] = strconv.FormatBool(*patch.AnnounceTracks)
	}
	if patch.AnnounceJoins != nil {
		fields["announceJoins"] = strconv.FormatBool(*patch.AnnounceJoins)
	}
	if patch.Persistent != nil {
		fields["persistent"] = strconv.FormatBool(*patch.Persistent)
	}
	if patch.ProviderError != nil {
		fields["providerError"] = *patch.ProviderError
	}
	if patch.StreamError != nil {
		fields["streamError"] = *patch.StreamError
	}
	if len(fields) == 0 {
		return
	}
	fields["refreshedAt"] = formatTime(time.Now())
	r.logErr(ctx, "updateRoom", r.rdb.HSet(ctx, store.RoomDetailsKey(roomID), fields).Err())
}

// TouchRoom bumps the room's last-refreshed timestamp.
func (r *Repository) TouchRoom(ctx context.Context, roomID string) {
	r.logErr(ctx, "touchRoom", r.rdb.HSet(ctx, store.RoomDetailsKey(roomID),
		"refreshedAt", formatTime(time.Now())).Err())
}

// DeleteRoom removes every key scoped to the room and drops it from the
// indexes.
func (r *Repository) DeleteRoom(ctx context.Context, roomID string) {
	room := r.FindRoom(ctx, roomID)
	for _, key := range r.roomKeys(ctx, roomID) {
		r.logErr(ctx, "deleteRoom", r.rdb.Del(ctx, key).Err())
	}
	r.logErr(ctx, "deleteRoom.index", r.rdb.SRem(ctx, store.RoomsKey, roomID).Err())
	if room != nil && room.Creator != "" {
		r.logErr(ctx, "deleteRoom.userIndex", r.rdb.SRem(ctx, store.UserRoomsKey(room.Creator), roomID).Err())
	}
}

// RoomIDs returns every room ID known to the index.
func (r *Repository) RoomIDs(ctx context.Context) []string {
	ids, err := r.rdb.SMembers(ctx, store.RoomsKey).Result()
	if err != nil {
		r.logErr(ctx, "roomIDs", err)
		return nil
	}
	return ids
}

// RoomExists reports whether the room's detail hash is present.
func (r *Repository) RoomExists(ctx context.Context, roomID string) bool {
	n, err := r.rdb.Exists(ctx, store.RoomDetailsKey(roomID)).Result()
	if err != nil {
		r.logErr(ctx, "roomExists", err)
		return false
	}
	return n > 0
}

// DropFromIndex removes a room ID from the global index without touching
// its (already absent) keys.
func (r *Repository) DropFromIndex(ctx context.Context, roomID string) {
	r.logErr(ctx, "dropFromIndex", r.rdb.SRem(ctx, store.RoomsKey, roomID).Err())
}

// roomKeys enumerates every live key scoped to the room. SCAN is used so
// dynamically named keys (queued tracks, individual reactions) are included.
func (r *Repository) roomKeys(ctx context.Context, roomID string) []string {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, "room:"+roomID+":*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	r.logErr(ctx, "roomKeys", iter.Err())
	return keys
}
