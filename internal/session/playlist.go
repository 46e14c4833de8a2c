package session

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/waveroom/backend/internal/models"
	"github.com/waveroom/backend/internal/store"
)

// AddTrackToRoomPlaylist appends a history record, scored by play time so
// the playlist reads back in insertion order.
func (r *Repository) AddTrackToRoomPlaylist(ctx context.Context, roomID string, track models.PlaylistTrack) {
	raw, err := json.Marshal(track)
	if err != nil {
		r.logErr(ctx, "addTrackToRoomPlaylist.marshal", err)
		return
	}
	r.logErr(ctx, "addTrackToRoomPlaylist", r.rdb.ZAdd(ctx, store.RoomPlaylistKey(roomID), &redis.Z{
		Score:  float64(track.PlayedAt.UnixMilli()),
		Member: raw,
	}).Err())
}

// GetRoomPlaylist returns the full played-track history, oldest first.
func (r *Repository) GetRoomPlaylist(ctx context.Context, roomID string) []models.PlaylistTrack {
	members, err := r.rdb.ZRange(ctx, store.RoomPlaylistKey(roomID), 0, -1).Result()
	if err != nil {
		r.logErr(ctx, "getRoomPlaylist", err)
		return nil
	}
	tracks := make([]models.PlaylistTrack, 0, len(members))
	for _, member := range members {
		var track models.PlaylistTrack
		if err := json.Unmarshal([]byte(member), &track); err != nil {
			r.logErr(ctx, "getRoomPlaylist.unmarshal", err)
			continue
		}
		tracks = append(tracks, track)
	}
	return tracks
}
