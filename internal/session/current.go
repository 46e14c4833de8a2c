package session

import (
	"context"
	"strconv"
	"time"

	"github.com/waveroom/backend/internal/models"
	"github.com/waveroom/backend/internal/store"
)

// GetCurrent returns the room's now-playing cache, or nil when playback is
// stopped or the cache has never been written.
func (r *Repository) GetCurrent(ctx context.Context, roomID string) *models.Current {
	m, err := r.rdb.HGetAll(ctx, store.RoomCurrentKey(roomID)).Result()
	if err != nil {
		r.logErr(ctx, "getCurrent", err)
		return nil
	}
	if len(m) == 0 {
		return nil
	}
	cur := &models.Current{LastUpdatedAt: parseTime(m["lastUpdatedAt"])}
	if m["uri"] != "" || m["title"] != "" {
		cur.Track = &models.Track{
			URI:        m["uri"],
			Title:      m["title"],
			Artist:     m["artist"],
			Album:      m["album"],
			ArtworkURL: m["artworkUrl"],
			DurationMS: parseInt64(m["durationMs"]),
			Playing:    parseBool(m["playing"]),
		}
	}
	if m["stationTitle"] != "" {
		cur.Station = &models.StationMeta{
			Title:     m["stationTitle"],
			Genre:     m["stationGenre"],
			Bitrate:   parseInt(m["stationBitrate"]),
			Listeners: parseInt(m["stationListeners"]),
		}
	}
	return cur
}

// SaveCurrent overwrites the now-playing cache wholesale.
func (r *Repository) SaveCurrent(ctx context.Context, roomID string, cur *models.Current) {
	fields := map[string]interface{}{
		"lastUpdatedAt": formatTime(time.Now()),
	}
	if cur.Track != nil {
		fields["uri"] = cur.Track.URI
		fields["title"] = cur.Track.Title
		fields["artist"] = cur.Track.Artist
		fields["album"] = cur.Track.Album
		fields["artworkUrl"] = cur.Track.ArtworkURL
		fields["durationMs"] = strconv.FormatInt(cur.Track.DurationMS, 10)
		fields["playing"] = strconv.FormatBool(cur.Track.Playing)
	}
	if cur.Station != nil {
		fields["stationTitle"] = cur.Station.Title
		fields["stationGenre"] = cur.Station.Genre
		fields["stationBitrate"] = strconv.Itoa(cur.Station.Bitrate)
		fields["stationListeners"] = strconv.Itoa(cur.Station.Listeners)
	}
	key := store.RoomCurrentKey(roomID)
	r.logErr(ctx, "saveCurrent.clear", r.rdb.Del(ctx, key).Err())
	r.logErr(ctx, "saveCurrent", r.rdb.HSet(ctx, key, fields).Err())
}

// ClearCurrent drops the cache entirely; reads return nil afterwards.
func (r *Repository) ClearCurrent(ctx context.Context, roomID string) {
	r.logErr(ctx, "clearCurrent", r.rdb.Del(ctx, store.RoomCurrentKey(roomID)).Err())
}
