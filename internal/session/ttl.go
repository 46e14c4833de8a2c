package session

import (
	"context"
	"time"

	"github.com/waveroom/backend/internal/store"
)

// PersistRoom clears the TTL from every key scoped to the room. The
// Connection Handler calls this whenever the room's creator logs in.
func (r *Repository) PersistRoom(ctx context.Context, roomID string) {
	for _, key := range r.roomKeys(ctx, roomID) {
		r.logErr(ctx, "persistRoom", r.rdb.Persist(ctx, key).Err())
	}
}

// ExpireRoom puts every room-scoped key on the same expiry clock. Used by
// the lifecycle sweep to start a grace period once the creator goes offline.
func (r *Repository) ExpireRoom(ctx context.Context, roomID string, ttl time.Duration) {
	for _, key := range r.roomKeys(ctx, roomID) {
		r.logErr(ctx, "expireRoom", r.rdb.Expire(ctx, key, ttl).Err())
	}
}

// RoomHasTTL reports whether an expiry clock is already running on the
// room's detail key.
func (r *Repository) RoomHasTTL(ctx context.Context, roomID string) bool {
	ttl, err := r.rdb.TTL(ctx, store.RoomDetailsKey(roomID)).Result()
	if err != nil {
		r.logErr(ctx, "roomHasTTL", err)
		return false
	}
	return ttl > 0
}
