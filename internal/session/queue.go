package session

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/waveroom/backend/internal/models"
	"github.com/waveroom/backend/internal/store"
)

// AddToQueue records a proposed track: the URI joins the room's queue set
// and the full entry is stored under its own key.
func (r *Repository) AddToQueue(ctx context.Context, roomID string, entry models.QueueEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		r.logErr(ctx, "addToQueue.marshal", err)
		return
	}
	r.logErr(ctx, "addToQueue", r.rdb.SAdd(ctx, store.RoomQueueKey(roomID), entry.URI).Err())
	r.logErr(ctx, "addToQueue.entry", r.rdb.Set(ctx, store.QueuedTrackKey(roomID, entry.URI), raw, 0).Err())
}

// GetQueue returns the room's queue entries ordered by when they were added.
func (r *Repository) GetQueue(ctx context.Context, roomID string) []models.QueueEntry {
	uris, err := r.rdb.SMembers(ctx, store.RoomQueueKey(roomID)).Result()
	if err != nil {
		r.logErr(ctx, "getQueue", err)
		return nil
	}
	entries := make([]models.QueueEntry, 0, len(uris))
	for _, uri := range uris {
		raw, err := r.rdb.Get(ctx, store.QueuedTrackKey(roomID, uri)).Result()
		if err != nil {
			r.logErr(ctx, "getQueue.entry", err)
			continue
		}
		var entry models.QueueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			r.logErr(ctx, "getQueue.unmarshal", err)
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AddedAt.Before(entries[j].AddedAt)
	})
	return entries
}

// RemoveFromQueue drops one entry by URI.
func (r *Repository) RemoveFromQueue(ctx context.Context, roomID, uri string) {
	r.logErr(ctx, "removeFromQueue", r.rdb.SRem(ctx, store.RoomQueueKey(roomID), uri).Err())
	r.logErr(ctx, "removeFromQueue.entry", r.rdb.Del(ctx, store.QueuedTrackKey(roomID, uri)).Err())
}

// SetQueue reconciles a full provider-queue snapshot against the stored
// queue by URI set difference: stored entries absent from the snapshot are
// deleted, snapshot entries absent from the store are added, and entries
// present in both are left untouched so the original proposer attribution
// survives. Calling it twice with the same snapshot is a no-op the second
// time.
func (r *Repository) SetQueue(ctx context.Context, roomID string, fresh []models.QueueEntry) {
	stored, err := r.rdb.SMembers(ctx, store.RoomQueueKey(roomID)).Result()
	if err != nil {
		r.logErr(ctx, "setQueue", err)
		return
	}

	freshByURI := make(map[string]models.QueueEntry, len(fresh))
	for _, entry := range fresh {
		freshByURI[entry.URI] = entry
	}
	storedSet := make(map[string]struct{}, len(stored))
	for _, uri := range stored {
		storedSet[uri] = struct{}{}
	}

	for _, uri := range stored {
		if _, ok := freshByURI[uri]; !ok {
			r.RemoveFromQueue(ctx, roomID, uri)
		}
	}
	for uri, entry := range freshByURI {
		if _, ok := storedSet[uri]; !ok {
			r.AddToQueue(ctx, roomID, entry)
		}
	}
}
