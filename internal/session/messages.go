package session

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/waveroom/backend/internal/models"
	"github.com/waveroom/backend/internal/store"
)

// PersistMessage appends a chat message to the room's time-ordered log.
func (r *Repository) PersistMessage(ctx context.Context, roomID string, msg models.Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		r.logErr(ctx, "persistMessage.marshal", err)
		return
	}
	r.logErr(ctx, "persistMessage", r.rdb.ZAdd(ctx, store.RoomMessagesKey(roomID), &redis.Z{
		Score:  float64(msg.SentAt.UnixMilli()),
		Member: raw,
	}).Err())
}

// GetMessages pages through the room's messages newest-first.
func (r *Repository) GetMessages(ctx context.Context, roomID string, offset, size int) []models.Message {
	if size <= 0 {
		return nil
	}
	stop := int64(offset + size - 1)
	members, err := r.rdb.ZRevRange(ctx, store.RoomMessagesKey(roomID), int64(offset), stop).Result()
	if err != nil {
		r.logErr(ctx, "getMessages", err)
		return nil
	}
	msgs := make([]models.Message, 0, len(members))
	for _, member := range members {
		var msg models.Message
		if err := json.Unmarshal([]byte(member), &msg); err != nil {
			r.logErr(ctx, "getMessages.unmarshal", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
