package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/waveroom/backend/internal/models"
	"github.com/waveroom/backend/internal/store"
)

// Reactions are indexed twice: a per-type sorted set answers "all reactions
// in the room", a per-subject sorted set answers "reactions for this
// message/track". Both hold the individual reaction key as member, so the
// (subject, user, emoji) triple is naturally unique and re-adding is
// idempotent.

func reactionKeys(roomID string, reaction models.Reaction) (item, typeList, subjectList string) {
	sub := reaction.Subject
	item = store.ReactionKey(roomID, string(sub.Type), sub.ID, reaction.UserID, reaction.Emoji)
	typeList = store.ReactionsListKey(roomID, string(sub.Type))
	subjectList = store.ReactionsSubjectKey(roomID, string(sub.Type), sub.ID)
	return
}

// AddReaction stores the reaction and registers it in both indexes.
func (r *Repository) AddReaction(ctx context.Context, roomID string, reaction models.Reaction) {
	raw, err := json.Marshal(reaction)
	if err != nil {
		r.logErr(ctx, "addReaction.marshal", err)
		return
	}
	item, typeList, subjectList := reactionKeys(roomID, reaction)
	score := float64(time.Now().UnixMilli())
	r.logErr(ctx, "addReaction", r.rdb.Set(ctx, item, raw, 0).Err())
	r.logErr(ctx, "addReaction.typeIndex", r.rdb.ZAdd(ctx, typeList, &redis.Z{Score: score, Member: item}).Err())
	r.logErr(ctx, "addReaction.subjectIndex", r.rdb.ZAdd(ctx, subjectList, &redis.Z{Score: score, Member: item}).Err())
}

// RemoveReaction deletes the reaction and both index entries. Removing a
// reaction that was never added is a no-op.
func (r *Repository) RemoveReaction(ctx context.Context, roomID string, reaction models.Reaction) {
	item, typeList, subjectList := reactionKeys(roomID, reaction)
	r.logErr(ctx, "removeReaction", r.rdb.Del(ctx, item).Err())
	r.logErr(ctx, "removeReaction.typeIndex", r.rdb.ZRem(ctx, typeList, item).Err())
	r.logErr(ctx, "removeReaction.subjectIndex", r.rdb.ZRem(ctx, subjectList, item).Err())
}

// GetSubjectReactions returns the live reactions for one subject.
func (r *Repository) GetSubjectReactions(ctx context.Context, roomID string, subject models.ReactionSubject) []models.Reaction {
	listKey := store.ReactionsSubjectKey(roomID, string(subject.Type), subject.ID)
	return r.resolveReactionList(ctx, listKey)
}

// GetAllRoomReactions returns every live reaction bucketed by subject type
// and subject ID.
func (r *Repository) GetAllRoomReactions(ctx context.Context, roomID string) models.RoomReactions {
	result := models.RoomReactions{
		Message: map[string][]models.Reaction{},
		Track:   map[string][]models.Reaction{},
	}
	for _, subjectType := range []models.ReactionSubjectType{models.ReactToMessage, models.ReactToTrack} {
		listKey := store.ReactionsListKey(roomID, string(subjectType))
		for _, reaction := range r.resolveReactionList(ctx, listKey) {
			bucket := result.Message
			if subjectType == models.ReactToTrack {
				bucket = result.Track
			}
			bucket[reaction.Subject.ID] = append(bucket[reaction.Subject.ID], reaction)
		}
	}
	return result
}

// resolveReactionList loads the reactions referenced by an index sorted set,
// skipping dangling references left by a concurrent remove.
func (r *Repository) resolveReactionList(ctx context.Context, listKey string) []models.Reaction {
	itemKeys, err := r.rdb.ZRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		r.logErr(ctx, "reactionList", err)
		return nil
	}
	reactions := make([]models.Reaction, 0, len(itemKeys))
	for _, itemKey := range itemKeys {
		raw, err := r.rdb.Get(ctx, itemKey).Result()
		if err != nil {
			r.logErr(ctx, "reactionList.item", err)
			continue
		}
		var reaction models.Reaction
		if err := json.Unmarshal([]byte(raw), &reaction); err != nil {
			r.logErr(ctx, "reactionList.unmarshal", err)
			continue
		}
		reactions = append(reactions, reaction)
	}
	return reactions
}
