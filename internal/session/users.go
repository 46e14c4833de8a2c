package session

import (
	"context"
	"strconv"

	"github.com/waveroom/backend/internal/models"
	"github.com/waveroom/backend/internal/store"
)

func userToMap(user *models.User) map[string]interface{} {
	return map[string]interface{}{
		"id":           user.ID,
		"username":     user.Username,
		"connectionId": user.ConnectionID,
		"roomId":       user.RoomID,
		"isDj":         strconv.FormatBool(user.IsDJ),
		"isDeputyDj":   strconv.FormatBool(user.IsDeputyDJ),
		"isAdmin":      strconv.FormatBool(user.IsAdmin),
		"status":       string(user.Status),
		"connectedAt":  formatTime(user.ConnectedAt),
	}
}

func userFromMap(m map[string]string) *models.User {
	return &models.User{
		ID:           m["id"],
		Username:     m["username"],
		ConnectionID: m["connectionId"],
		RoomID:       m["roomId"],
		IsDJ:         parseBool(m["isDj"]),
		IsDeputyDJ:   parseBool(m["isDeputyDj"]),
		IsAdmin:      parseBool(m["isAdmin"]),
		Status:       models.UserStatus(m["status"]),
		ConnectedAt:  parseTime(m["connectedAt"]),
	}
}

// FindUser returns the user, or nil when absent.
func (r *Repository) FindUser(ctx context.Context, userID string) *models.User {
	m, err := r.rdb.HGetAll(ctx, store.UserKey(userID)).Result()
	if err != nil {
		r.logErr(ctx, "findUser", err)
		return nil
	}
	if len(m) == 0 {
		return nil
	}
	return userFromMap(m)
}

// SaveUser upserts the full user hash.
func (r *Repository) SaveUser(ctx context.Context, user *models.User) {
	r.logErr(ctx, "saveUser", r.rdb.HSet(ctx, store.UserKey(user.ID), userToMap(user)).Err())
}

// PersistUser clears any TTL on the user's key while they are connected.
func (r *Repository) PersistUser(ctx context.Context, userID string) {
	r.logErr(ctx, "persistUser", r.rdb.Persist(ctx, store.UserKey(userID)).Err())
}

// ProviderToken returns the streaming-provider access token stored for the
// user by the external OAuth flow, or "" when none is present.
func (r *Repository) ProviderToken(ctx context.Context, userID string) string {
	token, err := r.rdb.HGet(ctx, store.UserKey(userID), "providerToken").Result()
	if err != nil {
		r.logErr(ctx, "providerToken", err)
		return ""
	}
	return token
}

// SaveProviderToken stores the user's streaming-provider access token
// alongside their record.
func (r *Repository) SaveProviderToken(ctx context.Context, userID, token string) {
	r.logErr(ctx, "saveProviderToken", r.rdb.HSet(ctx, store.UserKey(userID), "providerToken", token).Err())
}

// GetRoomUsers resolves the room's online set to full user records.
func (r *Repository) GetRoomUsers(ctx context.Context, roomID string) []models.User {
	ids, err := r.rdb.SMembers(ctx, store.OnlineUsersKey(roomID)).Result()
	if err != nil {
		r.logErr(ctx, "getRoomUsers", err)
		return nil
	}
	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u := r.FindUser(ctx, id); u != nil {
			users = append(users, *u)
		}
	}
	return users
}

// AddOnlineUser registers the user in the room's online set.
func (r *Repository) AddOnlineUser(ctx context.Context, roomID, userID string) {
	r.logErr(ctx, "addOnlineUser", r.rdb.SAdd(ctx, store.OnlineUsersKey(roomID), userID).Err())
}

// RemoveOnlineUser drops the user from the online and typing sets and starts
// the user key's expiry clock.
func (r *Repository) RemoveOnlineUser(ctx context.Context, roomID, userID string) {
	r.logErr(ctx, "removeOnlineUser", r.rdb.SRem(ctx, store.OnlineUsersKey(roomID), userID).Err())
	r.logErr(ctx, "removeOnlineUser.typing", r.rdb.SRem(ctx, store.TypingUsersKey(roomID), userID).Err())
	r.logErr(ctx, "removeOnlineUser.expire", r.rdb.Expire(ctx, store.UserKey(userID), r.userTTL).Err())
}

// IsOnline reports room online-set membership.
func (r *Repository) IsOnline(ctx context.Context, roomID, userID string) bool {
	ok, err := r.rdb.SIsMember(ctx, store.OnlineUsersKey(roomID), userID).Result()
	if err != nil {
		r.logErr(ctx, "isOnline", err)
		return false
	}
	return ok
}

// OnlineCount returns the size of the room's online set.
func (r *Repository) OnlineCount(ctx context.Context, roomID string) int {
	n, err := r.rdb.SCard(ctx, store.OnlineUsersKey(roomID)).Result()
	if err != nil {
		r.logErr(ctx, "onlineCount", err)
		return 0
	}
	return int(n)
}

// DJ set membership.

func (r *Repository) AddDJ(ctx context.Context, roomID, userID string) {
	r.logErr(ctx, "addDJ", r.rdb.SAdd(ctx, store.DJsKey(roomID), userID).Err())
}

func (r *Repository) RemoveDJ(ctx context.Context, roomID, userID string) {
	r.logErr(ctx, "removeDJ", r.rdb.SRem(ctx, store.DJsKey(roomID), userID).Err())
}

func (r *Repository) IsDJ(ctx context.Context, roomID, userID string) bool {
	ok, err := r.rdb.SIsMember(ctx, store.DJsKey(roomID), userID).Result()
	if err != nil {
		r.logErr(ctx, "isDJ", err)
		return false
	}
	return ok
}

// Typing set membership.

func (r *Repository) AddTyping(ctx context.Context, roomID, userID string) {
	r.logErr(ctx, "addTyping", r.rdb.SAdd(ctx, store.TypingUsersKey(roomID), userID).Err())
}

func (r *Repository) RemoveTyping(ctx context.Context, roomID, userID string) {
	r.logErr(ctx, "removeTyping", r.rdb.SRem(ctx, store.TypingUsersKey(roomID), userID).Err())
}

func (r *Repository) GetTyping(ctx context.Context, roomID string) []string {
	ids, err := r.rdb.SMembers(ctx, store.TypingUsersKey(roomID)).Result()
	if err != nil {
		r.logErr(ctx, "getTyping", err)
		return nil
	}
	return ids
}
