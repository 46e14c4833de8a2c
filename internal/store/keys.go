package store

import "fmt"

// Key builders for the persisted schema. Every room-scoped key shares the
// room's TTL; user keys carry their own.
func RoomDetailsKey(roomID string) string { return fmt.Sprintf("room:%s:details", roomID) }
func RoomCurrentKey(roomID string) string { return fmt.Sprintf("room:%s:current", roomID) }
func RoomQueueKey(roomID string) string   { return fmt.Sprintf("room:%s:queue", roomID) }
func QueuedTrackKey(roomID, uri string) string {
	return fmt.Sprintf("room:%s:queued_track:%s", roomID, uri)
}
func RoomPlaylistKey(roomID string) string { return fmt.Sprintf("room:%s:playlist", roomID) }
func RoomMessagesKey(roomID string) string { return fmt.Sprintf("room:%s:messages", roomID) }
func ReactionsListKey(roomID, subjectType string) string {
	return fmt.Sprintf("room:%s:reactions_list:%s", roomID, subjectType)
}
func ReactionsSubjectKey(roomID, subjectType, subjectID string) string {
	return fmt.Sprintf("room:%s:reactions_list:%s:%s", roomID, subjectType, subjectID)
}
func ReactionKey(roomID, subjectType, subjectID, userID, emoji string) string {
	return fmt.Sprintf("room:%s:reaction:%s:%s:%s:%s", roomID, subjectType, subjectID, userID, emoji)
}
func OnlineUsersKey(roomID string) string { return fmt.Sprintf("room:%s:online_users", roomID) }
func DJsKey(roomID string) string         { return fmt.Sprintf("room:%s:djs", roomID) }
func TypingUsersKey(roomID string) string { return fmt.Sprintf("room:%s:typing_users", roomID) }
func UserKey(userID string) string        { return fmt.Sprintf("user:%s", userID) }
func UserRoomsKey(userID string) string   { return fmt.Sprintf("user:%s:rooms", userID) }

// RoomsKey indexes every known room ID.
const RoomsKey = "rooms"

// PollIntervalKey holds the shared scheduler interval in seconds. A throttle
// override writes it with a TTL; once the TTL lapses readers fall back to
// the configured default.
const PollIntervalKey = "polling:interval"
