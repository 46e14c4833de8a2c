package events

import "github.com/waveroom/backend/internal/models"

// Cross-process pub/sub channels. Every server process pattern-subscribes to
// ChannelPattern and re-emits matching events to its locally attached
// sockets, including events it published itself; handlers downstream are
// idempotent against that redundant self-delivery.
const (
	ChannelNowPlaying        = "events.now_playing"
	ChannelPlaylistTrack     = "events.playlist_track_added"
	ChannelProviderAuthError = "events.provider_auth_error"
	ChannelStreamError       = "events.stream_error"
	ChannelRoomDeleted       = "events.room_deleted"
	ChannelRoomSettings      = "events.room_settings_updated"
	ChannelUserJoined        = "events.user_joined"
	ChannelPlaybackState     = "events.playback_state"
	ChannelRoomBroadcast     = "events.room_broadcast"
	ChannelPollThrottled     = "events.poll_throttled"

	ChannelPattern = "events.*"
)

// NowPlayingPayload announces a change to a room's current cache.
// A nil Current.Track means playback stopped and the cache was cleared.
type NowPlayingPayload struct {
	RoomID  string          `json:"roomId"`
	Current *models.Current `json:"current"`
}

// PlaylistTrackPayload announces a new playlist history entry.
type PlaylistTrackPayload struct {
	RoomID string               `json:"roomId"`
	Track  models.PlaylistTrack `json:"track"`
}

// ProviderAuthErrorPayload flags expired provider credentials for the
// affected user so their client can show a reconnect prompt.
type ProviderAuthErrorPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Error  string `json:"error"`
}

// StreamErrorPayload flags a radio stream fetch failure on the room.
type StreamErrorPayload struct {
	RoomID string `json:"roomId"`
	Error  string `json:"error"`
}

// RoomDeletedPayload tells connected clients the room is gone.
type RoomDeletedPayload struct {
	RoomID string `json:"roomId"`
}

// RoomSettingsPayload carries the merged room after a settings update.
type RoomSettingsPayload struct {
	RoomID string       `json:"roomId"`
	Room   *models.Room `json:"room"`
}

// UserJoinedPayload carries the full online list after a join.
type UserJoinedPayload struct {
	RoomID string        `json:"roomId"`
	User   *models.User  `json:"user,omitempty"`
	Users  []models.User `json:"users"`
}

// PlaybackStatePayload announces play/pause transitions.
type PlaybackStatePayload struct {
	RoomID  string `json:"roomId"`
	Playing bool   `json:"playing"`
}

// PollThrottledPayload announces an upstream rate limit: every process
// slows its polling to IntervalSeconds until the override key expires.
type PollThrottledPayload struct {
	IntervalSeconds int `json:"intervalSeconds"`
	WindowSeconds   int `json:"windowSeconds"`
}

// RoomBroadcastPayload is the generic cross-process wrapper for
// socket-originated room events (chat, typing, reactions, user updates):
// the fanout layer re-emits Event/Data to the room's sockets verbatim.
type RoomBroadcastPayload struct {
	RoomID string `json:"roomId"`
	Event  Type   `json:"event"`
	Data   any    `json:"data"`
}
