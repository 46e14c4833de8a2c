// Package events defines the closed set of socket event types, the
// client-facing message envelope, and the cross-process pub/sub channels.
// Every server→client message is an Envelope; every cross-process payload
// carries the room ID it is scoped to.
package events

import "encoding/json"

// Type names a socket event. The set is closed: dispatch switches over it
// exhaustively, so adding an event is a compile-time-visible change.
type Type string

// Inbound (client → server) events.
const (
	Login           Type = "LOGIN"
	ChangeUsername  Type = "CHANGE_USERNAME"
	QueueSong       Type = "QUEUE_SONG"
	AddReaction     Type = "ADD_REACTION"
	RemoveReaction  Type = "REMOVE_REACTION"
	SetRoomSettings Type = "SET_ROOM_SETTINGS"
	DeputizeUser    Type = "DJ_DEPUTIZE_USER"
	SendMessage     Type = "SEND_MESSAGE"
	StartTyping     Type = "START_TYPING"
	StopTyping      Type = "STOP_TYPING"
)

// Outbound (server → client) events.
const (
	Init                Type = "INIT"
	UserJoined          Type = "USER_JOINED"
	UserLeft            Type = "USER_LEFT"
	UsersUpdated        Type = "USERS_UPDATED"
	NowPlaying          Type = "NOW_PLAYING"
	PlaylistTrackAdded  Type = "PLAYLIST_TRACK_ADDED"
	PlaybackState       Type = "PLAYBACK_STATE"
	ProviderAuthError   Type = "PROVIDER_AUTH_ERROR"
	StreamError         Type = "STREAM_ERROR"
	RoomDeleted         Type = "ROOM_DELETED"
	RoomSettingsUpdated Type = "ROOM_SETTINGS_UPDATED"
	SongQueued          Type = "SONG_QUEUED"
	ReactionsUpdated    Type = "REACTIONS_UPDATED"
	NewMessage          Type = "NEW_MESSAGE"
	TypingUpdated       Type = "TYPING_UPDATED"
	NotFound            Type = "NOT_FOUND"
	Unauthorized        Type = "UNAUTHORIZED"
	ErrorEvent          Type = "ERROR"
)

// Envelope is the wire format for every server→client message.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Marshal builds a serialized Envelope. Marshal failures are reported so
// callers can decide whether the payload was user input or a bug.
func Marshal(t Type, data any) ([]byte, error) {
	env := Envelope{Type: t}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}
