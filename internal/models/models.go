// Package models defines the entities held in the ephemeral room store and
// the request/response shapes exchanged with clients.
package models

import "time"

// RoomType distinguishes rooms that mirror a streaming account's playback
// from rooms that relay an internet radio stream.
type RoomType string

const (
	RoomTypeJukebox RoomType = "jukebox"
	RoomTypeRadio   RoomType = "radio"
)

// Room is a listening-party session. It scopes every other entity.
// The password is never serialized to clients.
type Room struct {
	ID             string    `json:"id"`
	Creator        string    `json:"creator"`
	Type           RoomType  `json:"type"`
	Title          string    `json:"title"`
	Password       string    `json:"-"`
	FetchMeta      bool      `json:"fetchMeta"`
	RadioURL       string    `json:"radioUrl,omitempty"`
	RadioMetaURL   string    `json:"radioMetaUrl,omitempty"`
	RadioProtocol  string    `json:"radioProtocol,omitempty"`
	DeputizeOnJoin bool      `json:"deputizeOnJoin"`
	AnnounceTracks bool      `json:"announceTracks"`
	AnnounceJoins  bool      `json:"announceJoins"`
	Persistent     bool      `json:"persistent"`
	ProviderError  string    `json:"providerError,omitempty"`
	StreamError    string    `json:"streamError,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	RefreshedAt    time.Time `json:"refreshedAt"`
}

// HasPassword reports whether joining the room requires a password.
func (r *Room) HasPassword() bool {
	return r.Password != ""
}

// RoomPatch is a partial room update. Nil fields are left untouched by
// UpdateRoom, which lets settings payloads merge into the stored hash.
type RoomPatch struct {
	Title          *string `json:"title,omitempty"`
	Password       *string `json:"password,omitempty"`
	FetchMeta      *bool   `json:"fetchMeta,omitempty"`
	RadioURL       *string `json:"radioUrl,omitempty"`
	RadioMetaURL   *string `json:"radioMetaUrl,omitempty"`
	RadioProtocol  *string `json:"radioProtocol,omitempty"`
	DeputizeOnJoin *bool   `json:"deputizeOnJoin,omitempty"`
	AnnounceTracks *bool   `json:"announceTracks,omitempty"`
	AnnounceJoins  *bool   `json:"announceJoins,omitempty"`
	Persistent     *bool   `json:"persistent,omitempty"`
	ProviderError  *string `json:"providerError,omitempty"`
	StreamError    *string `json:"streamError,omitempty"`
}

// UserStatus distinguishes users actively controlling playback from those
// only listening along.
type UserStatus string

const (
	StatusParticipating UserStatus = "participating"
	StatusListening     UserStatus = "listening"
)

// User is a connected (or recently connected) participant. It is persisted
// keyed by user ID independent of any room; per-room online and DJ sets hold
// back-references.
type User struct {
	ID           string     `json:"userId"`
	Username     string     `json:"username"`
	ConnectionID string     `json:"connectionId,omitempty"`
	RoomID       string     `json:"roomId,omitempty"`
	IsDJ         bool       `json:"isDj"`
	IsDeputyDJ   bool       `json:"isDeputyDj"`
	IsAdmin      bool       `json:"isAdmin"`
	Status       UserStatus `json:"status"`
	ConnectedAt  time.Time  `json:"connectedAt"`
}

// Track is a provider track's denormalized metadata.
type Track struct {
	URI        string `json:"uri"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
	DurationMS int64  `json:"durationMs,omitempty"`
	Playing    bool   `json:"playing"`
}

// SameTrack reports whether two tracks refer to the same recording.
// URIs are compared when both sides carry one; otherwise title+artist.
func SameTrack(a, b *Track) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.URI != "" && b.URI != "" {
		return a.URI == b.URI
	}
	return a.Title == b.Title && a.Artist == b.Artist
}

// StationMeta is raw metadata polled from a radio stream's status endpoint.
type StationMeta struct {
	Title     string `json:"title"`
	Genre     string `json:"genre,omitempty"`
	Bitrate   int    `json:"bitrate,omitempty"`
	Listeners int    `json:"listeners,omitempty"`
}

// Current is the single authoritative now-playing cache for a room.
// It is overwritten wholesale on each reconciliation.
type Current struct {
	Track         *Track       `json:"track,omitempty"`
	Station       *StationMeta `json:"station,omitempty"`
	LastUpdatedAt time.Time    `json:"lastUpdatedAt"`
}

// QueueEntry is a proposed-but-not-yet-played track, attributed to the DJ
// who queued it.
type QueueEntry struct {
	URI         string    `json:"uri"`
	AddedBy     string    `json:"addedBy"`
	AddedByName string    `json:"addedByName,omitempty"`
	AddedAt     time.Time `json:"addedAt"`
}

// PlaylistTrack is an append-only history record of a track that actually
// played, optionally attributed to the DJ whose queue entry it matched.
type PlaylistTrack struct {
	URI      string    `json:"uri,omitempty"`
	Title    string    `json:"title"`
	Artist   string    `json:"artist"`
	Album    string    `json:"album,omitempty"`
	PlayedAt time.Time `json:"playedAt"`
	DJID     string    `json:"djId,omitempty"`
	DJName   string    `json:"djName,omitempty"`
}

// ReactionSubjectType is what a reaction attaches to.
type ReactionSubjectType string

const (
	ReactToMessage ReactionSubjectType = "message"
	ReactToTrack   ReactionSubjectType = "track"
)

// ReactionSubject identifies the message or track being reacted to.
type ReactionSubject struct {
	Type ReactionSubjectType `json:"type"`
	ID   string              `json:"id"`
}

// Reaction is a single (subject, user, emoji) triple. At most one live
// reaction exists per triple; re-adding is idempotent.
type Reaction struct {
	Emoji   string          `json:"emoji"`
	UserID  string          `json:"userId"`
	Subject ReactionSubject `json:"subject"`
}

// RoomReactions is the aggregate reaction view sent to clients: all live
// reactions bucketed by subject type, then subject ID.
type RoomReactions struct {
	Message map[string][]Reaction `json:"message"`
	Track   map[string][]Reaction `json:"track"`
}

// Message is a persisted chat message.
type Message struct {
	ID       string    `json:"id"`
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sentAt"`
}

// Room HTTP CRUD shapes.

type CreateRoomRequest struct {
	Title              string   `json:"title"`
	Type               RoomType `json:"type"`
	CreatorID          string   `json:"creatorId,omitempty"`
	Password           string   `json:"password,omitempty"`
	FetchMeta          bool     `json:"fetchMeta"`
	RadioURL           string   `json:"radioUrl,omitempty"`
	RadioMetaURL       string   `json:"radioMetaUrl,omitempty"`
	RadioProtocol      string   `json:"radioProtocol,omitempty"`
	DeputizeOnJoin     bool     `json:"deputizeOnJoin"`
	PortalPasswordHash string   `json:"portalPasswordHash"`
}

type CreateRoomResponse struct {
	Room      *Room  `json:"room"`
	CreatorID string `json:"creatorId"`
	Token     string `json:"token"`
}

type RoomSummary struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Type        RoomType `json:"type"`
	HasPassword bool     `json:"hasPassword"`
	OnlineCount int      `json:"onlineCount"`
}

// Portal verification shapes.

type VerifyPortalRequest struct {
	PasswordHash string `json:"passwordHash"`
}

type VerifyPortalResponse struct {
	Valid bool `json:"valid"`
}

// Search shapes.

type SearchResponse struct {
	Tracks []Track `json:"tracks"`
}

// ErrorResponse is shared by HTTP handlers and socket error events.
type ErrorResponse struct {
	Error   string `json:"error"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}
