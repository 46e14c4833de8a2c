package fanout

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/waveroom/backend/internal/events"
	"github.com/waveroom/backend/internal/ws"
)

// Subscriber consumes the event channels and re-emits each payload to
// the sockets this process holds. One subscriber runs per process.
type Subscriber struct {
	rdb *redis.Client
	hub *ws.Hub
}

func NewSubscriber(rdb *redis.Client, hub *ws.Hub) *Subscriber {
	return &Subscriber{rdb: rdb, hub: hub}
}

// Run pattern-subscribes to the event channels and dispatches messages
// until the context is cancelled.
func (s *Subscriber) Run(ctx context.Context) {
	pubsub := s.rdb.PSubscribe(ctx, events.ChannelPattern)
	defer pubsub.Close()

	slog.Info("fanout subscriber started", slog.String("pattern", events.ChannelPattern))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (s *Subscriber) dispatch(channel string, payload []byte) {
	switch channel {
	case events.ChannelNowPlaying:
		var p events.NowPlayingPayload
		if s.decode(channel, payload, &p) {
			s.broadcast(p.RoomID, events.NowPlaying, p.Current)
		}
	case events.ChannelPlaylistTrack:
		var p events.PlaylistTrackPayload
		if s.decode(channel, payload, &p) {
			s.broadcast(p.RoomID, events.PlaylistTrackAdded, p.Track)
		}
	case events.ChannelPlaybackState:
		var p events.PlaybackStatePayload
		if s.decode(channel, payload, &p) {
			s.broadcast(p.RoomID, events.PlaybackState, map[string]bool{"playing": p.Playing})
		}
	case events.ChannelProviderAuthError:
		var p events.ProviderAuthErrorPayload
		if s.decode(channel, payload, &p) {
			// Only the user whose credentials expired needs to know.
			s.sendToUser(p.UserID, events.ProviderAuthError, map[string]string{"error": p.Error})
		}
	case events.ChannelStreamError:
		var p events.StreamErrorPayload
		if s.decode(channel, payload, &p) {
			s.broadcast(p.RoomID, events.StreamError, map[string]string{"error": p.Error})
		}
	case events.ChannelRoomDeleted:
		var p events.RoomDeletedPayload
		if s.decode(channel, payload, &p) {
			s.broadcast(p.RoomID, events.RoomDeleted, map[string]string{"roomId": p.RoomID})
		}
	case events.ChannelRoomSettings:
		var p events.RoomSettingsPayload
		if s.decode(channel, payload, &p) {
			s.broadcast(p.RoomID, events.RoomSettingsUpdated, p.Room)
		}
	case events.ChannelUserJoined:
		var p events.UserJoinedPayload
		if s.decode(channel, payload, &p) {
			s.broadcast(p.RoomID, events.UserJoined, p)
		}
	case events.ChannelPollThrottled:
		var p events.PollThrottledPayload
		if s.decode(channel, payload, &p) {
			// Process-level signal; the shared interval key carries the
			// actual backoff, so there is nothing to hand to sockets.
			slog.Info("polling throttled upstream",
				slog.Int("interval_seconds", p.IntervalSeconds),
				slog.Int("window_seconds", p.WindowSeconds))
		}
	case events.ChannelRoomBroadcast:
		var p struct {
			RoomID string          `json:"roomId"`
			Event  events.Type     `json:"event"`
			Data   json.RawMessage `json:"data"`
		}
		if s.decode(channel, payload, &p) {
			s.broadcast(p.RoomID, p.Event, p.Data)
		}
	default:
		slog.Debug("ignoring unknown fanout channel", slog.String("channel", channel))
	}
}

func (s *Subscriber) decode(channel string, payload []byte, target any) bool {
	if err := json.Unmarshal(payload, target); err != nil {
		slog.Error("decoding fanout payload",
			slog.String("channel", channel), slog.Any("error", err))
		return false
	}
	return true
}

func (s *Subscriber) broadcast(roomID string, t events.Type, data any) {
	message, err := events.Marshal(t, data)
	if err != nil {
		slog.Error("marshaling fanout event",
			slog.String("type", string(t)), slog.Any("error", err))
		return
	}
	s.hub.BroadcastToRoom(roomID, message)
}

func (s *Subscriber) sendToUser(userID string, t events.Type, data any) {
	message, err := events.Marshal(t, data)
	if err != nil {
		slog.Error("marshaling fanout event",
			slog.String("type", string(t)), slog.Any("error", err))
		return
	}
	s.hub.SendToUser(userID, message)
}
