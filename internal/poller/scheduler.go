// Package poller drives the periodic now-playing refresh for every room.
// The cadence is shared across processes through a store key: any process
// that gets throttled upstream raises the interval for everyone, and the
// key's TTL restores the normal rate once the throttle window passes.
package poller

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/waveroom/backend/internal/config"
	"github.com/waveroom/backend/internal/events"
	"github.com/waveroom/backend/internal/fanout"
	"github.com/waveroom/backend/internal/models"
	"github.com/waveroom/backend/internal/nowplaying"
	"github.com/waveroom/backend/internal/provider"
	"github.com/waveroom/backend/internal/session"
	"github.com/waveroom/backend/internal/store"
)

type Scheduler struct {
	cfg        *config.Config
	rdb        *redis.Client
	repo       *session.Repository
	spotify    *provider.SpotifyService
	radio      *provider.RadioService
	reconciler *nowplaying.Reconciler
	pub        *fanout.Publisher
}

func NewScheduler(cfg *config.Config, rdb *redis.Client, repo *session.Repository,
	spotify *provider.SpotifyService, radio *provider.RadioService,
	reconciler *nowplaying.Reconciler, pub *fanout.Publisher) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		rdb:        rdb,
		repo:       repo,
		spotify:    spotify,
		radio:      radio,
		reconciler: reconciler,
		pub:        pub,
	}
}

// Run polls every room in a loop until the context is cancelled. The
// interval is re-read each cycle so a throttle raised by any process takes
// effect on the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("polling scheduler started",
		slog.Duration("interval", s.cfg.PollInterval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.CurrentInterval(ctx)):
			s.pollAll(ctx)
		}
	}
}

// CurrentInterval returns the effective polling interval: the shared
// override if one is set, the configured default otherwise.
func (s *Scheduler) CurrentInterval(ctx context.Context) time.Duration {
	val, err := s.rdb.Get(ctx, store.PollIntervalKey).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("reading polling interval", slog.Any("error", err))
		}
		return s.cfg.PollInterval
	}
	seconds, err := strconv.Atoi(val)
	if err != nil || seconds <= 0 {
		return s.cfg.PollInterval
	}
	return time.Duration(seconds) * time.Second
}

func (s *Scheduler) pollAll(ctx context.Context) {
	for _, roomID := range s.repo.RoomIDs(ctx) {
		room := s.repo.FindRoom(ctx, roomID)
		if room == nil {
			continue
		}
		// Rooms poll concurrently; a slow station cannot hold up the rest.
		go s.PollRoom(ctx, room)
	}
}

// PollRoom refreshes one room's now-playing state from its source.
func (s *Scheduler) PollRoom(ctx context.Context, room *models.Room) {
	switch {
	case room.Type == models.RoomTypeRadio:
		s.pollRadio(ctx, room)
	case room.FetchMeta:
		s.pollJukebox(ctx, room)
	}
}

func (s *Scheduler) pollJukebox(ctx context.Context, room *models.Room) {
	// A room whose creator's credentials already failed stays quiet until
	// a settings change clears the error.
	if room.ProviderError != "" {
		return
	}

	token := s.repo.ProviderToken(ctx, room.Creator)
	if token == "" {
		return
	}

	track, err := s.spotify.NowPlaying(ctx, token)
	if err != nil {
		s.handleProviderError(ctx, room, err)
		return
	}

	s.reconciler.Reconcile(ctx, room, track, nil, false)
	s.syncQueue(ctx, room, token)
}

// syncQueue reconciles the room's stored queue against the creator's live
// provider queue. Entries queued through the room keep their proposer.
func (s *Scheduler) syncQueue(ctx context.Context, room *models.Room, token string) {
	tracks, err := s.spotify.Queue(ctx, token)
	if err != nil {
		slog.Warn("provider queue fetch failed",
			slog.String("room_id", room.ID), slog.Any("error", err))
		return
	}

	now := time.Now()
	fresh := make([]models.QueueEntry, 0, len(tracks))
	for _, t := range tracks {
		fresh = append(fresh, models.QueueEntry{URI: t.URI, AddedAt: now})
	}
	s.repo.SetQueue(ctx, room.ID, fresh)
}

func (s *Scheduler) handleProviderError(ctx context.Context, room *models.Room, err error) {
	switch {
	case provider.IsRateLimited(err):
		s.raiseInterval(ctx)
	case provider.IsAuthError(err):
		msg := "provider credentials expired"
		s.repo.UpdateRoom(ctx, room.ID, &models.RoomPatch{ProviderError: &msg})
		s.pub.Publish(ctx, events.ChannelProviderAuthError, events.ProviderAuthErrorPayload{
			RoomID: room.ID,
			UserID: room.Creator,
			Error:  msg,
		})
		slog.Warn("room polling disabled on auth failure",
			slog.String("room_id", room.ID))
	default:
		slog.Warn("now playing fetch failed",
			slog.String("room_id", room.ID), slog.Any("error", err))
	}
}

// raiseInterval flips the shared cadence to the throttled rate for the
// configured window. SET with expiry keeps this atomic: the TTL reverts
// the override without any process having to remember to undo it.
func (s *Scheduler) raiseInterval(ctx context.Context) {
	seconds := int(s.cfg.ThrottledInterval.Seconds())
	err := s.rdb.Set(ctx, store.PollIntervalKey, seconds, s.cfg.ThrottleWindow).Err()
	if err != nil {
		slog.Warn("raising polling interval", slog.Any("error", err))
		return
	}
	s.pub.Publish(ctx, events.ChannelPollThrottled, events.PollThrottledPayload{
		IntervalSeconds: seconds,
		WindowSeconds:   int(s.cfg.ThrottleWindow.Seconds()),
	})
	slog.Info("polling throttled",
		slog.Duration("interval", s.cfg.ThrottledInterval),
		slog.Duration("window", s.cfg.ThrottleWindow))
}

func (s *Scheduler) pollRadio(ctx context.Context, room *models.Room) {
	if room.RadioMetaURL == "" {
		return
	}

	station, track, err := s.radio.FetchMeta(ctx, room.RadioMetaURL, room.RadioProtocol)
	if err != nil {
		msg := "station metadata unavailable"
		if room.StreamError != msg {
			s.repo.UpdateRoom(ctx, room.ID, &models.RoomPatch{StreamError: &msg})
			s.pub.Publish(ctx, events.ChannelStreamError, events.StreamErrorPayload{
				RoomID: room.ID,
				Error:  msg,
			})
		}
		slog.Warn("station fetch failed",
			slog.String("room_id", room.ID), slog.Any("error", err))
		return
	}

	if room.StreamError != "" {
		empty := ""
		s.repo.UpdateRoom(ctx, room.ID, &models.RoomPatch{StreamError: &empty})
	}

	s.reconciler.Reconcile(ctx, room, track, station, false)
}
