// Package lifecycle reaps rooms the normal disconnect path missed. The
// store's key expiry does most of the work; the sweeper is the backstop
// that repairs the index, arms expiry for rooms whose creator left without
// a clean disconnect, and disarms it when the creator is back.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/waveroom/backend/internal/config"
	"github.com/waveroom/backend/internal/events"
	"github.com/waveroom/backend/internal/fanout"
	"github.com/waveroom/backend/internal/session"
)

type Sweeper struct {
	cfg  *config.Config
	repo *session.Repository
	pub  *fanout.Publisher
}

func NewSweeper(cfg *config.Config, repo *session.Repository, pub *fanout.Publisher) *Sweeper {
	return &Sweeper{cfg: cfg, repo: repo, pub: pub}
}

// Run sweeps every known room on a fixed cadence until the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	slog.Info("lifecycle sweeper started",
		slog.Duration("interval", s.cfg.SweepInterval))

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over the room index.
func (s *Sweeper) Sweep(ctx context.Context) {
	for _, roomID := range s.repo.RoomIDs(ctx) {
		s.sweepRoom(ctx, roomID)
	}
}

func (s *Sweeper) sweepRoom(ctx context.Context, roomID string) {
	// The index can point at rooms whose keys already expired.
	if !s.repo.RoomExists(ctx, roomID) {
		s.repo.DropFromIndex(ctx, roomID)
		slog.Info("dropped expired room from index", slog.String("room_id", roomID))
		return
	}

	room := s.repo.FindRoom(ctx, roomID)
	if room == nil {
		return
	}

	// A room whose creator record is gone can never be administered again.
	if s.repo.FindUser(ctx, room.Creator) == nil {
		s.deleteRoom(ctx, roomID)
		return
	}

	hasTTL := s.repo.RoomHasTTL(ctx, roomID)

	if room.Persistent {
		if hasTTL {
			s.repo.PersistRoom(ctx, roomID)
		}
		return
	}

	if s.repo.IsOnline(ctx, roomID, room.Creator) {
		// Creator came back; any pending expiry is cancelled.
		if hasTTL {
			s.repo.PersistRoom(ctx, roomID)
			slog.Info("room expiry cancelled, creator returned",
				slog.String("room_id", roomID))
		}
		return
	}

	// Nobody at all for longer than the room lifetime: reap immediately.
	if s.repo.OnlineCount(ctx, roomID) == 0 &&
		time.Since(room.RefreshedAt) > s.cfg.RoomTTL {
		s.deleteRoom(ctx, roomID)
		return
	}

	if !hasTTL {
		s.repo.ExpireRoom(ctx, roomID, s.cfg.RoomGraceTTL)
		slog.Info("room expiry armed, creator absent",
			slog.String("room_id", roomID),
			slog.Duration("grace", s.cfg.RoomGraceTTL))
	}
}

func (s *Sweeper) deleteRoom(ctx context.Context, roomID string) {
	s.repo.DeleteRoom(ctx, roomID)
	s.pub.Publish(ctx, events.ChannelRoomDeleted, events.RoomDeletedPayload{RoomID: roomID})
	slog.Info("room reaped", slog.String("room_id", roomID))
}
