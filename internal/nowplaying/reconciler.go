// Package nowplaying decides whether freshly polled playback state is
// actually news: it compares the candidate against the room's cached
// current entry and only publishes when something changed, so a room that
// keeps playing the same song produces no event traffic.
package nowplaying

import (
	"context"
	"log/slog"
	"time"

	"github.com/waveroom/backend/internal/events"
	"github.com/waveroom/backend/internal/fanout"
	"github.com/waveroom/backend/internal/models"
	"github.com/waveroom/backend/internal/session"
)

type Reconciler struct {
	repo *session.Repository
	pub  *fanout.Publisher
}

func New(repo *session.Repository, pub *fanout.Publisher) *Reconciler {
	return &Reconciler{repo: repo, pub: pub}
}

// Reconcile folds one poll result into the room's cache and publishes the
// resulting events. candidate is nil when the provider reports nothing
// playing; station is non-nil only for radio rooms. force republishes the
// current state even when nothing changed, which is used right after a
// room's settings change so joined clients resync.
func (r *Reconciler) Reconcile(ctx context.Context, room *models.Room, candidate *models.Track, station *models.StationMeta, force bool) {
	cached := r.repo.GetCurrent(ctx, room.ID)
	var cachedTrack *models.Track
	if cached != nil {
		cachedTrack = cached.Track
	}

	// Playback stopped: clear the cache and tell the room, once.
	if candidate == nil && station == nil {
		if cachedTrack == nil && !force {
			return
		}
		r.repo.ClearCurrent(ctx, room.ID)
		r.pub.Publish(ctx, events.ChannelNowPlaying, events.NowPlayingPayload{
			RoomID:  room.ID,
			Current: &models.Current{LastUpdatedAt: time.Now()},
		})
		r.pub.Publish(ctx, events.ChannelPlaybackState, events.PlaybackStatePayload{
			RoomID: room.ID, Playing: false,
		})
		return
	}

	merged := mergeTracks(cachedTrack, candidate)
	next := &models.Current{
		Track:         merged,
		Station:       mergeStations(cached, station),
		LastUpdatedAt: time.Now(),
	}

	same := sameEntry(cachedTrack, merged)
	if same && !force {
		// Same song: the only thing worth announcing is a play/pause flip.
		if cachedTrack != nil && merged != nil && cachedTrack.Playing != merged.Playing {
			r.repo.SaveCurrent(ctx, room.ID, next)
			r.pub.Publish(ctx, events.ChannelPlaybackState, events.PlaybackStatePayload{
				RoomID: room.ID, Playing: merged.Playing,
			})
		}
		return
	}

	r.repo.SaveCurrent(ctx, room.ID, next)
	r.pub.Publish(ctx, events.ChannelNowPlaying, events.NowPlayingPayload{
		RoomID:  room.ID,
		Current: next,
	})

	// A genuinely new song goes into the room's play history; a forced
	// republish of the same song does not.
	if !same && merged != nil {
		r.appendHistory(ctx, room, merged)
	}
}

// appendHistory records the track in the room playlist, attributing it to
// the member who queued it when a matching queue entry exists.
func (r *Reconciler) appendHistory(ctx context.Context, room *models.Room, track *models.Track) {
	entry := models.PlaylistTrack{
		URI:      track.URI,
		Title:    track.Title,
		Artist:   track.Artist,
		Album:    track.Album,
		PlayedAt: time.Now(),
	}

	if track.URI != "" {
		for _, queued := range r.repo.GetQueue(ctx, room.ID) {
			if queued.URI == track.URI {
				entry.DJID = queued.AddedBy
				entry.DJName = queued.AddedByName
				r.repo.RemoveFromQueue(ctx, room.ID, queued.URI)
				break
			}
		}
	}

	r.repo.AddTrackToRoomPlaylist(ctx, room.ID, entry)
	r.pub.Publish(ctx, events.ChannelPlaylistTrack, events.PlaylistTrackPayload{
		RoomID: room.ID,
		Track:  entry,
	})

	slog.Debug("playlist track recorded",
		slog.String("room_id", room.ID),
		slog.String("uri", track.URI),
		slog.String("title", track.Title))
}

// sameEntry reports whether two candidates describe the same song,
// ignoring playback position and playing state.
func sameEntry(a, b *models.Track) bool {
	return models.SameTrack(a, b)
}

// mergeTracks carries cached metadata forward when the fresh candidate is
// the same song but sparser, which happens with radio streams that only
// expose a title line.
func mergeTracks(cached, fresh *models.Track) *models.Track {
	if fresh == nil {
		return nil
	}
	merged := *fresh
	if cached != nil && models.SameTrack(cached, fresh) {
		if merged.Album == "" {
			merged.Album = cached.Album
		}
		if merged.ArtworkURL == "" {
			merged.ArtworkURL = cached.ArtworkURL
		}
		if merged.DurationMS == 0 {
			merged.DurationMS = cached.DurationMS
		}
	}
	return &merged
}

func mergeStations(cached *models.Current, fresh *models.StationMeta) *models.StationMeta {
	if fresh != nil {
		return fresh
	}
	if cached != nil {
		return cached.Station
	}
	return nil
}
