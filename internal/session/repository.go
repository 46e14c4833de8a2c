// Package session is the typed data layer over the shared ephemeral store.
// Every entity read/write goes through the Repository. Store failures stay
// inside it: a failed read returns an empty value, a failed write is logged
// and swallowed. Callers never see a store error.
package session

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/waveroom/backend/internal/logging"
)

// Repository provides CRUD over rooms, users, queues, playlists, reactions,
// typing sets, and messages. It holds the injected store client; it is safe
// for concurrent use because every operation is a single store call or an
// idempotent sequence of them.
type Repository struct {
	rdb     *redis.Client
	userTTL time.Duration
}

// New creates a Repository. userTTL is applied to a user's key when they
// leave a room; it is cleared again on login.
func New(rdb *redis.Client, userTTL time.Duration) *Repository {
	return &Repository{rdb: rdb, userTTL: userTTL}
}

// logErr records a swallowed store failure. Context cancellation during
// shutdown is not worth reporting.
func (r *Repository) logErr(ctx context.Context, op string, err error) {
	if err == nil || err == redis.Nil || ctx.Err() != nil {
		return
	}
	slog.Error("store operation failed",
		slog.String("op", op),
		slog.Any("error", logging.WrapError(err, op)))
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}
