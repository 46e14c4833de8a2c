// Package store owns the connection to the shared ephemeral state store and
// the key schema every component reads and writes. The client handle is
// constructed once at process start and passed into each component; nothing
// in this codebase reaches for a global connection.
package store

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// Connect parses the Redis URL, opens a client, and verifies the connection.
// The returned client is shared by every component and closed at shutdown.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}
