// Package fanout bridges room events across processes through the store's
// pub/sub. Producers publish typed payloads on well-known channels; every
// process's subscriber re-emits them to its local sockets, including the
// process that published, which keeps delivery independent of where a
// room's sockets happen to live.
package fanout

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// Publisher serializes event payloads onto pub/sub channels. Publish
// failures are logged and swallowed so event production never breaks the
// operation that triggered it.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish marshals payload and sends it on the given channel.
func (p *Publisher) Publish(ctx context.Context, channel string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshaling fanout payload",
			slog.String("channel", channel), slog.Any("error", err))
		return
	}
	if err := p.rdb.Publish(ctx, channel, data).Err(); err != nil {
		slog.Error("publishing fanout payload",
			slog.String("channel", channel), slog.Any("error", err))
	}
}
