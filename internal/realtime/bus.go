package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-sync/internal/logger"
	"github.com/iliyamo/cinema-seat-sync/internal/metrics"
)

// busFrame is what travels over the pub/sub channel.
type busFrame struct {
	ShowID  uint64  `json:"showId"`
	Exclude string  `json:"exclude,omitempty"`
	Message Message `json:"message"`
}

// RedisBus fans room broadcasts out through a Redis channel so that every
// instance delivers them to its own members.  The publishing instance
// receives its own frames back through the subscription like everyone
// else.
type RedisBus struct {
	rdb     redis.UniversalClient
	channel string
	local   *RoomManager
	metrics *metrics.Metrics
}

func NewRedisBus(rdb redis.UniversalClient, channel string, local *RoomManager, m *metrics.Metrics) *RedisBus {
	if m == nil {
		m = metrics.Discard()
	}
	return &RedisBus{rdb: rdb, channel: channel, local: local, metrics: m}
}

// Broadcast publishes the frame.  If Redis refuses it the frame is still
// delivered to local members so viewers on this instance stay in sync.
func (b *RedisBus) Broadcast(ctx context.Context, showID uint64, msg Message, exclude string) {
	b.metrics.Broadcasts.WithLabelValues(msg.Event).Inc()
	payload, err := json.Marshal(busFrame{ShowID: showID, Exclude: exclude, Message: msg})
	if err == nil {
		err = b.rdb.Publish(ctx, b.channel, payload).Err()
	}
	if err != nil {
		logger.Warn("realtime: publish failed, delivering locally",
			zap.Uint64("show_id", showID), zap.String("event", msg.Event), zap.Error(err))
		b.local.Deliver(showID, msg, exclude)
	}
}

// Start subscribes and relays frames to local members until ctx ends.  It
// returns once the subscription is confirmed.
func (b *RedisBus) Start(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	go b.relay(ctx, sub)
	return nil
}

func (b *RedisBus) relay(ctx context.Context, sub *redis.PubSub) {
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var f busFrame
			if err := json.Unmarshal([]byte(m.Payload), &f); err != nil {
				logger.Warn("realtime: bad bus frame", zap.Error(err))
				continue
			}
			b.local.Deliver(f.ShowID, f.Message, f.Exclude)
		}
	}
}
