package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay mirrors bus events across instances through a Redis pub/sub
// channel. Events carrying this bus's origin are not re-delivered.
type RedisRelay struct {
	client  *redis.Client
	bus     *Bus
	channel string
	logger  *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisRelay wires a relay for bus on channel.
func NewRedisRelay(client *redis.Client, bus *Bus, channel string, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{client: client, bus: bus, channel: channel, logger: logger}
}

// Start subscribes to the channel and begins forwarding. The subscription
// is confirmed before Start returns.
func (r *RedisRelay) Start(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	r.mu.Lock()
	r.pubsub = pubsub
	r.done = make(chan struct{})
	r.mu.Unlock()

	r.bus.AddForwarder(r.forward)
	go r.listen(pubsub.Channel(), r.done)

	r.logger.Info("event relay subscribed", zap.String("channel", r.channel))
	return nil
}

func (r *RedisRelay) forward(ctx context.Context, ev Event) {
	if ev.Origin != r.bus.Origin() {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Warn("failed to encode event", zap.Error(err))
		return
	}
	if err := r.client.Publish(context.WithoutCancel(ctx), r.channel, payload).Err(); err != nil {
		r.logger.Warn("failed to relay event", zap.String("topic", string(ev.Topic)), zap.Error(err))
	}
}

func (r *RedisRelay) listen(messages <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range messages {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			r.logger.Warn("discarding malformed relayed event", zap.Error(err))
			continue
		}
		if ev.Origin == r.bus.Origin() {
			continue
		}
		r.bus.Deliver(ev)
	}
}

// Stop unsubscribes and waits for the listener to exit.
func (r *RedisRelay) Stop() error {
	r.mu.Lock()
	pubsub, done := r.pubsub, r.done
	r.pubsub = nil
	r.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
