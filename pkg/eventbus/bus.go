// Package eventbus fans change notifications out to in-process subscribers.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Topic names a class of change.
type Topic string

const (
	TopicActivities Topic = "activities-updated"
	TopicEnrollment Topic = "enrollment-updated"
	TopicCourses    Topic = "courses-updated"
	TopicStorage    Topic = "storage"
)

// Topics lists every topic the service publishes.
var Topics = []Topic{TopicActivities, TopicEnrollment, TopicCourses, TopicStorage}

// Event is a single notification. Key carries the changed document key for
// storage events.
type Event struct {
	Topic  Topic     `json:"topic"`
	Key    string    `json:"key,omitempty"`
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// Forwarder receives every locally published event, e.g. to relay it to
// other instances.
type Forwarder func(ctx context.Context, ev Event)

// Options configures a Bus.
type Options struct {
	Buffer int
	Logger *zap.Logger
	// OnPublish is called once per published event.
	OnPublish func(topic Topic)
	// OnDrop is called when a subscriber buffer is full.
	OnDrop func(topic Topic)
}

// Bus delivers events to subscribers without blocking publishers. A full
// subscriber buffer drops the event for that subscriber.
type Bus struct {
	mu         sync.RWMutex
	subs       map[uint64]*Subscription
	nextID     uint64
	forwarders []Forwarder
	closed     bool

	origin    string
	buffer    int
	logger    *zap.Logger
	onPublish func(Topic)
	onDrop    func(Topic)
	now       func() time.Time
}

// New constructs a Bus with a random origin id.
func New(opts Options) *Bus {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Bus{
		subs:      make(map[uint64]*Subscription),
		origin:    uuid.NewString(),
		buffer:    opts.Buffer,
		logger:    opts.Logger,
		onPublish: opts.OnPublish,
		onDrop:    opts.OnDrop,
		now:       time.Now,
	}
}

// Origin identifies events published by this process.
func (b *Bus) Origin() string { return b.origin }

// Subscription is a buffered stream of events for a set of topics.
type Subscription struct {
	id     uint64
	topics map[Topic]struct{}
	ch     chan Event
	bus    *Bus
	once   sync.Once
}

// Events returns the receive channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close detaches the subscription from the bus.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

func (s *Subscription) wants(topic Topic) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// Subscribe registers for the given topics, or every topic when none are
// given.
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	set := make(map[Topic]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, topics: set, ch: make(chan Event, b.buffer), bus: b}
	if b.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// AddForwarder registers f to see every locally published event.
func (b *Bus) AddForwarder(f Forwarder) {
	b.mu.Lock()
	b.forwarders = append(b.forwarders, f)
	b.mu.Unlock()
}

// Publish delivers an event locally and hands it to the forwarders.
func (b *Bus) Publish(ctx context.Context, topic Topic, key string) {
	ev := Event{Topic: topic, Key: key, Origin: b.origin, At: b.now().UTC()}
	b.Deliver(ev)

	b.mu.RLock()
	forwarders := append([]Forwarder(nil), b.forwarders...)
	b.mu.RUnlock()
	for _, f := range forwarders {
		f(ctx, ev)
	}
}

// Deliver hands ev to local subscribers only.
func (b *Bus) Deliver(ev Event) {
	if b.onPublish != nil {
		b.onPublish(ev.Topic)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if !sub.wants(ev.Topic) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			if b.onDrop != nil {
				b.onDrop(ev.Topic)
			}
			b.logger.Warn("event dropped for slow subscriber",
				zap.String("topic", string(ev.Topic)),
				zap.Uint64("subscription", sub.id),
			)
		}
	}
}

// Close detaches and closes every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
