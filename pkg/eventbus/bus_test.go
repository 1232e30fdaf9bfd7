package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishFansOutByTopic(t *testing.T) {
	bus := New(Options{Buffer: 4})
	defer bus.Close()

	all := bus.Subscribe()
	enrollment := bus.Subscribe(TopicEnrollment)
	courses := bus.Subscribe(TopicCourses)

	bus.Publish(context.Background(), TopicEnrollment, "")

	assert.Equal(t, TopicEnrollment, receive(t, all).Topic)
	ev := receive(t, enrollment)
	assert.Equal(t, TopicEnrollment, ev.Topic)
	assert.Equal(t, bus.Origin(), ev.Origin)

	select {
	case ev := <-courses.Events():
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	var drops int
	bus := New(Options{Buffer: 1, OnDrop: func(Topic) { drops++ }})
	defer bus.Close()

	sub := bus.Subscribe(TopicStorage)
	for i := 0; i < 3; i++ {
		bus.Publish(context.Background(), TopicStorage, "users")
	}

	assert.Equal(t, 2, drops)
	assert.Equal(t, "users", receive(t, sub).Key)
}

func TestCloseSubscription(t *testing.T) {
	bus := New(Options{})
	sub := bus.Subscribe()
	sub.Close()
	sub.Close()

	_, open := <-sub.Events()
	assert.False(t, open)

	bus.Publish(context.Background(), TopicActivities, "")
	bus.Close()

	late := bus.Subscribe()
	_, open = <-late.Events()
	assert.False(t, open)
}

func TestForwarderSeesLocalEvents(t *testing.T) {
	bus := New(Options{})
	defer bus.Close()

	var seen []Topic
	bus.AddForwarder(func(_ context.Context, ev Event) { seen = append(seen, ev.Topic) })

	bus.Publish(context.Background(), TopicCourses, "")
	bus.Deliver(Event{Topic: TopicStorage, Origin: "elsewhere"})

	assert.Equal(t, []Topic{TopicCourses}, seen)
}

func TestRedisRelayCrossesInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	busA := New(Options{})
	busB := New(Options{})
	defer busA.Close()
	defer busB.Close()

	relayA := NewRedisRelay(newClient(), busA, "edumatrix:events", nil)
	relayB := NewRedisRelay(newClient(), busB, "edumatrix:events", nil)
	require.NoError(t, relayA.Start(ctx))
	require.NoError(t, relayB.Start(ctx))
	defer func() { _ = relayA.Stop() }()
	defer func() { _ = relayB.Stop() }()

	subA := busA.Subscribe(TopicEnrollment)
	subB := busB.Subscribe(TopicEnrollment)

	busA.Publish(ctx, TopicEnrollment, "enrolledStudents")

	local := receive(t, subA)
	assert.Equal(t, busA.Origin(), local.Origin)

	remote := receive(t, subB)
	assert.Equal(t, TopicEnrollment, remote.Topic)
	assert.Equal(t, "enrolledStudents", remote.Key)
	assert.Equal(t, busA.Origin(), remote.Origin)

	select {
	case ev := <-subA.Events():
		t.Fatalf("relay echoed own event back: %v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
