package live

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishBumpsVersion(t *testing.T) {
	h := New()
	topic := MessagesTopic("c1")
	require.Equal(t, uint64(0), h.Version(topic))
	h.Publish(topic)
	v1 := h.Version(topic)
	assert.Greater(t, v1, uint64(0))
	h.Publish(TypingTopic("c1"))
	assert.Equal(t, v1, h.Version(topic), "unrelated publish must not bump topic")
}

func TestWaitReturnsImmediatelyWhenBehind(t *testing.T) {
	h := New()
	h.Publish("presence:u1")
	v, err := h.Wait(context.Background(), "presence:u1", 0)
	require.NoError(t, err)
	assert.Equal(t, h.Version("presence:u1"), v)
}

func TestWaitWakesOnPublish(t *testing.T) {
	h := New()
	topic := ConversationsTopic("u1")
	since := h.Version(topic)

	done := make(chan uint64, 1)
	go func() {
		v, err := h.Wait(context.Background(), topic, since)
		if err == nil {
			done <- v
		}
	}()
	time.Sleep(10 * time.Millisecond)
	h.Publish(topic)

	select {
	case v := <-done:
		assert.Greater(t, v, since)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestWaitTimesOut(t *testing.T) {
	h := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	v, err := h.Wait(ctx, TypingTopic("c9"), 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint64(0), v)
}

func TestCompactKeepsVersionsMonotonic(t *testing.T) {
	h := New()
	h.Publish("a")
	va := h.Version("a")
	h.mu.Lock()
	h.compact()
	h.mu.Unlock()
	assert.GreaterOrEqual(t, h.Version("a"), va)
}

func TestTopicVisibleTo(t *testing.T) {
	member := func(c string) bool { return c == "c1" }
	cases := []struct {
		topic string
		want  bool
	}{
		{MessagesTopic("c1"), true},
		{MessagesTopic("c2"), false},
		{TypingTopic("c1"), true},
		{ArtifactsTopic("c1", "u1"), true},
		{ArtifactsTopic("c1", "u2"), false},
		{ConversationsTopic("u1"), true},
		{ConversationsTopic("u2"), false},
		{PresenceTopic("u7"), true},
		{"conv:c1:secrets", false},
		{"bogus", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TopicVisibleTo(tc.topic, "u1", member), tc.topic)
	}
}
