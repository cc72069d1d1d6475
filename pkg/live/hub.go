// Package live tracks a version counter per query topic so clients can
// long-poll for invalidations and re-run their reads.
package live

import (
	"context"
	"sync"

	"github.com/yz174/kliq/pkg/telemetry"
)

// topic names
const (
	topicMessages      = "conv:%s:messages"
	topicTyping        = "conv:%s:typing"
	topicArtifacts     = "conv:%s:ai:%s"
	topicConversations = "user:%s:conversations"
	topicPresence      = "presence:%s"
)

// maxIdleTopics bounds the topic table; idle topics beyond it are dropped
// and later reported at the floor version.
const maxIdleTopics = 100_000

type topic struct {
	version uint64
	waiters int
	ch      chan struct{} // closed on the next publish; nil when nobody waits
}

// Hub is safe for concurrent use. The zero value is not usable; use New.
type Hub struct {
	mu     sync.Mutex
	seq    uint64
	floor  uint64
	topics map[string]*topic
}

func New() *Hub {
	return &Hub{topics: make(map[string]*topic)}
}

func (h *Hub) get(name string) *topic {
	t, ok := h.topics[name]
	if !ok {
		t = &topic{version: h.floor}
		h.topics[name] = t
	}
	return t
}

// Publish bumps every named topic and wakes its waiters.
func (h *Hub) Publish(topics ...string) {
	if h == nil || len(topics) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	for _, name := range topics {
		t := h.get(name)
		t.version = h.seq
		if t.ch != nil {
			close(t.ch)
			t.ch = nil
		}
	}
	if len(h.topics) > maxIdleTopics {
		h.compact()
	}
}

// compact drops topics nobody is waiting on. The floor keeps Version
// monotonic for dropped topics; a stale reader sees at worst a spurious
// change.
func (h *Hub) compact() {
	for name, t := range h.topics {
		if t.waiters == 0 {
			if t.version > h.floor {
				h.floor = t.version
			}
			delete(h.topics, name)
		}
	}
}

// Version returns the current version of a topic.
func (h *Hub) Version(name string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[name]; ok {
		return t.version
	}
	return h.floor
}

// Wait blocks until the topic's version exceeds since and returns the new
// version. It returns the current version and ctx.Err() when ctx ends first.
func (h *Hub) Wait(ctx context.Context, name string, since uint64) (uint64, error) {
	h.mu.Lock()
	t := h.get(name)
	if t.version > since {
		v := t.version
		h.mu.Unlock()
		return v, nil
	}
	if t.ch == nil {
		t.ch = make(chan struct{})
	}
	ch := t.ch
	t.waiters++
	h.mu.Unlock()

	telemetry.LiveWaiters.Inc()
	defer telemetry.LiveWaiters.Dec()

	var err error
	select {
	case <-ch:
	case <-ctx.Done():
		err = ctx.Err()
	}

	h.mu.Lock()
	t.waiters--
	v := t.version
	h.mu.Unlock()
	return v, err
}
