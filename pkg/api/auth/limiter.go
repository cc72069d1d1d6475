package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yz174/kliq/pkg/timeutil"
)

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// limiterPool holds one token bucket per identity and evicts idle ones.
type limiterPool struct {
	mu            sync.Mutex
	m             map[string]*limiterEntry
	rps           rate.Limit
	burst         int
	clock         timeutil.Clock
	ttl           time.Duration
	cleanupPeriod time.Duration
	startCleanup  sync.Once
	stopOnce      sync.Once
	stopCh        chan struct{}
	doneCh        chan struct{}
}

func newLimiterPool(rps float64, burst int, clock timeutil.Clock) *limiterPool {
	return &limiterPool{
		m:             make(map[string]*limiterEntry),
		rps:           rate.Limit(rps),
		burst:         burst,
		clock:         timeutil.Or(clock),
		ttl:           10 * time.Minute,
		cleanupPeriod: time.Minute,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.startCleanup.Do(func() { go p.cleanupLoop() })

	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock.Now()
	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.l
	}
	l := rate.NewLimiter(p.rps, p.burst)
	p.m[key] = &limiterEntry{l: l, lastSeen: now}
	return l
}

// Allow reports whether the identity may make another request now.
func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// evict drops limiters idle for longer than the ttl.
func (p *limiterPool) evict() {
	cutoff := p.clock.Now().Add(-p.ttl)
	p.mu.Lock()
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
	p.mu.Unlock()
}

func (p *limiterPool) cleanupLoop() {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.cleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.evict()
		case <-p.stopCh:
			return
		}
	}
}

// Shutdown stops the cleanup goroutine, if it was started.
func (p *limiterPool) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		started := true
		p.startCleanup.Do(func() { started = false })
		if started {
			<-p.doneCh
		}
	})
}
