package jobs

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/telemetry"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
)

// Queue is a bounded in-memory job channel. Enqueue never blocks; a full
// queue rejects the job, which stays persisted until the next sweep.
type Queue struct {
	ch        chan models.Job
	capacity  int
	dropped   atomic.Uint64
	closed    atomic.Bool
	enqWg     sync.WaitGroup
	closeOnce sync.Once
}

// NewQueue creates a queue of the given capacity (>0).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		panic("jobs.NewQueue: capacity must be > 0; ensure config.ValidateConfig() applied defaults")
	}
	return &Queue{ch: make(chan models.Job, capacity), capacity: capacity}
}

func (q *Queue) Enqueue(j models.Job) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	q.enqWg.Add(1)
	defer q.enqWg.Done()
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- j:
		telemetry.JobQueueDepth.Set(float64(len(q.ch)))
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Out is the consumer side of the queue.
func (q *Queue) Out() <-chan models.Job { return q.ch }

// Close stops accepting jobs and closes the channel once in-progress
// enqueues have returned.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		q.enqWg.Wait()
		close(q.ch)
	})
}

func (q *Queue) Len() int        { return len(q.ch) }
func (q *Queue) Cap() int        { return q.capacity }
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
func (q *Queue) Closed() bool    { return q.closed.Load() }
