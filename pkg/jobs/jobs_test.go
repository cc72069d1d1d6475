package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yz174/kliq/pkg/config"
	"github.com/yz174/kliq/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memStore struct {
	mu   sync.Mutex
	jobs map[uint64]models.Job
}

func newMemStore(jobs ...models.Job) *memStore {
	s := &memStore{jobs: map[uint64]models.Job{}}
	for _, j := range jobs {
		s.jobs[j.Seq] = j
	}
	return s
}

func (s *memStore) PendingJobs(limit int) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Seq < out[k].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) HasJob(seq uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[seq]
	return ok, nil
}

func (s *memStore) DeleteJob(seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, seq)
	return nil
}

func (s *memStore) put(j models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.Seq] = j
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func testConfig() config.JobsConfig {
	return config.JobsConfig{
		Workers:       2,
		QueueCapacity: 8,
		SweepInterval: config.Duration(time.Hour),
		JobTimeout:    config.Duration(time.Second),
	}
}

func TestQueueFullAndClosed(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Enqueue(models.Job{Seq: 1}))
	assert.ErrorIs(t, q.Enqueue(models.Job{Seq: 2}), ErrQueueFull)
	assert.Equal(t, uint64(1), q.Dropped())
	q.Close()
	assert.ErrorIs(t, q.Enqueue(models.Job{Seq: 3}), ErrQueueClosed)
	q.Close()
}

func TestTrackerAddIsExclusive(t *testing.T) {
	tr := NewInflightTracker()
	assert.True(t, tr.Add(7))
	assert.False(t, tr.Add(7))
	assert.True(t, tr.IsInflight(7))
	assert.Equal(t, 1, tr.Len())

	tr.Remove(7)
	assert.False(t, tr.IsInflight(7))
	assert.Zero(t, tr.Len())
	assert.True(t, tr.Add(7))
}

func TestProcessorRecoversPersistedJobs(t *testing.T) {
	st := newMemStore(
		models.Job{Seq: 1, Kind: models.JobEmbed, MessageID: "m1"},
		models.Job{Seq: 2, Kind: models.JobAI, MessageID: "m2"},
		models.Job{Seq: 3, Kind: models.JobEmbed, MessageID: "m3"},
	)
	p := NewProcessor(st, testConfig())

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	wg.Add(3)
	record := func(_ context.Context, j models.Job) error {
		defer wg.Done()
		mu.Lock()
		seen[j.MessageID] = true
		mu.Unlock()
		if j.Kind == models.JobAI {
			return errors.New("provider down")
		}
		return nil
	}
	p.RegisterHandler(models.JobEmbed, record)
	p.RegisterHandler(models.JobAI, record)
	p.Start()
	wg.Wait()

	require.Eventually(t, func() bool { return st.len() == 0 }, time.Second, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Stop(ctx)

	assert.Len(t, seen, 3)
}

func TestDispatchSkipsInflight(t *testing.T) {
	st := newMemStore(models.Job{Seq: 1, Kind: models.JobEmbed})
	p := NewProcessor(st, testConfig())
	job := models.Job{Seq: 1, Kind: models.JobEmbed}

	p.Dispatch(job, job)
	assert.Equal(t, 1, p.Stats().Queued)
	assert.Equal(t, 1, p.Stats().Inflight)

	n, err := p.Recover()
	require.NoError(t, err)
	assert.Zero(t, n)
	p.q.Close()
}

func TestHandlerPanicIsContained(t *testing.T) {
	st := newMemStore()
	p := NewProcessor(st, testConfig())
	ran := make(chan struct{})
	p.RegisterHandler(models.JobEmbed, func(context.Context, models.Job) error {
		defer close(ran)
		panic("boom")
	})
	p.Start()
	st.put(models.Job{Seq: 5, Kind: models.JobEmbed})
	p.Dispatch(models.Job{Seq: 5, Kind: models.JobEmbed})
	<-ran

	require.Eventually(t, func() bool { return st.len() == 0 && p.Stats().Inflight == 0 }, time.Second, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Stop(ctx)
}

func TestStopTimeoutKeepsJobPersisted(t *testing.T) {
	st := newMemStore(models.Job{Seq: 9, Kind: models.JobAI})
	p := NewProcessor(st, testConfig())
	started := make(chan struct{})
	p.RegisterHandler(models.JobAI, func(ctx context.Context, _ models.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	p.Start()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p.Stop(ctx)

	assert.Equal(t, 1, st.len())
	assert.False(t, p.Stats().Running)
}
