package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yz174/kliq/pkg/config"
	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/telemetry"
)

// Handler runs one job. Errors are logged and counted; the job is removed
// either way.
type Handler func(ctx context.Context, job models.Job) error

// Store is the persistence the processor needs for recovery.
type Store interface {
	PendingJobs(limit int) ([]models.Job, error)
	HasJob(seq uint64) (bool, error)
	DeleteJob(seq uint64) error
}

// Processor runs a fixed pool of workers over a Queue. Jobs are persisted
// by the caller before dispatch; the processor deletes each one after its
// handler returns and re-dispatches persisted jobs on start and on every
// sweep.
type Processor struct {
	q        *Queue
	store    Store
	tracker  *InflightTracker
	handlers map[models.JobKind]Handler

	workers       int
	sweepInterval time.Duration
	jobTimeout    time.Duration

	stop    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewProcessor expects a validated JobsConfig (defaults applied by
// config.ValidateConfig()).
func NewProcessor(s Store, jc config.JobsConfig) *Processor {
	if jc.Workers <= 0 {
		panic("jobs.NewProcessor: workers must be > 0; ensure config.ValidateConfig() applied defaults")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		q:             NewQueue(jc.QueueCapacity),
		store:         s,
		tracker:       NewInflightTracker(),
		handlers:      make(map[models.JobKind]Handler),
		workers:       jc.Workers,
		sweepInterval: jc.SweepInterval.Duration(),
		jobTimeout:    jc.JobTimeout.Duration(),
		stop:          make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// RegisterHandler binds a handler to a job kind. Call before Start.
func (p *Processor) RegisterHandler(kind models.JobKind, fn Handler) {
	p.handlers[kind] = fn
}

// Dispatch hands jobs to the workers without blocking. Jobs that are
// already in flight are skipped; jobs rejected by a full queue stay
// persisted for the next sweep.
func (p *Processor) Dispatch(jobs ...models.Job) {
	for _, j := range jobs {
		if !p.tracker.Add(j.Seq) {
			continue
		}
		err := p.q.Enqueue(j)
		if err == nil {
			telemetry.JobsDispatched.WithLabelValues(string(j.Kind), "queued").Inc()
			continue
		}
		p.tracker.Remove(j.Seq)
		telemetry.JobsDispatched.WithLabelValues(string(j.Kind), "rejected").Inc()
		logger.Warn("job_dispatch_rejected", "seq", j.Seq, "kind", j.Kind, "error", err)
	}
}

// Start launches the worker pool and the recovery sweeper.
func (p *Processor) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			p.workerLoop(workerID)
		}(i)
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sweepLoop()
	}()
	logger.Info("job_processor_started", "workers", p.workers, "queue_capacity", p.q.Cap())
}

// Stop signals workers to exit and waits for them. Jobs still running
// when ctx expires are cancelled and stay persisted for the next start.
func (p *Processor) Stop(ctx context.Context) {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stop)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("job_processor_stopped")
	case <-ctx.Done():
		p.cancel()
		<-done
		logger.Warn("job_processor_stop_timeout")
	}
	p.cancel()
	p.q.Close()
}

// Recover dispatches every persisted job that is not already in flight.
func (p *Processor) Recover() (int, error) {
	pending, err := p.store.PendingJobs(p.q.Cap())
	if err != nil {
		return 0, fmt.Errorf("list pending jobs: %w", err)
	}
	n := 0
	for _, j := range pending {
		if p.tracker.IsInflight(j.Seq) {
			continue
		}
		p.Dispatch(j)
		n++
	}
	if n > 0 {
		logger.Info("jobs_recovered", "count", n)
	}
	return n, nil
}

func (p *Processor) sweepLoop() {
	if _, err := p.Recover(); err != nil {
		logger.Error("job_recovery_failed", "error", err)
	}
	if p.sweepInterval <= 0 {
		return
	}
	t := time.NewTicker(p.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-t.C:
			if _, err := p.Recover(); err != nil {
				logger.Error("job_recovery_failed", "error", err)
			}
		}
	}
}

func (p *Processor) workerLoop(workerID int) {
	for {
		select {
		case <-p.stop:
			return
		case j, ok := <-p.q.Out():
			if !ok {
				return
			}
			telemetry.JobQueueDepth.Set(float64(p.q.Len()))
			p.run(workerID, j)
		}
	}
}

func (p *Processor) run(workerID int, j models.Job) {
	defer p.tracker.Remove(j.Seq)

	// a sweep can race a worker that just finished the same job
	if ok, err := p.store.HasJob(j.Seq); err == nil && !ok {
		return
	}

	fn, ok := p.handlers[j.Kind]
	if !ok || fn == nil {
		logger.Warn("no_job_handler", "kind", j.Kind, "seq", j.Seq)
		telemetry.JobsCompleted.WithLabelValues(string(j.Kind), "unhandled").Inc()
		p.finish(j)
		return
	}

	ctx := p.ctx
	var cancel context.CancelFunc
	if p.jobTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	err := safeCall(ctx, fn, j)
	cancel()

	if p.ctx.Err() != nil {
		// shutting down: keep the record so the next start retries it
		telemetry.JobsCompleted.WithLabelValues(string(j.Kind), "aborted").Inc()
		logger.Warn("job_aborted_on_shutdown", "seq", j.Seq, "kind", j.Kind)
		return
	}
	if err != nil {
		telemetry.JobsCompleted.WithLabelValues(string(j.Kind), "error").Inc()
		logger.Error("job_handler_error", "worker", workerID, "seq", j.Seq, "kind", j.Kind, "message_id", j.MessageID, "error", err)
	} else {
		telemetry.JobsCompleted.WithLabelValues(string(j.Kind), "ok").Inc()
		logger.Debug("job_done", "worker", workerID, "seq", j.Seq, "kind", j.Kind)
	}
	p.finish(j)
}

func (p *Processor) finish(j models.Job) {
	if err := p.store.DeleteJob(j.Seq); err != nil {
		logger.Error("job_delete_failed", "seq", j.Seq, "error", err)
	}
}

func safeCall(ctx context.Context, fn Handler, j models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx, j)
}

// Stats is a point-in-time view of the processor for the admin surface.
type Stats struct {
	Running  bool   `json:"running"`
	Workers  int    `json:"workers"`
	Queued   int    `json:"queued"`
	Capacity int    `json:"capacity"`
	Inflight int    `json:"inflight"`
	Dropped  uint64 `json:"dropped"`
}

func (p *Processor) Stats() Stats {
	return Stats{
		Running:  p.running.Load(),
		Workers:  p.workers,
		Queued:   p.q.Len(),
		Capacity: p.q.Cap(),
		Inflight: p.tracker.Len(),
		Dropped:  p.q.Dropped(),
	}
}
