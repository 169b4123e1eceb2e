package interp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glazeware/glaze/internal/errors"
	"github.com/glazeware/glaze/internal/logging"
	"github.com/glazeware/glaze/internal/registry"
)

// DispatchPolicy selects how Submit routes jobs to workers.
type DispatchPolicy string

const (
	DispatchRoundRobin DispatchPolicy = "round_robin"
	DispatchLeastBusy  DispatchPolicy = "least_busy"
)

// Config tunes the pool. Zero values fall back to the defaults below.
type Config struct {
	Workers        int
	Dispatch       DispatchPolicy
	QueueDepth     int
	AcquireTimeout time.Duration
	Retries        int
	Backoff        time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Dispatch == "" {
		c.Dispatch = DispatchRoundRobin
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 1
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 250 * time.Millisecond
	}
	if c.Retries < 0 {
		c.Retries = 0
	} else if c.Retries == 0 {
		c.Retries = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 50 * time.Millisecond
	}
	return c
}

// Observer receives timing for every completed script call. Used by the
// server to feed metrics; nil is fine.
type Observer func(job Job, elapsed time.Duration, err error)

// Pool is the execution manager: a fixed set of workers plus the dispatch
// policy routing jobs onto them.
type Pool struct {
	cfg      Config
	logger   logging.Logger
	workers  []*worker
	modules  atomic.Pointer[ModuleSet]
	db       interface{}
	next     atomic.Uint64
	observer Observer
	quit     chan struct{}
	wg       sync.WaitGroup
	started  atomic.Bool
	closed   atomic.Bool
}

// NewPool creates a stopped pool. Call UpdateModules with the first module
// set, then Start.
func NewPool(cfg Config, logger logging.Logger) *Pool {
	p := &Pool{
		cfg:    cfg.withDefaults(),
		logger: logger.WithSubsystem("interp"),
		quit:   make(chan struct{}),
	}
	p.modules.Store(&ModuleSet{modules: map[string]*Module{}})
	for i := 0; i < p.cfg.Workers; i++ {
		p.workers = append(p.workers, newWorker(i, p, p.cfg.QueueDepth))
	}
	return p
}

// SetDatabase registers the opaque database handle passed through to every
// script call. Must be called before Start; the pool never interprets it.
func (p *Pool) SetDatabase(db interface{}) {
	p.db = db
}

// SetObserver registers the completion hook. Must be called before Start.
func (p *Pool) SetObserver(obs Observer) {
	p.observer = obs
}

// Start launches the worker threads.
func (p *Pool) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for _, w := range p.workers {
		p.wg.Add(1)
		go w.run()
	}
	p.logger.Info(context.Background(), "execution pool started",
		"workers", p.cfg.Workers, "dispatch", string(p.cfg.Dispatch))
}

// Close stops all workers and waits for them to drain their current job.
// Safe to call more than once.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.quit)
	p.wg.Wait()
}

// UpdateModules publishes a freshly compiled module set. Workers pick it
// up on their next job; cached instances with stale hashes are rebuilt.
func (p *Pool) UpdateModules(set *ModuleSet) {
	p.modules.Store(set)
}

// RebuildModules compiles the snapshot and publishes the result. Compile
// failures degrade to per-component exclusion, logged here.
func (p *Pool) RebuildModules(snap *registry.Snapshot) {
	set, errs := BuildModuleSet(snap)
	for _, err := range errs {
		p.logger.Error(context.Background(), err, "component script failed to compile")
	}
	p.UpdateModules(set)
}

// Submit routes one job to a worker and awaits its result. A component
// without a compiled script loads an empty context; an action against it
// is a typed failure, since a scriptless component has no handlers. When
// every worker stays busy past the acquire timeout through all retries,
// Submit fails with the pool-exhausted error. A caller whose context ends
// while the job runs gets the context error; the job's eventual result is
// discarded, not delivered.
func (p *Pool) Submit(ctx context.Context, job Job) (map[string]interface{}, error) {
	if _, ok := p.modules.Load().Lookup(job.ComponentID); !ok {
		if job.Kind == JobAction {
			return nil, errors.NewActionNotFound(job.ComponentID, job.Action)
		}
		return map[string]interface{}{}, nil
	}

	env := jobEnvelope{job: job, reply: make(chan jobResult, 1)}
	start := time.Now()

	if err := p.dispatch(ctx, env); err != nil {
		p.observe(job, time.Since(start), err)
		return nil, err
	}

	select {
	case res := <-env.reply:
		p.observe(job, time.Since(start), res.err)
		return res.data, res.err
	case <-ctx.Done():
		p.observe(job, time.Since(start), ctx.Err())
		return nil, ctx.Err()
	case <-p.quit:
		// The worker may have stopped without draining its queue; never
		// leave a deadline-less caller waiting on a reply that cannot come.
		err := errors.NewPoolExhausted(job.ComponentID)
		p.observe(job, time.Since(start), err)
		return nil, err
	}
}

// dispatch hands the envelope to a worker, retrying with backoff while all
// queues stay full.
func (p *Pool) dispatch(ctx context.Context, env jobEnvelope) error {
	backoff := p.cfg.Backoff
	for attempt := 0; attempt <= p.cfg.Retries; attempt++ {
		w := p.pick()

		timer := time.NewTimer(p.cfg.AcquireTimeout)
		select {
		case w.jobs <- env:
			timer.Stop()
			return nil
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-p.quit:
			timer.Stop()
			return errors.NewPoolExhausted(env.job.ComponentID)
		}

		if attempt < p.cfg.Retries {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return errors.NewPoolExhausted(env.job.ComponentID)
}

func (p *Pool) pick() *worker {
	if p.cfg.Dispatch == DispatchLeastBusy {
		best := p.workers[0]
		for _, w := range p.workers[1:] {
			if len(w.jobs) < len(best.jobs) {
				best = w
			}
		}
		return best
	}
	n := p.next.Add(1)
	return p.workers[int(n)%len(p.workers)]
}

func (p *Pool) observe(job Job, elapsed time.Duration, err error) {
	if p.observer != nil {
		p.observer(job, elapsed, err)
	}
}
