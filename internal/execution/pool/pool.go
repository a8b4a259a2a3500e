package pool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/lambda-feedback/shellpool/internal/execution/worker"
	"go.uber.org/zap"
)

// DefaultBacklogRatio is the number of queued commands per worker
// tolerated before the pool grows.
const DefaultBacklogRatio = 5

// DefaultStopTimeout is the time a retired worker gets to exit after
// its input was closed, before it is killed.
const DefaultStopTimeout = 5 * time.Second

var ErrPoolClosed = errors.New("pool closed")

type Config struct {
	// MaxWorkers caps the number of workers. Zero means unbounded.
	MaxWorkers int `conf:"max_workers"`

	// BacklogRatio is the number of queued commands per worker
	// tolerated before another worker is spawned
	BacklogRatio int `conf:"backlog_ratio"`
}

// Validate checks the pool configuration.
func (c Config) Validate() error {
	if c.MaxWorkers < 0 {
		return fmt.Errorf("max_workers must not be negative, got %d", c.MaxWorkers)
	}

	if c.BacklogRatio < 0 {
		return fmt.Errorf("backlog_ratio must not be negative, got %d", c.BacklogRatio)
	}

	return nil
}

// WorkerFactory creates a worker that is not started yet. The worker
// must terminate its process once ctx is cancelled.
type WorkerFactory func(context.Context, worker.Config, *zap.Logger) (worker.Worker, error)

func defaultWorkerFactory(
	ctx context.Context,
	config worker.Config,
	log *zap.Logger,
) (worker.Worker, error) {
	return worker.NewProcessWorker(ctx, config, log)
}

type Params struct {
	// Context bounds the lifetime of every worker in the pool
	Context context.Context

	// Config is the scaling configuration
	Config Config

	// Worker is the configuration every worker is created with
	Worker worker.Config

	// WorkerFactory creates new workers. Defaults to process workers.
	WorkerFactory WorkerFactory

	// Log is the logger to use for the pool
	Log *zap.Logger
}

// Handle is a worker owned by the pool.
type Handle struct {
	id  uint64
	res *puddle.Resource[worker.Worker]
}

// ID returns the spawn sequence number of the worker.
func (h *Handle) ID() uint64 {
	return h.id
}

// Worker returns the underlying worker.
func (h *Handle) Worker() worker.Worker {
	return h.res.Value()
}

// Pool keeps track of the workers serving the dispatcher.
//
// Workers are never released back to the underlying puddle pool, every
// Spawn constructs and starts a fresh worker. The puddle pool owns the
// construction and destruction of workers; the scaling decision is made
// on the number of reserved slots.
type Pool struct {
	ctx    context.Context
	config Config
	res    *puddle.Pool[worker.Worker]

	mu      sync.Mutex
	live    int
	seq     uint64
	members map[*Handle]struct{}
	closed  bool

	log *zap.Logger
}

func New(params Params) (*Pool, error) {
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}

	if params.Context == nil {
		params.Context = context.Background()
	}

	if params.WorkerFactory == nil {
		params.WorkerFactory = defaultWorkerFactory
	}

	if params.Config.BacklogRatio == 0 {
		params.Config.BacklogRatio = DefaultBacklogRatio
	}

	if params.Worker.Stop.Timeout <= 0 {
		params.Worker.Stop.Timeout = DefaultStopTimeout
	}

	log := params.Log.Named("pool")

	res, err := createPool(params, log)
	if err != nil {
		return nil, err
	}

	return &Pool{
		ctx:     params.Context,
		config:  params.Config,
		res:     res,
		members: make(map[*Handle]struct{}),
		log:     log,
	}, nil
}

// Grow reserves a slot for another worker if the backlog outnumbers
// the workers by more than the backlog ratio, and the worker cap is
// not reached yet. The caller must fill a reserved slot with Spawn.
func (p *Pool) Grow(backlog int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}

	// backlog / ratio > live, without integer truncation
	if backlog <= p.config.BacklogRatio*p.live {
		return false
	}

	if p.config.MaxWorkers > 0 && p.live >= p.config.MaxWorkers {
		p.log.Debug("worker cap reached", zap.Int("backlog", backlog), zap.Int("workers", p.live))
		return false
	}

	p.live++

	return true
}

// Reserve reserves a slot regardless of the backlog and the worker
// cap. It fails only if the pool is closed.
func (p *Pool) Reserve() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.live++

	return nil
}

// Spawn fills a reserved slot with a freshly started worker. The slot
// is released if the worker fails to start.
func (p *Pool) Spawn(ctx context.Context) (*Handle, error) {
	res, err := p.res.Acquire(ctx)
	if err != nil {
		p.release()
		return nil, fmt.Errorf("failed to spawn worker: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	h := &Handle{id: p.seq, res: res}
	p.members[h] = struct{}{}

	p.log.Debug("worker spawned",
		zap.Uint64("worker", h.id),
		zap.Int("pid", res.Value().Pid()),
		zap.Int("workers", p.live),
	)

	return h, nil
}

// Retire removes the worker from the pool and shuts it down in the
// background.
func (p *Pool) Retire(h *Handle) {
	p.mu.Lock()
	if _, ok := p.members[h]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.members, h)
	p.live--
	live := p.live
	p.mu.Unlock()

	p.log.Debug("retiring worker", zap.Uint64("worker", h.id), zap.Int("workers", live))

	h.res.Destroy()
}

// Size returns the number of workers counted for scaling, including
// workers that are still starting.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.live
}

// Kill sends SIGKILL to every worker in the pool.
func (p *Pool) Kill() {
	p.mu.Lock()
	members := make([]*Handle, 0, len(p.members))
	for h := range p.members {
		members = append(members, h)
	}
	p.mu.Unlock()

	for _, h := range members {
		if err := h.Worker().Kill(); err != nil {
			p.log.Debug("failed to kill worker", zap.Uint64("worker", h.id), zap.Error(err))
		}
	}
}

// Close rejects further reservations and blocks until all workers
// were destroyed. All handles must be retired before.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.res.Close()
}

func (p *Pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.live--
}

// MARK: - puddle

func createPool(params Params, log *zap.Logger) (*puddle.Pool[worker.Worker], error) {
	constructor := func(ctx context.Context) (worker.Worker, error) {
		w, err := params.WorkerFactory(params.Context, params.Worker, params.Log)
		if err != nil {
			return nil, err
		}

		if err := w.Start(ctx); err != nil {
			// the process may be running even though it never got ready
			_ = w.Kill()
			return nil, err
		}

		return w, nil
	}

	destructor := func(w worker.Worker) {
		stopWorker(params.Context, w, params.Worker.Stop.Timeout, log)
	}

	return puddle.NewPool(&puddle.Config[worker.Worker]{
		Constructor: constructor,
		Destructor:  destructor,
		// the worker cap is enforced by Grow. retired workers keep
		// counting towards the puddle size until they are destroyed.
		MaxSize: math.MaxInt32,
	})
}

// stopWorker closes the input of the worker and waits for it to exit.
// The worker is killed if it does not exit within the timeout.
func stopWorker(ctx context.Context, w worker.Worker, timeout time.Duration, log *zap.Logger) {
	log = log.With(zap.Int("pid", w.Pid()))

	if err := w.Close(); err != nil {
		log.Debug("failed to close worker input", zap.Error(err))
	}

	evt, err := w.WaitFor(ctx, timeout)
	if err == nil {
		log.Debug("worker exited", zap.Any("exit", evt))
		return
	}

	log.Warn("worker did not exit in time, killing", zap.Duration("timeout", timeout))

	if err := w.Kill(); err != nil {
		log.Error("failed to kill worker", zap.Error(err))
		return
	}

	if _, err := w.WaitFor(context.Background(), timeout); err != nil {
		log.Error("failed waiting for killed worker", zap.Error(err))
	}
}
