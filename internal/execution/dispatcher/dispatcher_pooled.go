package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lambda-feedback/shellpool/internal/execution/models"
	"github.com/lambda-feedback/shellpool/internal/execution/pool"
	"github.com/lambda-feedback/shellpool/internal/execution/queue"
	"github.com/lambda-feedback/shellpool/internal/execution/worker"
	"github.com/lambda-feedback/shellpool/internal/metrics"
	"go.uber.org/zap"
)

// PooledDispatcher feeds queued commands to a pool of workers, one
// command per worker at a time. Workers pull the next command when
// they become idle; the pool grows with the backlog and shrinks when
// workers run out of work.
type PooledDispatcher struct {
	ctx    context.Context
	config PooledDispatcherConfig
	queue  *queue.Queue[*models.Command]
	pool   *pool.Pool

	// mu guards queue mutation, the pool size decisions
	// and the parked worker
	mu      sync.Mutex
	started bool
	closed  bool
	busy    int

	// parked is the single idle worker kept warm while the
	// queue is empty. unpark cancels its queue subscription.
	parked *pool.Handle
	unpark func()

	// inflight tracks running commands and pending spawns
	inflight sync.WaitGroup

	metrics *metrics.Registry
	log     *zap.Logger
}

var _ Dispatcher = (*PooledDispatcher)(nil)

type PooledDispatcherConfig struct {
	// Worker is the configuration used for every worker
	Worker worker.Config

	// Pool is the scaling configuration
	Pool pool.Config

	// SendTimeout bounds the execution of a single command.
	// Zero means no timeout.
	SendTimeout time.Duration
}

type PooledDispatcherParams struct {
	// Context bounds the lifetime of the dispatcher and its workers
	Context context.Context

	// Config is the config for the dispatcher and the underlying workers
	Config PooledDispatcherConfig

	// WorkerFactory is the factory function to create a new worker
	WorkerFactory pool.WorkerFactory

	// Metrics is the optional metrics registry
	Metrics *metrics.Registry

	// Log is the logger to use for the dispatcher
	Log *zap.Logger
}

func NewPooledDispatcher(params PooledDispatcherParams) (*PooledDispatcher, error) {
	if params.Context == nil {
		params.Context = context.Background()
	}

	p, err := pool.New(pool.Params{
		Context:       params.Context,
		Config:        params.Config.Pool,
		Worker:        params.Config.Worker,
		WorkerFactory: params.WorkerFactory,
		Log:           params.Log,
	})
	if err != nil {
		return nil, err
	}

	d := &PooledDispatcher{
		ctx:     params.Context,
		config:  params.Config,
		queue:   queue.New[*models.Command](),
		pool:    p,
		metrics: params.Metrics,
		log:     params.Log.Named("dispatcher"),
	}

	d.queue.On(queue.EventPopped, func(cmd *models.Command) {
		wait := time.Since(cmd.EnqueuedAt)
		d.metrics.CommandDequeued(wait)
		d.log.Debug("command dequeued",
			zap.String("command_id", cmd.ID),
			zap.Duration("wait", wait),
		)
	})

	return d, nil
}

// Start spawns the first worker and blocks until it printed its
// prompt. Commands submitted before Start are served as well.
func (d *PooledDispatcher) Start(ctx context.Context) error {
	d.mu.Lock()

	switch {
	case d.closed:
		d.mu.Unlock()
		return ErrDispatcherClosed
	case d.started:
		d.mu.Unlock()
		return ErrAlreadyStarted
	}

	if err := d.pool.Reserve(); err != nil {
		d.mu.Unlock()
		return err
	}

	d.started = true
	d.inflight.Add(1)
	d.mu.Unlock()

	defer d.inflight.Done()

	d.log.Debug("booting")

	h, err := d.pool.Spawn(ctx)
	d.metrics.WorkerSpawned(err)
	if err != nil {
		d.log.Error("error booting", zap.Error(err))

		d.mu.Lock()
		d.started = false
		d.updateLocked()
		d.mu.Unlock()

		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	d.mu.Lock()
	d.offerLocked(h)
	d.updateLocked()
	d.mu.Unlock()

	d.log.Debug("done booting")

	return nil
}

// Exec enqueues the command and grows the pool if the backlog
// outnumbers the workers. It never blocks on command execution.
func (d *PooledDispatcher) Exec(text string, callback models.Callback) error {
	if !utf8.ValidString(text) {
		return ErrInvalidCommand
	}

	cmd := models.NewCommand(text, callback)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	d.log.Debug("command submitted", zap.String("command_id", cmd.ID))
	d.metrics.CommandSubmitted()

	// a parked worker takes the command right away
	d.queue.Push(cmd)

	if d.pool.Grow(d.queue.Len()) {
		d.spawnLocked()
	}

	d.updateLocked()

	return nil
}

// Send submits the command and waits for it to complete. If ctx is
// done first, Send returns the context error while the command stays
// queued or keeps running.
func (d *PooledDispatcher) Send(ctx context.Context, text string) error {
	done := make(chan error, 1)

	if err := d.Exec(text, func(err error) { done <- err }); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *PooledDispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.statsLocked()
}

// Shutdown rejects new commands, fails all queued commands and waits
// for running commands to complete before the workers are stopped.
// If ctx is done first, all workers are killed.
func (d *PooledDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()

	if d.closed {
		d.mu.Unlock()
		return nil
	}

	d.log.Debug("shutting down dispatcher")

	d.closed = true
	pending := d.queue.Drain()

	if d.parked != nil {
		d.retireLocked(d.parked)
	}

	d.updateLocked()
	d.mu.Unlock()

	for _, cmd := range pending {
		cmd.Complete(ErrDispatcherClosed)
	}

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		d.pool.Close()
		close(done)
	}()

	select {
	case <-done:
		d.log.Debug("dispatcher shut down")
		return nil
	case <-ctx.Done():
		d.log.Warn("shutdown deadline exceeded, killing workers")
		d.pool.Kill()
		return ctx.Err()
	}
}

// MARK: - dispatch

// offerLocked hands the next queued command to the idle worker. With
// an empty queue, the worker is retired unless it is the only one,
// in which case it is kept warm for the next submission.
func (d *PooledDispatcher) offerLocked(h *pool.Handle) {
	if d.closed || h.Worker().State() == worker.StateTerminated {
		d.retireLocked(h)
		return
	}

	if cmd, ok := d.queue.Shift(); ok {
		d.runLocked(h, cmd)
		return
	}

	if d.pool.Size() > 1 {
		d.retireLocked(h)
		return
	}

	d.parkLocked(h)
}

func (d *PooledDispatcher) parkLocked(h *pool.Handle) {
	d.log.Debug("parking worker", zap.Uint64("worker", h.ID()))

	d.parked = h
	d.unpark = d.queue.Once(queue.EventPushed, func(*models.Command) {
		// invoked from Push, with d.mu held by Exec
		d.parked, d.unpark = nil, nil
		d.offerLocked(h)
	})
}

func (d *PooledDispatcher) runLocked(h *pool.Handle, cmd *models.Command) {
	d.busy++
	d.inflight.Add(1)

	go d.run(h, cmd)
}

func (d *PooledDispatcher) run(h *pool.Handle, cmd *models.Command) {
	defer d.inflight.Done()

	log := d.log.With(zap.String("command_id", cmd.ID), zap.Uint64("worker", h.ID()))
	w := h.Worker()

	ctx := d.ctx
	if d.config.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.SendTimeout)
		defer cancel()
	}

	log.Debug("executing command")

	start := time.Now()
	err := w.Exec(ctx, cmd.Text)
	d.metrics.CommandCompleted(time.Since(start), err)

	if err != nil {
		log.Debug("command failed", zap.Error(err))
	}

	cmd.Complete(err)

	if err != nil {
		// the worker only accepts commands again after its next prompt
		if err := w.WaitIdle(d.ctx); err != nil {
			log.Debug("worker did not recover", zap.Error(err))
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.busy--
	d.offerLocked(h)
	d.updateLocked()
}

func (d *PooledDispatcher) spawnLocked() {
	d.inflight.Add(1)

	go func() {
		defer d.inflight.Done()

		h, err := d.pool.Spawn(d.ctx)
		d.metrics.WorkerSpawned(err)

		var stranded []*models.Command

		d.mu.Lock()

		if err != nil {
			d.log.Error("failed to spawn worker", zap.Error(err))

			// no worker is left to serve the backlog
			if d.pool.Size() == 0 {
				stranded = d.queue.Drain()
			}
		} else {
			d.offerLocked(h)
		}

		d.updateLocked()
		d.mu.Unlock()

		for _, cmd := range stranded {
			cmd.Complete(err)
		}
	}()
}

func (d *PooledDispatcher) retireLocked(h *pool.Handle) {
	if d.parked == h {
		d.unpark()
		d.parked, d.unpark = nil, nil
	}

	d.pool.Retire(h)
	d.metrics.WorkerRetired()

	// replace a worker that exited while commands are waiting
	if !d.closed && d.pool.Grow(d.queue.Len()) {
		d.spawnLocked()
	}
}

func (d *PooledDispatcher) statsLocked() Stats {
	return Stats{
		Workers: d.pool.Size(),
		Queued:  d.queue.Len(),
		Busy:    d.busy,
	}
}

func (d *PooledDispatcher) updateLocked() {
	stats := d.statsLocked()
	d.metrics.SetPool(stats.Workers, stats.Queued, stats.Busy)
}
