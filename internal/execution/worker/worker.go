package worker

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// State is the readiness state of a worker.
type State int32

const (
	// StateStarting means the process was spawned, but has not
	// printed its first prompt yet.
	StateStarting State = iota

	// StateIdle means the process printed its prompt and no
	// command is assigned.
	StateIdle

	// StateBusy means a command was written to the process and
	// the worker waits for the prompt to reappear.
	StateBusy

	// StateTerminated means the process exited.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type ExitEvent struct {
	// Code is the exit code of the process
	Code *int

	// Signal is the signal that caused the process to exit
	Signal *int
}

type Worker interface {
	// Start spawns the process and blocks until it is ready for input.
	Start(context.Context) error

	// Exec writes a command to the process and blocks until the
	// process signals completion.
	Exec(context.Context, string) error

	// WaitIdle blocks until the worker accepts commands again.
	WaitIdle(context.Context) error

	// State returns the current worker state.
	State() State

	// Pid returns the process id, or 0 if not started.
	Pid() int

	// Close closes the process input, requesting a graceful exit.
	Close() error

	Terminate() error
	Kill() error
	Wait(context.Context) (ExitEvent, error)
	WaitFor(context.Context, time.Duration) (ExitEvent, error)
}

type ProcessWorker struct {
	ctx    context.Context
	config StartConfig

	mu       sync.Mutex
	state    State
	process  *proc
	detector PromptDetector

	// pending receives the outcome of the startup or of the command
	// in flight. It is nil when nothing waits for a completion signal.
	pending chan error

	// idle is closed when the worker enters StateIdle
	idle chan struct{}

	// stderr collects error output of a failed startup
	stderr strings.Builder

	log *zap.Logger
}

var _ Worker = (*ProcessWorker)(nil)

// NewProcessWorker creates a worker for the given config. The process
// is killed when ctx is cancelled.
func NewProcessWorker(
	ctx context.Context,
	config Config,
	log *zap.Logger,
) (*ProcessWorker, error) {
	detector, err := NewPromptDetector(config.Prompt)
	if err != nil {
		return nil, err
	}

	return &ProcessWorker{
		ctx:      ctx,
		config:   config.Start,
		detector: detector,
		idle:     make(chan struct{}),
		log:      log.Named("worker"),
	}, nil
}

// Start starts the worker process and waits for its first prompt. If
// the process writes to stderr before the prompt appears, the startup
// fails with the error output and the worker remains unusable.
func (w *ProcessWorker) Start(ctx context.Context) error {
	w.log.Debug("starting worker process",
		zap.String("command", w.config.Cmd),
		zap.Strings("args", w.config.Args),
		zap.String("cwd", w.config.Cwd),
	)

	// exit early if the context is already cancelled
	if ctx.Err() != nil {
		return fmt.Errorf("failed to start process: %w", ctx.Err())
	}

	w.mu.Lock()

	// return if the worker is already started
	if w.process != nil {
		w.mu.Unlock()
		return ErrWorkerAlreadyStarted
	}

	pending := make(chan error, 1)
	w.pending = pending

	process, err := startProc(w.config, w.handleStdout, w.handleStderr, w.log)
	if err != nil {
		w.pending = nil
		w.mu.Unlock()
		return fmt.Errorf("failed to start process: %w", err)
	}

	w.process = process
	w.log = w.log.With(zap.Int("pid", process.pid))
	w.mu.Unlock()

	go w.watch(process)

	if w.config.StartupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.StartupTimeout)
		defer cancel()
	}

	select {
	case err := <-pending:
		if err != nil {
			w.log.Debug("worker failed to start", zap.Error(err))
			return err
		}
		w.log.Debug("worker ready")
		return nil
	case <-ctx.Done():
		w.clearPending(pending)
		return fmt.Errorf("waiting for prompt: %w", ctx.Err())
	}
}

// Exec writes the command to the process and waits for the prompt to
// reappear. A trailing newline is appended unless the command already
// ends with one.
//
// If the process writes to stderr while the command is pending, the
// command fails with a *StderrError. The worker stays busy until the
// process prints its next prompt. If ctx is done before the command
// completes, Exec returns the context error; the command itself keeps
// running and cannot be aborted.
func (w *ProcessWorker) Exec(ctx context.Context, command string) error {
	w.mu.Lock()

	switch {
	case w.process == nil:
		w.mu.Unlock()
		return ErrWorkerNotStarted
	case w.state == StateTerminated:
		w.mu.Unlock()
		return ErrWorkerTerminated
	case w.state != StateIdle:
		w.mu.Unlock()
		return ErrWorkerBusy
	}

	pending := make(chan error, 1)
	w.pending = pending
	w.setStateLocked(StateBusy)
	w.detector.Reset()
	process := w.process
	w.mu.Unlock()

	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}

	// write outside the lock, the process may block on a full
	// stdout pipe until the reader drains it
	if err := process.Write([]byte(command)); err != nil {
		w.clearPending(pending)
		return fmt.Errorf("failed to write command: %w", err)
	}

	select {
	case err := <-pending:
		return err
	case <-ctx.Done():
		w.clearPending(pending)
		return ctx.Err()
	}
}

// WaitIdle blocks until the worker is idle. It returns
// ErrWorkerTerminated if the process exits first.
func (w *ProcessWorker) WaitIdle(ctx context.Context) error {
	for {
		w.mu.Lock()
		state, idle, process := w.state, w.idle, w.process
		w.mu.Unlock()

		switch state {
		case StateIdle:
			return nil
		case StateTerminated:
			return ErrWorkerTerminated
		}

		var done <-chan struct{}
		if process != nil {
			done = process.Done()
		}

		select {
		case <-idle:
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// State returns the current state of the worker.
func (w *ProcessWorker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.state
}

// Pid returns the pid of the worker process.
func (w *ProcessWorker) Pid() int {
	if process := w.acquireProcess(); process != nil {
		return process.pid
	}

	return 0
}

// Close closes the input stream of the worker process. Interactive
// shells treat this as a request to exit.
func (w *ProcessWorker) Close() error {
	if process := w.acquireProcess(); process != nil {
		return process.Close()
	}

	return ErrWorkerNotStarted
}

// Terminate sends a SIGTERM signal to the worker process to request it to stop.
// The method returns immediately, without waiting for the process to stop.
func (w *ProcessWorker) Terminate() error {
	if process := w.acquireProcess(); process != nil {
		return process.Terminate(-1)
	}

	return ErrWorkerNotStarted
}

// Kill sends a SIGKILL signal to the worker process.
// The method returns immediately, without waiting for the process to stop.
func (w *ProcessWorker) Kill() error {
	if process := w.acquireProcess(); process != nil {
		return process.Kill(-1)
	}

	return ErrWorkerNotStarted
}

// Wait waits for the worker process to exit. The method returns an
// ExitEvent that contains the exit status of the process. If the process
// is already terminated, the method returns immediately.
func (w *ProcessWorker) Wait(ctx context.Context) (ExitEvent, error) {
	process := w.acquireProcess()
	if process == nil {
		return ExitEvent{}, ErrWorkerNotStarted
	}

	select {
	case <-ctx.Done():
		return ExitEvent{}, ctx.Err()
	case <-process.Done():
		return getExitEvent(process.Err()), nil
	}
}

// WaitFor waits for the worker process to exit. It blocks until the process
// exits or the timeout is reached. A timeout <= 0 waits indefinitely.
func (w *ProcessWorker) WaitFor(
	ctx context.Context,
	deadline time.Duration,
) (ExitEvent, error) {
	var waitCtx context.Context
	var cancel context.CancelFunc

	if deadline <= 0 {
		waitCtx, cancel = context.WithCancel(ctx)
	} else {
		waitCtx, cancel = context.WithTimeout(ctx, deadline)
	}

	defer cancel()

	return w.Wait(waitCtx)
}

// MARK: - state machine

func (w *ProcessWorker) handleStdout(chunk []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.detector.Ready(chunk) {
		return
	}

	switch w.state {
	case StateStarting:
		if w.pending == nil {
			// the startup already failed
			return
		}
		w.setStateLocked(StateIdle)
		w.signalLocked(nil)
	case StateBusy:
		w.setStateLocked(StateIdle)
		w.signalLocked(nil)
	case StateIdle:
		w.log.Debug("ignoring prompt while idle")
	}
}

func (w *ProcessWorker) handleStderr(chunk []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.pending == nil:
		w.log.Warn("unexpected error output", zap.ByteString("stderr", chunk))
	case w.state == StateStarting:
		w.stderr.Write(chunk)
		w.signalLocked(newStartupError(w.stderr.String()))
	case w.state == StateBusy:
		w.signalLocked(newCommandError(string(chunk)))
	}
}

func (w *ProcessWorker) watch(process *proc) {
	select {
	case <-process.Done():
	case <-w.ctx.Done():
		// kill the process without further ado
		w.log.Debug("context done, killing worker")
		process.Kill(-1)
		<-process.Done()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.log.Debug("worker process exited", zap.Stringer("state", w.state))

	w.setStateLocked(StateTerminated)
	w.signalLocked(ErrWorkerExited)
}

// signalLocked delivers the outcome to the goroutine waiting on the
// pending channel, if any.
func (w *ProcessWorker) signalLocked(err error) {
	if w.pending == nil {
		return
	}

	w.pending <- err
	w.pending = nil
}

// clearPending abandons the pending completion signal, if it still
// belongs to the caller.
func (w *ProcessWorker) clearPending(pending chan error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending == pending {
		w.pending = nil
	}
}

func (w *ProcessWorker) setStateLocked(state State) {
	if w.state == state {
		return
	}

	if w.state == StateIdle {
		w.idle = make(chan struct{})
	}

	w.state = state

	if state == StateIdle {
		close(w.idle)
	}
}

// acquireProcess returns the worker process. The method is thread-safe.
func (w *ProcessWorker) acquireProcess() *proc {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.process
}

// MARK: - Helpers

func getExitEvent(err error) ExitEvent {
	var cell int
	var exitStatus *int
	var signo *int

	if err == nil {
		// the process exited successfully, set the exit code to 0
		exitStatus = &cell
	} else if exitError, ok := err.(*exec.ExitError); ok {
		// the process exited with an error
		if status, ok := exitError.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// the process was terminated by a signal
				cell = int(status.Signal())
				signo = &cell
			} else {
				// the process exited with an exit code
				cell = status.ExitStatus()
				exitStatus = &cell
			}
		}
	}

	if signo == nil && exitStatus == nil {
		// could not determine the exit status or signal,
		// set exit status to 1
		cell = 1
		exitStatus = &cell
	}

	return ExitEvent{
		Code:   exitStatus,
		Signal: signo,
	}
}
