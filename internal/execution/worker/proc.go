package worker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// chunkHandler receives a chunk read from one of the output streams.
// The slice is only valid for the duration of the call.
type chunkHandler func([]byte)

const readBufferSize = 32 * 1024

type proc struct {
	pid         int
	process     *os.Process
	termination chan struct{}
	exitErr     error
	stdin       io.WriteCloser
	stdinLock   sync.Mutex

	log *zap.Logger
}

func startProc(
	config StartConfig,
	onStdout chunkHandler,
	onStderr chunkHandler,
	log *zap.Logger,
) (*proc, error) {
	if config.Cmd == "" {
		return nil, errors.New("missing command")
	}

	cmd := exec.Command(config.Cmd, config.Args...)

	if config.Env != nil {
		env := os.Environ()
		for k, v := range config.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	if config.Cwd != "" {
		cmd.Dir = config.Cwd
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	initCmd(cmd)

	if err = cmd.Start(); err != nil {
		return nil, err
	}

	log = log.Named("worker_proc").With(zap.Int("pid", cmd.Process.Pid))

	p := &proc{
		pid:         cmd.Process.Pid,
		process:     cmd.Process,
		termination: make(chan struct{}),
		stdin:       stdin,
		log:         log,
	}

	// one persistent reader per stream. cmd.Wait closes the pipes,
	// so it must only be called after both readers hit EOF.
	var readers sync.WaitGroup
	readers.Add(2)

	go func() {
		defer readers.Done()
		p.readStream(stdout, "stdout", onStdout)
	}()

	go func() {
		defer readers.Done()
		p.readStream(stderr, "stderr", onStderr)
	}()

	go func() {
		readers.Wait()

		// block until the process exits
		p.exitErr = cmd.Wait()

		// close the termination channel
		close(p.termination)
	}()

	return p, nil
}

func (p *proc) readStream(r io.Reader, name string, handle chunkHandler) {
	buf := make([]byte, readBufferSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			handle(buf[:n])
		}

		if err != nil {
			if err != io.EOF && !errors.Is(err, os.ErrClosed) {
				p.log.Debug("stream read failed", zap.String("stream", name), zap.Error(err))
			}
			return
		}
	}
}

// Write writes data to the process stdin.
func (p *proc) Write(data []byte) error {
	p.stdinLock.Lock()
	defer p.stdinLock.Unlock()

	_, err := p.stdin.Write(data)
	return err
}

// Close closes the stdin pipe of the process, signalling the
// process that no more input will follow.
func (p *proc) Close() error {
	p.stdinLock.Lock()
	defer p.stdinLock.Unlock()

	if err := p.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}

	return nil
}

func (p *proc) Terminate(timeout time.Duration) error {
	// terminate should report success if the process terminated
	// by the time we receive the request.
	select {
	case <-p.termination:
		p.log.Debug("process already terminated")
		return nil
	default:
		// continue
	}

	p.kill(syscall.SIGTERM)

	return p.waitForTermination(timeout)
}

func (p *proc) Kill(timeout time.Duration) error {
	// kill should report success if the process terminated
	// by the time we receive the request.
	select {
	case <-p.termination:
		p.log.Debug("process already terminated")
		return nil
	default:
		// continue
	}

	p.kill(syscall.SIGKILL)

	return p.waitForTermination(timeout)
}

// Done returns a channel that is closed once the process exited
// and its output streams were drained.
func (p *proc) Done() <-chan struct{} {
	return p.termination
}

// Err returns the error reported by the process exit. It must only
// be called after Done was closed.
func (p *proc) Err() error {
	return p.exitErr
}

func (p *proc) waitForTermination(timeout time.Duration) error {
	// if timeout is < 0, don't wait for the process to exit
	if timeout < 0 {
		return nil
	}

	// if timeout is 0, wait indefinitely
	if timeout == 0 {
		<-p.termination
		return nil
	}

	select {
	case <-p.termination:
		return nil
	case <-time.After(timeout):
		return ErrKillTimeout
	}
}

func (p *proc) kill(signal syscall.Signal) {
	log := p.log.With(zap.Stringer("signal", signal))

	// close stdin before killing the process, to
	// avoid the process hanging on input
	if err := p.Close(); err != nil {
		log.Debug("close stdin failed", zap.Error(err))
	}

	log.Debug("sending signal")

	// best effort, ignore errors
	if err := p.sendKillSignal(signal); err != nil {
		log.Debug("signal failed", zap.Error(err))
	}
}
