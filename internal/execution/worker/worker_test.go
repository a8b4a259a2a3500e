package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lambda-feedback/shellpool/internal/execution/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// promptShell mimics an interactive shell: it prints a prompt, then
// reads one command per line and prints the prompt again.
const promptShell = `printf '>'
while IFS= read -r line; do
  case "$line" in
    fail*) printf 'error: %s\n' "$line" >&2; sleep 0.2;;
    slow*) sleep 0.3;;
    raw\ *) printf '%s' "${line#raw }"; sleep 0.1; printf '\n';;
    echo\ *) printf '%s\n' "${line#echo }";;
  esac
  printf '>'
done`

func shellConfig(mode worker.PromptMode) worker.Config {
	return worker.Config{
		Start: worker.StartConfig{
			Cmd:  "sh",
			Args: []string{"-c", promptShell},
		},
		Prompt: worker.PromptConfig{Mode: mode},
	}
}

func startShell(t *testing.T, mode worker.PromptMode) *worker.ProcessWorker {
	t.Helper()

	w, err := worker.NewProcessWorker(context.Background(), shellConfig(mode), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, w.Start(ctx))

	t.Cleanup(func() {
		_ = w.Kill()
	})

	return w
}

func execTimeout(t *testing.T, w worker.Worker, command string) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return w.Exec(ctx, command)
}

func TestNewProcessWorker_InvalidPromptMode(t *testing.T) {
	config := shellConfig("glob")

	_, err := worker.NewProcessWorker(context.Background(), config, zap.NewNop())
	assert.ErrorIs(t, err, worker.ErrInvalidPromptMode)
}

func TestWorker_Start_BecomesIdle(t *testing.T) {
	w := startShell(t, worker.PromptSuffix)

	assert.Equal(t, worker.StateIdle, w.State())

	pid := w.Pid()
	require.NotZero(t, pid)
	assert.True(t, worker.IsProcessAlive(pid))
}

func TestWorker_Start_FailsIfStarted(t *testing.T) {
	w := startShell(t, worker.PromptSuffix)

	err := w.Start(context.Background())
	assert.ErrorIs(t, err, worker.ErrWorkerAlreadyStarted)
}

func TestWorker_Start_ReturnsErrorIfInvalidCommand(t *testing.T) {
	w, err := worker.NewProcessWorker(context.Background(), worker.Config{}, zap.NewNop())
	require.NoError(t, err)

	assert.Error(t, w.Start(context.Background()))
}

func TestWorker_Start_FailsIfContextCancelled(t *testing.T) {
	w, err := worker.NewProcessWorker(context.Background(), shellConfig(""), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, w.Start(ctx), context.Canceled)
	assert.Zero(t, w.Pid())
}

func TestWorker_Start_FailsOnStderr(t *testing.T) {
	config := worker.Config{
		Start: worker.StartConfig{
			Cmd:  "sh",
			Args: []string{"-c", `echo boom >&2; sleep 1; printf '>'`},
		},
	}

	w, err := worker.NewProcessWorker(context.Background(), config, zap.NewNop())
	require.NoError(t, err)

	defer w.Kill()

	err = w.Start(context.Background())
	require.Error(t, err)

	var stderrErr *worker.StderrError
	require.True(t, errors.As(err, &stderrErr))
	assert.Equal(t, "boom", stderrErr.Error())
	assert.Equal(t, worker.StateStarting, w.State())
}

func TestWorker_Start_TimesOutWithoutPrompt(t *testing.T) {
	config := worker.Config{
		Start: worker.StartConfig{
			Cmd:            "sleep",
			Args:           []string{"10"},
			StartupTimeout: 100 * time.Millisecond,
		},
	}

	w, err := worker.NewProcessWorker(context.Background(), config, zap.NewNop())
	require.NoError(t, err)

	defer w.Kill()

	err = w.Start(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorker_Exec_CompletesOnPrompt(t *testing.T) {
	w := startShell(t, worker.PromptSuffix)

	err := execTimeout(t, w, "echo file.svg --export-filename=file.png")
	assert.NoError(t, err)
	assert.Equal(t, worker.StateIdle, w.State())
}

func TestWorker_Exec_KeepsTrailingNewline(t *testing.T) {
	w := startShell(t, worker.PromptSuffix)

	assert.NoError(t, execTimeout(t, w, "echo one\n"))
	assert.NoError(t, execTimeout(t, w, "echo two"))
}

func TestWorker_Exec_FailsOnStderr(t *testing.T) {
	w := startShell(t, worker.PromptSuffix)

	err := execTimeout(t, w, "fail now")
	require.Error(t, err)

	var stderrErr *worker.StderrError
	require.True(t, errors.As(err, &stderrErr))
	assert.Equal(t, "error: fail now", stderrErr.Error())

	// the worker stays busy until the prompt reappears
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, w.WaitIdle(ctx))

	// and is usable again afterwards
	assert.NoError(t, execTimeout(t, w, "echo again"))
}

func TestWorker_Exec_FailsIfBusy(t *testing.T) {
	w := startShell(t, worker.PromptSuffix)

	done := make(chan error, 1)
	go func() {
		done <- execTimeout(t, w, "slow")
	}()

	require.Eventually(t, func() bool {
		return w.State() == worker.StateBusy
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, execTimeout(t, w, "echo other"), worker.ErrWorkerBusy)
	assert.NoError(t, <-done)
}

func TestWorker_Exec_ContextDoneLeavesWorkerBusy(t *testing.T) {
	w := startShell(t, worker.PromptSuffix)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := w.Exec(ctx, "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, worker.StateBusy, w.State())

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()

	require.NoError(t, w.WaitIdle(waitCtx))
	assert.Equal(t, worker.StateIdle, w.State())
}

func TestWorker_Exec_FailsIfNotStarted(t *testing.T) {
	w, err := worker.NewProcessWorker(context.Background(), shellConfig(""), zap.NewNop())
	require.NoError(t, err)

	assert.ErrorIs(t, w.Exec(context.Background(), "echo x"), worker.ErrWorkerNotStarted)
	assert.ErrorIs(t, w.Close(), worker.ErrWorkerNotStarted)
	assert.ErrorIs(t, w.Kill(), worker.ErrWorkerNotStarted)
	assert.ErrorIs(t, w.Terminate(), worker.ErrWorkerNotStarted)
	assert.Zero(t, w.Pid())
}

func TestWorker_LinePrompt_IgnoresMarkerInOutput(t *testing.T) {
	w := startShell(t, worker.PromptLine)

	start := time.Now()

	// "out>" ends with the marker, but the prompt follows
	// only after the newline printed 100ms later
	err := execTimeout(t, w, "raw out>")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	assert.NoError(t, execTimeout(t, w, "echo next"))
}

func TestWorker_Close_TerminatesWorker(t *testing.T) {
	w := startShell(t, worker.PromptSuffix)

	require.NoError(t, w.Close())

	evt, err := w.WaitFor(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, evt.Code)
	assert.Equal(t, 0, *evt.Code)
	assert.Nil(t, evt.Signal)

	require.Eventually(t, func() bool {
		return w.State() == worker.StateTerminated
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, w.WaitIdle(context.Background()), worker.ErrWorkerTerminated)
	assert.ErrorIs(t, w.Exec(context.Background(), "echo x"), worker.ErrWorkerTerminated)
}

func TestWorker_Exec_FailsIfProcessExits(t *testing.T) {
	config := worker.Config{
		Start: worker.StartConfig{
			Cmd:  "sh",
			Args: []string{"-c", `printf '>'; read -r line; exit 2`},
		},
	}

	w, err := worker.NewProcessWorker(context.Background(), config, zap.NewNop())
	require.NoError(t, err)

	defer w.Kill()

	require.NoError(t, w.Start(context.Background()))

	err = execTimeout(t, w, "anything")
	assert.ErrorIs(t, err, worker.ErrWorkerExited)

	evt, err := w.Wait(context.Background())
	require.NoError(t, err)
	require.NotNil(t, evt.Code)
	assert.Equal(t, 2, *evt.Code)
}

func TestWorker_TerminatesIfContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	w, err := worker.NewProcessWorker(ctx, shellConfig(""), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))

	cancel()

	evt, err := w.WaitFor(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, evt.Signal)

	require.Eventually(t, func() bool {
		return w.State() == worker.StateTerminated
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorker_WaitFor_ReturnsErrorIfTimeout(t *testing.T) {
	w := startShell(t, worker.PromptSuffix)

	_, err := w.WaitFor(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorker_Terminate_TerminatesProcess(t *testing.T) {
	w := startShell(t, worker.PromptSuffix)

	require.NoError(t, w.Terminate())

	evt, err := w.WaitFor(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, evt.Signal)
	assert.Equal(t, 15, *evt.Signal)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "starting", worker.StateStarting.String())
	assert.Equal(t, "idle", worker.StateIdle.String())
	assert.Equal(t, "busy", worker.StateBusy.String())
	assert.Equal(t, "terminated", worker.StateTerminated.String())
	assert.Equal(t, "unknown", worker.State(9).String())
}
