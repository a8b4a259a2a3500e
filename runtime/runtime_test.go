package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lambda-feedback/shellpool/internal/execution/worker"
	"github.com/lambda-feedback/shellpool/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func shellConfig() runtime.Config {
	return runtime.Config{
		Worker: worker.Config{
			Start: worker.StartConfig{
				Cmd: "sh",
				Args: []string{"-c", `printf '>'
while IFS= read -r line; do
  case "$line" in
    fail*) echo "$line" >&2; sleep 0.2;;
  esac
  printf '>'
done`},
			},
			Stop: worker.StopConfig{Timeout: 2 * time.Second},
		},
	}
}

func TestShellRuntime_Handle(t *testing.T) {
	r, err := runtime.NewRuntime(runtime.RuntimeParams{
		Context: context.Background(),
		Config:  shellConfig(),
		Log:     zap.NewNop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, r.Start(ctx))

	res, err := r.Handle(ctx, runtime.ExecRequest{Command: "convert"})
	require.NoError(t, err)
	assert.Equal(t, "convert", res.Command)
	assert.Equal(t, "ok", res.Status)
	assert.GreaterOrEqual(t, res.DurationMs, int64(0))

	_, err = r.Handle(ctx, runtime.ExecRequest{Command: "fail"})
	var stderrErr *worker.StderrError
	assert.True(t, errors.As(err, &stderrErr))

	assert.Equal(t, 1, r.Stats().Workers)

	done := make(chan error, 1)
	require.NoError(t, r.Exec("async", func(err error) { done <- err }))
	assert.NoError(t, <-done)

	require.NoError(t, r.Shutdown(ctx))
}

func TestNewRuntime_InvalidConfig(t *testing.T) {
	_, err := runtime.NewRuntime(runtime.RuntimeParams{
		Context: context.Background(),
		Log:     zap.NewNop(),
	})
	assert.Error(t, err)
}

func TestNewLifecycleRuntime_StartsAndStops(t *testing.T) {
	lc := fxtest.NewLifecycle(t)

	r, err := runtime.NewLifecycleRuntime(runtime.RuntimeParams{
		Context: context.Background(),
		Config:  shellConfig(),
		Log:     zap.NewNop(),
	}, lc)
	require.NoError(t, err)

	lc.RequireStart()
	assert.Equal(t, 1, r.Stats().Workers)

	lc.RequireStop()
	assert.Equal(t, 0, r.Stats().Workers)
}
