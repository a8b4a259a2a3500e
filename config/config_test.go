package config_test

import (
	"testing"
	"time"

	"github.com/lambda-feedback/shellpool/config"
	"github.com/lambda-feedback/shellpool/internal/execution/worker"
	"github.com/lambda-feedback/shellpool/util/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Keys(t *testing.T) {
	assert.Equal(t, "info", config.DefaultConfig["log_level"])
	assert.Equal(t, "inkscape", config.DefaultConfig["runtime.worker.cmd"])
	assert.Equal(t, 5, config.DefaultConfig["runtime.pool.backlog_ratio"])
}

func TestDefaultConfig_Parse(t *testing.T) {
	cfg, err := conf.Parse[config.Config](conf.ParseOptions{
		Defaults:  config.DefaultConfig,
		EnvPrefix: "SHELLPOOL_CONFIG_TEST_",
	})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "production", cfg.LogFormat)
	assert.Empty(t, cfg.Auth.Key)

	w := cfg.Runtime.Worker
	assert.Equal(t, "inkscape", w.Start.Cmd)
	assert.Equal(t, []string{"-z", "--shell"}, w.Start.Args)
	assert.Equal(t, 30*time.Second, w.Start.StartupTimeout)
	assert.Equal(t, 5*time.Second, w.Stop.Timeout)
	assert.Equal(t, ">", w.Prompt.Marker)
	assert.Equal(t, worker.PromptSuffix, w.Prompt.Mode)

	assert.Equal(t, 0, cfg.Runtime.Pool.MaxWorkers)
	assert.Equal(t, 5, cfg.Runtime.Pool.BacklogRatio)
	assert.Zero(t, cfg.Runtime.Send.Timeout)

	require.NoError(t, cfg.Runtime.Validate())
}

func TestDefaultConfig_EnvOverride(t *testing.T) {
	t.Setenv("SHELLPOOL_CONFIG_ENV_AUTH__KEY", "secret")
	t.Setenv("SHELLPOOL_CONFIG_ENV_RUNTIME__WORKER__PROMPT__MODE", "line")

	cfg, err := conf.Parse[config.Config](conf.ParseOptions{
		Defaults:  config.DefaultConfig,
		EnvPrefix: "SHELLPOOL_CONFIG_ENV_",
	})
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Auth.Key)
	assert.Equal(t, worker.PromptLine, cfg.Runtime.Worker.Prompt.Mode)
}
