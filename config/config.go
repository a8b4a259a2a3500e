package config

import (
	"github.com/lambda-feedback/shellpool/runtime"
	"github.com/lambda-feedback/shellpool/util/conf"
)

type AuthConfig struct {
	// Key is the api key required in the `api-key` request header.
	// Authorization is disabled if empty.
	Key string `conf:"key"`
}

type Config struct {
	// LogLevel is the log level for the application
	LogLevel string `conf:"log_level"`

	// LogFormat is the log format for the application
	LogFormat string `conf:"log_format"`

	// Auth is the http authorization configuration
	Auth AuthConfig `conf:"auth"`

	// Runtime is the runtime configuration
	Runtime runtime.Config `conf:"runtime"`
}

var (
	appDefaults = conf.DefaultConfig{
		"log_level":  "info",
		"log_format": "production",
	}

	workerDefaults = conf.DefaultConfig{
		"worker.cmd":             "inkscape",
		"worker.args":            []string{"-z", "--shell"},
		"worker.prompt.marker":   ">",
		"worker.prompt.mode":     "suffix",
		"worker.stop.timeout":    "5s",
		"worker.startup_timeout": "30s",
	}

	poolDefaults = conf.DefaultConfig{
		"pool.max_workers":   0,
		"pool.backlog_ratio": 5,
	}

	sendDefaults = conf.DefaultConfig{
		"send.timeout": "0s",
	}
)

// DefaultConfig holds the configuration defaults, keyed by their
// flattened config path.
var DefaultConfig = newDefaultConfig()

func newDefaultConfig() conf.DefaultConfig {
	return conf.MergeDefaults("",
		appDefaults,
		conf.MergeDefaults("runtime", workerDefaults, poolDefaults, sendDefaults),
	)
}
