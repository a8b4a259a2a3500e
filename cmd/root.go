package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lambda-feedback/shellpool/config"
	"github.com/lambda-feedback/shellpool/internal/shell"
	"github.com/lambda-feedback/shellpool/util/conf"
	"github.com/lambda-feedback/shellpool/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// envPrefix is the prefix of environment variables read into the config.
const envPrefix = "SHELLPOOL_"

var (
	appName  = "shellpool"
	appUsage = `Serialize text commands onto an auto-scaling pool of
interactive shell processes, e.g. inkscape --shell.`

	// cliMap maps flag names to config keys
	cliMap = map[string]string{
		"log-level":       "log_level",
		"log-format":      "log_format",
		"api-key":         "auth.key",
		"command":         "runtime.worker.cmd",
		"arg":             "runtime.worker.args",
		"cwd":             "runtime.worker.cwd",
		"prompt":          "runtime.worker.prompt.marker",
		"prompt-mode":     "runtime.worker.prompt.mode",
		"startup-timeout": "runtime.worker.startup_timeout",
		"stop-timeout":    "runtime.worker.stop.timeout",
		"max-workers":     "runtime.pool.max_workers",
		"backlog-ratio":   "runtime.pool.backlog_ratio",
		"send-timeout":    "runtime.send.timeout",
	}

	rootApp = &cli.App{
		Name:            appName,
		Usage:           appUsage,
		HideHelpCommand: true,
		Args:            true,
		Flags: []cli.Flag{
			// general flags
			&cli.PathFlag{
				Name:    "config",
				Usage:   "load configuration from a json or .env file.",
				EnvVars: []string{"SHELLPOOL_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "set the log level. Options: debug, info, warn, error, panic, fatal.",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "set the log format. Options: production, development.",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:     "api-key",
				Usage:    "require this key in the api-key header of http requests.",
				Category: "http",
				EnvVars:  []string{"API_KEY"},
			},
			// worker flags
			&cli.StringFlag{
				Name:     "command",
				Usage:    "the command to invoke in order to start a worker process.",
				Aliases:  []string{"c"},
				Category: "worker",
				EnvVars:  []string{"WORKER_COMMAND"},
			},
			&cli.StringSliceFlag{
				Name:     "arg",
				Usage:    "additional arguments to pass to the worker process.",
				Aliases:  []string{"a"},
				Category: "worker",
				EnvVars:  []string{"WORKER_ARGS"},
			},
			&cli.PathFlag{
				Name:     "cwd",
				Usage:    "the working directory of the worker process.",
				Category: "worker",
				EnvVars:  []string{"WORKER_CWD"},
			},
			&cli.StringFlag{
				Name:     "prompt",
				Usage:    "the prompt the worker prints when it is ready for input.",
				Category: "worker",
				EnvVars:  []string{"WORKER_PROMPT"},
			},
			&cli.StringFlag{
				Name:     "prompt-mode",
				Usage:    "how the prompt is detected. Options: suffix, line.",
				Category: "worker",
				EnvVars:  []string{"WORKER_PROMPT_MODE"},
			},
			&cli.DurationFlag{
				Name:     "startup-timeout",
				Usage:    "the time a worker may take to print its first prompt.",
				Category: "worker",
				EnvVars:  []string{"WORKER_STARTUP_TIMEOUT"},
			},
			&cli.DurationFlag{
				Name:     "stop-timeout",
				Usage:    "the time a worker may take to exit before it is killed.",
				Category: "worker",
				EnvVars:  []string{"WORKER_STOP_TIMEOUT"},
			},
			// pool flags
			&cli.IntFlag{
				Name:     "max-workers",
				Usage:    "the maximum number of worker processes. 0 means unbounded.",
				Aliases:  []string{"n"},
				Category: "pool",
				EnvVars:  []string{"POOL_MAX_WORKERS"},
			},
			&cli.IntFlag{
				Name:     "backlog-ratio",
				Usage:    "the number of queued commands per worker before the pool grows.",
				Category: "pool",
				EnvVars:  []string{"POOL_BACKLOG_RATIO"},
			},
			&cli.DurationFlag{
				Name:     "send-timeout",
				Usage:    "fail commands that take longer than this. 0 disables the timeout.",
				Category: "pool",
				EnvVars:  []string{"SEND_TIMEOUT"},
			},
		},
		Before: func(ctx *cli.Context) error {
			// create the logger
			log, err := createLogger(ctx)
			if err != nil {
				return err
			}

			// inject logger into cli context
			ctx.Context = logging.ContextWithLogger(ctx.Context, log)

			// parse config using defaults, file, env and flags
			cfg, err := conf.Parse[config.Config](conf.ParseOptions{
				Cli:       ctx,
				CliMap:    cliMap,
				Defaults:  config.DefaultConfig,
				EnvPrefix: envPrefix,
				FileName:  ctx.Path("config"),
				Log:       log,
			})
			if err != nil {
				return err
			}

			// inject the config into the cli context
			ctx.Context = conf.ContextWithConfig(ctx.Context, cfg)

			return nil
		},
		After: func(ctx *cli.Context) error {
			log, err := logging.LoggerFromContext(ctx.Context)
			if err != nil {
				return err
			}

			log.Sync()

			return nil
		},
	}
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:               "version",
		Usage:              "print the version",
		DisableDefaultText: true,
	}
}

type ExecuteParams struct {
	Version  string
	Compiled time.Time
}

func Execute(params ExecuteParams) {
	rootApp.Version = params.Version
	rootApp.Compiled = params.Compiled

	os.Exit(run(context.Background(), os.Args))
}

// run runs the app and returns the process exit code.
func run(ctx context.Context, args []string) int {
	err := rootApp.RunContext(ctx, args)

	// if app exited without error, return
	if err == nil {
		return 0
	}

	// if the shell exited, use its exit code
	if code, ok := shell.ExitStatus(err); ok {
		// the application already logged its failure
		return code
	}

	fmt.Fprintf(os.Stderr, "exit error: %s\n", err.Error())

	// if app exited with an exit coder, exit with given exit code
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return exitCoder.ExitCode()
	}

	// otherwise, exit with exit code 1
	return 1
}

func createLogger(ctx *cli.Context) (*zap.Logger, error) {
	level := getLogLevelFromCLI(ctx)
	format := getLogFormatFromCLI(ctx)

	var config zap.Config
	if format == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	config.InitialFields = map[string]any{
		"app": appName,
	}

	config.Level = level

	return config.Build()
}

func getLogFormatFromCLI(ctx *cli.Context) string {
	format := ctx.String("log-format")
	if format != "" {
		return format
	}

	return "production"
}

func getLogLevelFromCLI(ctx *cli.Context) zap.AtomicLevel {
	lvl := ctx.String("log-level")

	if atom, err := zap.ParseAtomicLevel(lvl); err == nil {
		return atom
	}

	return zap.NewAtomicLevelAt(zap.InfoLevel)
}
