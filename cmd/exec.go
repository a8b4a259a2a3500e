package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/lambda-feedback/shellpool/config"
	"github.com/lambda-feedback/shellpool/runtime"
	"github.com/lambda-feedback/shellpool/util/conf"
	"github.com/lambda-feedback/shellpool/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	execCmdDescription = `The exec command reads commands from a file or from stdin,
one command per line, and runs them on the worker pool. The
pool grows while the backlog is large and shrinks once the
workers run out of commands.

Blank lines are skipped. The command exits with a non-zero
exit code if any of the commands failed.`
	execCmd = &cli.Command{
		Name:        "exec",
		Usage:       "Run a batch of commands and exit.",
		Description: execCmdDescription,
		Action:      execAction,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:     "input",
				Aliases:  []string{"f"},
				Usage:    "read commands from this file instead of stdin.",
				Category: "exec",
			},
		},
	}
)

const (
	// maxCommandSize limits the length of a single command line.
	maxCommandSize = 1 << 20

	// stopGracePeriod is added to the worker stop timeout when
	// waiting for the pool to shut down.
	stopGracePeriod = 5 * time.Second
)

func execAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return err
	}

	input := io.Reader(os.Stdin)
	if path := ctx.Path("input"); path != "" {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer file.Close()
		input = file
	}

	commands, err := readCommands(input)
	if err != nil {
		return fmt.Errorf("failed to read commands: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed, err := execCommands(runCtx, cfg.Runtime, commands, log)
	if err != nil {
		return err
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d commands failed", failed, len(commands)), 1)
	}

	return nil
}

// execCommands runs the commands on a fresh runtime and returns the
// number of failed commands.
func execCommands(
	ctx context.Context,
	config runtime.Config,
	commands []string,
	log *zap.Logger,
) (int, error) {
	log = log.Named("exec")

	rt, err := runtime.NewRuntime(runtime.RuntimeParams{
		Context: ctx,
		Config:  config,
		Log:     log,
	})
	if err != nil {
		return 0, err
	}

	if err := rt.Start(ctx); err != nil {
		return 0, err
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)

	for i, command := range commands {
		wg.Add(1)

		line, command := i+1, command
		err := rt.Exec(command, func(err error) {
			defer wg.Done()

			if err == nil {
				return
			}

			log.Error("command failed",
				zap.Int("line", line),
				zap.String("command", command),
				zap.Error(err),
			)

			mu.Lock()
			failed++
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			log.Error("command rejected",
				zap.Int("line", line),
				zap.String("command", command),
				zap.Error(err),
			)
			mu.Lock()
			failed++
			mu.Unlock()
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("interrupted, failing pending commands")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), config.Worker.Stop.Timeout+stopGracePeriod)
	defer cancel()

	if err := rt.Shutdown(stopCtx); err != nil {
		log.Warn("failed to shut down workers", zap.Error(err))
	}

	<-done

	log.Info("commands done",
		zap.Int("total", len(commands)),
		zap.Int("failed", failed),
	)

	return failed, nil
}

// readCommands reads one command per line, skipping blank lines.
func readCommands(r io.Reader) ([]string, error) {
	var commands []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxCommandSize)

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		commands = append(commands, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return commands, nil
}

func init() {
	rootApp.Commands = append(rootApp.Commands, execCmd)
}
