package worker

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrKillTimeout          = errors.New("kill timeout")
	ErrWorkerNotStarted     = errors.New("worker not started")
	ErrWorkerAlreadyStarted = errors.New("worker already started")
	ErrWorkerBusy           = errors.New("worker busy")
	ErrWorkerTerminated     = errors.New("worker terminated")
	ErrWorkerExited         = errors.New("worker exited")
	ErrInvalidPromptMode    = errors.New("invalid prompt mode")
)

// StderrError is reported when the worker process writes to its error
// stream while a command or the startup is pending. It carries the raw
// error stream text.
type StderrError struct {
	Output string
}

func (e *StderrError) Error() string {
	return strings.TrimRight(e.Output, "\r\n")
}

func newStartupError(output string) error {
	return fmt.Errorf("worker failed to start: %w", &StderrError{Output: output})
}

func newCommandError(output string) error {
	return fmt.Errorf("command failed: %w", &StderrError{Output: output})
}

type StartConfig struct {
	// Cmd is the path or name of the binary to execute
	Cmd string `conf:"cmd"`

	// Cwd is the working directory in which
	// the binary should be executed
	Cwd string `conf:"cwd"`

	// Args is the list of arguments to pass to the command
	Args []string `conf:"args"`

	// Env is a map of environment variables
	// to set when running the command
	Env map[string]string `conf:"env"`

	// StartupTimeout is the duration to wait for the first prompt.
	// Zero waits indefinitely.
	StartupTimeout time.Duration `conf:"startup_timeout"`
}

type StopConfig struct {
	// Timeout is the duration to wait for the worker to exit
	// after its input was closed, before it is killed
	Timeout time.Duration `conf:"timeout"`
}

// PromptMode selects how a ready prompt is detected in the output.
type PromptMode string

const (
	// PromptSuffix treats an output chunk as a prompt if it ends
	// with the marker.
	PromptSuffix PromptMode = "suffix"

	// PromptLine treats the output as a prompt if the text after
	// the last newline equals the marker.
	PromptLine PromptMode = "line"
)

type PromptConfig struct {
	// Marker is the prompt printed by the process when it is
	// ready to accept a command
	Marker string `conf:"marker"`

	// Mode is the detection strategy, either "suffix" or "line"
	Mode PromptMode `conf:"mode"`
}

type Config struct {
	// Start describes how to launch the worker process
	Start StartConfig `conf:"start,squash"`

	// Stop describes how to shut the worker process down
	Stop StopConfig `conf:"stop"`

	// Prompt describes how the process signals readiness
	Prompt PromptConfig `conf:"prompt"`
}

// Validate checks the worker configuration.
func (c Config) Validate() error {
	if c.Start.Cmd == "" {
		return errors.New("worker command must not be empty")
	}

	if _, err := NewPromptDetector(c.Prompt); err != nil {
		return err
	}

	return nil
}
