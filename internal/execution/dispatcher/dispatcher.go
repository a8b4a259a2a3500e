package dispatcher

import (
	"context"
	"errors"

	"github.com/lambda-feedback/shellpool/internal/execution/models"
)

var (
	ErrInvalidCommand   = errors.New("command must be valid utf-8 text")
	ErrDispatcherClosed = errors.New("dispatcher closed")
	ErrAlreadyStarted   = errors.New("dispatcher already started")
)

type Dispatcher interface {
	// Start spawns the first worker and waits until it is ready
	Start(context.Context) error

	// Exec submits a command. The callback is invoked exactly once,
	// after the command completed or failed.
	Exec(string, models.Callback) error

	// Send submits a command and waits for its completion
	Send(context.Context, string) error

	// Stats returns a snapshot of the dispatcher state
	Stats() Stats

	// Shutdown stops the dispatcher and waits for all workers to finish.
	Shutdown(context.Context) error
}

// Stats is a point-in-time snapshot of the dispatcher.
type Stats struct {
	// Workers is the number of workers, including starting ones
	Workers int `json:"workers"`

	// Queued is the number of commands waiting for a worker
	Queued int `json:"queued"`

	// Busy is the number of commands currently executing
	Busy int `json:"busy"`
}
