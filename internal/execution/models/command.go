package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Callback is invoked exactly once per submitted command. The error
// is nil if the command completed successfully.
type Callback func(error)

// Command is a single unit of work submitted to the dispatcher.
// It is immutable once enqueued.
type Command struct {
	// ID uniquely identifies the submission
	ID string

	// Text is the raw command text written to the worker
	Text string

	// EnqueuedAt is the time the command was submitted
	EnqueuedAt time.Time

	callback Callback
	once     sync.Once
}

// NewCommand creates a new command for the given text and callback.
// The callback may be nil.
func NewCommand(text string, callback Callback) *Command {
	return &Command{
		ID:         uuid.NewString(),
		Text:       text,
		EnqueuedAt: time.Now(),
		callback:   callback,
	}
}

// Complete invokes the command callback with the given error. Only
// the first call has an effect.
func (c *Command) Complete(err error) {
	c.once.Do(func() {
		if c.callback != nil {
			c.callback(err)
		}
	})
}
