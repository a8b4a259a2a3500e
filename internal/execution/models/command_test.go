package models_test

import (
	"testing"

	"github.com/lambda-feedback/shellpool/internal/execution/models"
	"github.com/stretchr/testify/assert"
)

func TestCommand_New_AssignsUniqueID(t *testing.T) {
	a := models.NewCommand("a", nil)
	b := models.NewCommand("a", nil)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.EnqueuedAt.IsZero())
}

func TestCommand_Complete_InvokesCallbackOnce(t *testing.T) {
	var calls []error

	cmd := models.NewCommand("a", func(err error) {
		calls = append(calls, err)
	})

	cmd.Complete(nil)
	cmd.Complete(assert.AnError)

	assert.Equal(t, []error{nil}, calls)
}

func TestCommand_Complete_NilCallback(t *testing.T) {
	cmd := models.NewCommand("a", nil)

	assert.NotPanics(t, func() { cmd.Complete(assert.AnError) })
}
