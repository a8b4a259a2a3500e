package runtime

import "github.com/lambda-feedback/shellpool/internal/execution/dispatcher"

// ExecRequest is a command submitted to the runtime.
type ExecRequest struct {
	Command string `json:"command"`
}

// ExecResponse reports a successfully completed command.
type ExecResponse struct {
	Command    string `json:"command"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
}

// HealthResponse reports the runtime state.
type HealthResponse struct {
	Status string `json:"status"`
	Stats
}

// Stats is a snapshot of the runtime dispatcher.
type Stats = dispatcher.Stats
