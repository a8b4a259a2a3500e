package worker

import (
	"bytes"
	"fmt"
)

// DefaultPromptMarker is the prompt printed by interactive shells
// such as `inkscape --shell`.
const DefaultPromptMarker = ">"

// PromptDetector decides whether an output chunk signals that the
// process is ready to accept the next command.
type PromptDetector interface {
	// Ready consumes an output chunk and reports whether the process
	// printed its prompt.
	Ready(chunk []byte) bool

	// Reset discards any state carried over from previous chunks.
	Reset()
}

// NewPromptDetector creates the detector for the given config. An
// empty mode defaults to PromptSuffix, an empty marker to ">".
func NewPromptDetector(config PromptConfig) (PromptDetector, error) {
	marker := config.Marker
	if marker == "" {
		marker = DefaultPromptMarker
	}

	switch config.Mode {
	case PromptSuffix, "":
		return &suffixDetector{marker: []byte(marker)}, nil
	case PromptLine:
		return &lineDetector{marker: []byte(marker)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPromptMode, config.Mode)
	}
}

// suffixDetector matches chunks that equal or end with the marker.
// Output of a command that happens to end with the marker in the
// same chunk is indistinguishable from the prompt.
type suffixDetector struct {
	marker []byte
}

func (d *suffixDetector) Ready(chunk []byte) bool {
	return bytes.HasSuffix(chunk, d.marker)
}

func (d *suffixDetector) Reset() {}

// lineDetector matches when the text following the last newline is
// exactly the marker. Partial lines are carried across chunks.
type lineDetector struct {
	marker []byte
	tail   []byte
}

func (d *lineDetector) Ready(chunk []byte) bool {
	if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
		d.tail = append(d.tail[:0], chunk[i+1:]...)
	} else {
		d.tail = append(d.tail, chunk...)
	}

	// the tail can never match once it outgrew the marker
	if len(d.tail) > len(d.marker) {
		d.tail = d.tail[len(d.tail)-len(d.marker)-1:]
		return false
	}

	if bytes.Equal(d.tail, d.marker) {
		d.tail = d.tail[:0]
		return true
	}

	return false
}

func (d *lineDetector) Reset() {
	d.tail = d.tail[:0]
}
