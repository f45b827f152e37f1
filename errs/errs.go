// Package errs defines the engine's error kinds as sentinel values.
// Call sites wrap a sentinel with context via fmt.Errorf("...: %w",
// errs.ErrX) and callers compare with errors.Is, so a status callback
// or log line can categorize a failure without string matching.
package errs

import "errors"

var (
	// ErrInvalidState: operation not legal in the current node/engine state.
	ErrInvalidState = errors.New("invalid state")
	// ErrConfig: missing or malformed configuration parameter.
	ErrConfig = errors.New("config error")
	// ErrFormatMismatch: pad formats incompatible and conversion disallowed.
	ErrFormatMismatch = errors.New("format mismatch")
	// ErrCyclicGraph: the node graph contains a cycle.
	ErrCyclicGraph = errors.New("cyclic graph")
	// ErrAlloc: buffer allocation failed.
	ErrAlloc = errors.New("allocation error")
	// ErrIO: file open/read/write failure.
	ErrIO = errors.New("io error")
	// ErrCodec: encode/decode failure.
	ErrCodec = errors.New("codec error")
	// ErrDriver: the audio driver refused a call or reported failure.
	ErrDriver = errors.New("driver error")
	// ErrUnderrun: a realtime consumer had no data at a block boundary (non-fatal).
	ErrUnderrun = errors.New("underrun")
	// ErrOverrun: a realtime producer had no space to deposit data (non-fatal).
	ErrOverrun = errors.New("overrun")
	// ErrTimeout: a stop/join deadline was missed.
	ErrTimeout = errors.New("timeout")
)

// Category maps a known sentinel to a status callback category
// ("Error", "Warning", "Info", "Underrun", "Overrun").
func Category(err error) string {
	switch {
	case err == nil:
		return "Info"
	case errors.Is(err, ErrUnderrun):
		return "Underrun"
	case errors.Is(err, ErrOverrun):
		return "Overrun"
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrDriver), errors.Is(err, ErrIO):
		return "Warning"
	default:
		return "Error"
	}
}
