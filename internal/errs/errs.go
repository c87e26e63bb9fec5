// Package errs defines the error kinds composition errors are classified
// into, mirroring the policy in spec.md §7: config/setup errors abort
// before any producer starts, decode/encode/mux errors abort the running
// pipeline, and logic errors indicate a bug rather than bad input.
package errs

import "errors"

var (
	// ErrConfig covers malformed layout/metadata JSON, invalid enum
	// values, an out-of-range resolution, or a missing required field.
	ErrConfig = errors.New("hisui: config error")

	// ErrSetup covers codec library unavailability, session open
	// failure, a non-creatable output file, or an invalid faststart
	// temp directory.
	ErrSetup = errors.New("hisui: setup error")

	// ErrDecode is raised by a Decoder on non-recoverable input.
	ErrDecode = errors.New("hisui: decode error")

	// ErrEncode is raised by an Encoder on non-recoverable input.
	ErrEncode = errors.New("hisui: encode error")

	// ErrMux is raised when a Container rejects a frame.
	ErrMux = errors.New("hisui: mux error")

	// ErrIO wraps underlying file/OS errors.
	ErrIO = errors.New("hisui: io error")

	// ErrLogic indicates an invariant violation — a bug, not bad input.
	ErrLogic = errors.New("hisui: logic error")
)

// Producer wraps any decode/encode error raised inside a producer goroutine
// into a single failure kind, per spec.md §4.3's "the producer converts
// all into a single ProducerFailed that terminates the pipeline".
type Producer struct {
	Kind string // "audio" or "video"
	Err  error
}

func (e *Producer) Error() string {
	return "hisui: " + e.Kind + " producer failed: " + e.Err.Error()
}

func (e *Producer) Unwrap() error { return e.Err }

// NewProducerError wraps err as a Producer failure for the given kind. It
// does not reclassify err: errors.Is still sees whatever kind err already
// wraps, through Unwrap.
func NewProducerError(kind string, err error) error {
	if err == nil {
		return nil
	}
	return &Producer{Kind: kind, Err: err}
}
