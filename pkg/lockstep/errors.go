package lockstep

import "errors"

// Taxonomy of push/decode outcomes that the session and queues report.
// Duplicate and OutOfWindow are never surfaced as Go errors: push()
// absorbs them silently per §7 and only ever returns an ACK. They are
// named here so logging call sites and tests can refer to them.
var (
	// ErrDuplicate marks a push of a frame already held in pending.
	ErrDuplicate = errors.New("lockstep: duplicate frame")
	// ErrOutOfWindow marks a push of a frame below bufferHead.
	ErrOutOfWindow = errors.New("lockstep: frame below buffer head")
	// ErrMalformed marks a wire decode or validation failure; the
	// datagram is dropped and the worker continues.
	ErrMalformed = errors.New("lockstep: malformed message")
	// ErrInterrupted marks cancellation of a blocking wait.
	ErrInterrupted = errors.New("lockstep: interrupted")
	// ErrInvariant marks an impossible internal state; the session that
	// observes it must be torn down.
	ErrInvariant = errors.New("lockstep: invariant violated")
)

// InvariantError wraps ErrInvariant with the specific condition that
// failed, for logging before the session terminates.
type InvariantError struct {
	Peer   PeerID
	Reason string
}

func (e *InvariantError) Error() string {
	return "lockstep: invariant violated for " + e.Peer.String() + ": " + e.Reason
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}
