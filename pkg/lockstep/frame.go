package lockstep

// FrameInput is one peer's opaque input payload for a given simulation
// frame. It is immutable once constructed.
type FrameInput struct {
	FrameNumber int64
	Payload     []byte
}

// NewFrameInput copies payload so the caller's buffer can be reused.
func NewFrameInput(frameNumber int64, payload []byte) FrameInput {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	return FrameInput{FrameNumber: frameNumber, Payload: buf}
}

// Equal reports whether two FrameInputs carry the same frame number and
// payload bytes.
func (f FrameInput) Equal(other FrameInput) bool {
	if f.FrameNumber != other.FrameNumber {
		return false
	}
	if len(f.Payload) != len(other.Payload) {
		return false
	}
	for i := range f.Payload {
		if f.Payload[i] != other.Payload[i] {
			return false
		}
	}
	return true
}
