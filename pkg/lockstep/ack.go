package lockstep

import "sort"

// FrameACK is the acknowledgment a ReceiveQueue emits after a push: the
// highest frame number such that it and every frame before it has been
// received (CumulativeAck), plus the set of frames received out of order
// above that point (SelectiveAcks).
//
// SenderID names the peer being acknowledged from the receiver's
// perspective; before the ACK is handed to the wire codec the session
// relabels it with its own LocalID, see Session.RelabelForWire.
type FrameACK struct {
	SenderID      PeerID
	CumulativeAck int64
	SelectiveAcks []int64
}

// Validate enforces the §4.1 wire invariant: SelectiveAcks sorted
// ascending, every entry strictly greater than CumulativeAck. It is run
// against ACKs decoded off the wire, where a malformed or adversarial
// peer could otherwise violate it.
func (a FrameACK) Validate() error {
	prev := a.CumulativeAck
	for _, s := range a.SelectiveAcks {
		if s <= prev {
			return ErrMalformed
		}
		prev = s
	}
	return nil
}

func sortedCopy(s []int64) []int64 {
	if len(s) == 0 {
		return nil
	}
	out := make([]int64, len(s))
	copy(out, s)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
