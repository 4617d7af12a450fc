package lockstep

import "sync"

// AckBuffer is the session-level coalescing buffer described in spec
// §4.5: the receiver worker posts a FrameACK per peer every time a
// ReceiveQueue.Push runs, and the sender worker drains it when it builds
// outgoing datagrams. Only the most recently produced ACK per peer needs
// to reach the remote TransmitQueue, so a later Post for the same peer
// simply overwrites the earlier one instead of queueing both.
//
// Grounded on pkg/net/skycoin-messenger/websocket/pending_map.go's
// mutex-guarded map keyed by connection, adapted from "remove on ack" to
// "keep only the newest value per key".
type AckBuffer struct {
	mu    sync.Mutex
	acks  map[PeerID]FrameACK
	dirty map[PeerID]struct{}
}

// NewAckBuffer constructs an empty coalescing ACK buffer.
func NewAckBuffer() *AckBuffer {
	return &AckBuffer{
		acks:  make(map[PeerID]FrameACK),
		dirty: make(map[PeerID]struct{}),
	}
}

// Post records ack as the latest ACK to send for ack.SenderID, replacing
// whatever was posted before it for that peer.
func (b *AckBuffer) Post(ack FrameACK) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acks[ack.SenderID] = ack
	b.dirty[ack.SenderID] = struct{}{}
}

// DrainAll removes and returns every pending ACK, one per peer that has
// had a Post since the last drain.
func (b *AckBuffer) DrainAll() []FrameACK {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.dirty) == 0 {
		return nil
	}
	out := make([]FrameACK, 0, len(b.dirty))
	for peer := range b.dirty {
		out = append(out, b.acks[peer])
	}
	b.dirty = make(map[PeerID]struct{})
	return out
}

// Take removes and returns the pending ACK for peer, if any.
func (b *AckBuffer) Take(peer PeerID) (FrameACK, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.dirty[peer]; !ok {
		return FrameACK{}, false
	}
	ack := b.acks[peer]
	delete(b.dirty, peer)
	return ack, true
}
