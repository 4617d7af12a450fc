package lockstep

import "fmt"

// PeerID identifies one of a fixed set of session participants.
type PeerID uint32

func (p PeerID) String() string {
	return fmt.Sprintf("peer#%d", uint32(p))
}
