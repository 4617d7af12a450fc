// Package wire defines the tagged-variant messages exchanged between
// lockstep session peers and their binary encoding.
//
// The original Java implementation dispatches incoming objects with a
// chain of instanceof checks (see
// original_source/LockstepLibrary/LockstepReceiver.java's
// messageSwitch). spec §9 calls that out as a design smell to fix: the
// target design reads an explicit discriminant byte off the wire first
// and switches on it, so dispatch is total over the four known kinds and
// never relies on runtime type identity. The byte-level framing itself
// is grounded on
// vendor/github.com/skycoin/net/msg/msg.go's Message (a one-byte Type
// tag followed by a BigEndian length-prefixed body).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/skycoin/lockstep/pkg/lockstep"
)

// Kind is the one-byte discriminant every message body leads with (in the
// datagram it follows the compression flag byte written by Encode).
type Kind uint8

// Known message kinds, matching spec §6.
const (
	KindInput Kind = 1 + iota
	KindInputBatch
	KindAck
	KindKeepAlive
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "Input"
	case KindInputBatch:
		return "InputBatch"
	case KindAck:
		return "Ack"
	case KindKeepAlive:
		return "KeepAlive"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// ErrUnknownKind is returned by Decode when the leading discriminant byte
// does not name one of the four known kinds. Callers classify this as
// Malformed per spec §7: log and drop the datagram, never panic.
var ErrUnknownKind = errors.New("wire: unknown message kind")

// InputMessage carries one frame from one peer.
type InputMessage struct {
	SenderID lockstep.PeerID
	Frame    lockstep.FrameInput
}

// InputBatchMessage carries a batch of frames from one peer. Order
// within Frames is not semantically significant.
type InputBatchMessage struct {
	SenderID lockstep.PeerID
	Frames   []lockstep.FrameInput
}

// AckMessage carries a cumulative+selective ACK. On the wire SenderID
// names the peer that sent the ACK: the sending session stamps its own
// LocalID (lockstep.Session.RelabelForWire), and the receiving side uses
// it to pick the TransmitQueue the ACK applies to.
type AckMessage struct {
	SenderID      lockstep.PeerID
	CumulativeAck int64
	SelectiveAcks []int64
}

// KeepAliveMessage carries no simulation payload; it exists solely to
// reset the remote's idle timer during quiet periods between frames.
type KeepAliveMessage struct {
	SenderID lockstep.PeerID
}

func putUint32(buf []byte, v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return append(buf, b...)
}

func putInt64(buf []byte, v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return append(buf, b...)
}

func putFrame(buf []byte, f lockstep.FrameInput) []byte {
	buf = putInt64(buf, f.FrameNumber)
	buf = putUint32(buf, uint32(len(f.Payload)))
	return append(buf, f.Payload...)
}

func readUint32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, ErrTruncated
	}
	return binary.BigEndian.Uint32(data), data[4:], nil
}

func readInt64(data []byte) (int64, []byte, error) {
	if len(data) < 8 {
		return 0, nil, ErrTruncated
	}
	return int64(binary.BigEndian.Uint64(data)), data[8:], nil
}

func readFrame(data []byte) (lockstep.FrameInput, []byte, error) {
	n, rest, err := readInt64(data)
	if err != nil {
		return lockstep.FrameInput{}, nil, err
	}
	length, rest, err := readUint32(rest)
	if err != nil {
		return lockstep.FrameInput{}, nil, err
	}
	if uint32(len(rest)) < length {
		return lockstep.FrameInput{}, nil, ErrTruncated
	}
	return lockstep.NewFrameInput(n, rest[:length]), rest[length:], nil
}

// ErrTruncated marks a body that ended before its declared fields were
// fully present. Classified Malformed per spec §7.
var ErrTruncated = errors.New("wire: truncated message body")

// encodeBody appends v's type-specific encoding (sender id, kind-specific
// fields) to buf and returns v's Kind; the caller writes the 1-byte Kind
// tag in front of the result.
func encodeBody(buf []byte, v interface{}) ([]byte, Kind, error) {
	switch m := v.(type) {
	case InputMessage:
		buf = putUint32(buf, uint32(m.SenderID))
		buf = putFrame(buf, m.Frame)
		return buf, KindInput, nil
	case InputBatchMessage:
		buf = putUint32(buf, uint32(m.SenderID))
		buf = putUint32(buf, uint32(len(m.Frames)))
		for _, f := range m.Frames {
			buf = putFrame(buf, f)
		}
		return buf, KindInputBatch, nil
	case AckMessage:
		buf = putUint32(buf, uint32(m.SenderID))
		buf = putInt64(buf, m.CumulativeAck)
		buf = putUint32(buf, uint32(len(m.SelectiveAcks)))
		for _, s := range m.SelectiveAcks {
			buf = putInt64(buf, s)
		}
		return buf, KindAck, nil
	case KeepAliveMessage:
		buf = putUint32(buf, uint32(m.SenderID))
		return buf, KindKeepAlive, nil
	default:
		return nil, 0, fmt.Errorf("wire: %T is not an encodable message", v)
	}
}

// decodeBody parses the body that follows the Kind tag and returns one of
// InputMessage, InputBatchMessage, AckMessage or KeepAliveMessage.
// Unknown kinds return ErrUnknownKind rather than panicking, so the
// receiver worker can log and continue per spec §6/§7.
func decodeBody(kind Kind, data []byte) (interface{}, error) {
	switch kind {
	case KindInput:
		senderID, rest, err := readUint32(data)
		if err != nil {
			return nil, err
		}
		frame, _, err := readFrame(rest)
		if err != nil {
			return nil, err
		}
		return InputMessage{SenderID: lockstep.PeerID(senderID), Frame: frame}, nil
	case KindInputBatch:
		senderID, rest, err := readUint32(data)
		if err != nil {
			return nil, err
		}
		count, rest, err := readUint32(rest)
		if err != nil {
			return nil, err
		}
		frames := make([]lockstep.FrameInput, 0, count)
		for i := uint32(0); i < count; i++ {
			var f lockstep.FrameInput
			f, rest, err = readFrame(rest)
			if err != nil {
				return nil, err
			}
			frames = append(frames, f)
		}
		return InputBatchMessage{SenderID: lockstep.PeerID(senderID), Frames: frames}, nil
	case KindAck:
		senderID, rest, err := readUint32(data)
		if err != nil {
			return nil, err
		}
		cumulative, rest, err := readInt64(rest)
		if err != nil {
			return nil, err
		}
		count, rest, err := readUint32(rest)
		if err != nil {
			return nil, err
		}
		sel := make([]int64, 0, count)
		for i := uint32(0); i < count; i++ {
			var s int64
			s, rest, err = readInt64(rest)
			if err != nil {
				return nil, err
			}
			sel = append(sel, s)
		}
		return AckMessage{SenderID: lockstep.PeerID(senderID), CumulativeAck: cumulative, SelectiveAcks: sel}, nil
	case KindKeepAlive:
		senderID, _, err := readUint32(data)
		if err != nil {
			return nil, err
		}
		return KeepAliveMessage{SenderID: lockstep.PeerID(senderID)}, nil
	default:
		return nil, ErrUnknownKind
	}
}
