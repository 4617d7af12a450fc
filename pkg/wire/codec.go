package wire

import (
	"errors"
	"fmt"

	"github.com/golang/snappy"
)

// MaxDatagramSize is the default post-compression datagram ceiling from
// spec §6. Encode enforces it when passed a non-zero limit; callers that
// need a different transport MTU pass their own.
const MaxDatagramSize = 300

// ErrDatagramTooLarge marks an encoded message that would not fit the
// configured datagram ceiling even after compression.
var ErrDatagramTooLarge = errors.New("wire: encoded message exceeds datagram size limit")

// compression flag byte values, leading every encoded datagram.
const (
	flagRaw    byte = 0
	flagSnappy byte = 1
)

// Encode serializes v (one of InputMessage, InputBatchMessage, AckMessage
// or KeepAliveMessage) and snappy-compresses the result whenever the
// compressed form is shorter than the raw one. An encoding longer than
// maxSize returns ErrDatagramTooLarge; maxSize<=0 disables the size check.
//
// golang/snappy is promoted here from an indirect dependency (pulled in
// transitively through protobuf elsewhere in the dependency graph) to a
// direct one: it is the actual compressor, replacing the GZIPOutputStream
// wrapping used by original_source/LockstepLibrary/LockstepReceiver.java.
func Encode(v interface{}, maxSize int) ([]byte, error) {
	raw, kind, err := encodeBody([]byte{}, v)
	if err != nil {
		return nil, err
	}
	raw = append([]byte{byte(kind)}, raw...)

	compressed := snappy.Encode(nil, raw)

	out := make([]byte, 0, len(raw)+1)
	if len(compressed) < len(raw) {
		out = append(out, flagSnappy)
		out = append(out, compressed...)
	} else {
		out = append(out, flagRaw)
		out = append(out, raw...)
	}

	if maxSize > 0 && len(out) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrDatagramTooLarge, len(out), maxSize)
	}
	return out, nil
}

// Decode parses a datagram produced by Encode, returning one of
// InputMessage, InputBatchMessage, AckMessage or KeepAliveMessage.
// Any framing error, including an unrecognized Kind tag, is classified
// Malformed: the caller drops the datagram and keeps running.
func Decode(data []byte) (interface{}, error) {
	if len(data) < 2 {
		return nil, ErrTruncated
	}
	flag := data[0]
	body := data[1:]

	switch flag {
	case flagSnappy:
		decompressed, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, fmt.Errorf("wire: snappy decode failed: %w", err)
		}
		body = decompressed
	case flagRaw:
		// body already raw
	default:
		return nil, ErrTruncated
	}

	if len(body) < 1 {
		return nil, ErrTruncated
	}
	return decodeBody(Kind(body[0]), body[1:])
}
