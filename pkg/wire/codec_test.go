package wire

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/lockstep/pkg/lockstep"
)

func TestCodec_RoundTripInput(t *testing.T) {
	msg := InputMessage{
		SenderID: 7,
		Frame:    lockstep.NewFrameInput(42, []byte("payload")),
	}
	data, err := Encode(msg, 0)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	got, ok := decoded.(InputMessage)
	require.True(t, ok)
	assert.Equal(t, msg.SenderID, got.SenderID)
	assert.True(t, msg.Frame.Equal(got.Frame))
}

func TestCodec_RoundTripInputBatch(t *testing.T) {
	msg := InputBatchMessage{
		SenderID: 3,
		Frames: []lockstep.FrameInput{
			lockstep.NewFrameInput(1, []byte{1}),
			lockstep.NewFrameInput(2, []byte{2, 2}),
			lockstep.NewFrameInput(3, nil),
		},
	}
	data, err := Encode(msg, 0)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	got, ok := decoded.(InputBatchMessage)
	require.True(t, ok)
	require.Len(t, got.Frames, 3)
	for i := range msg.Frames {
		assert.True(t, msg.Frames[i].Equal(got.Frames[i]))
	}
}

func TestCodec_RoundTripAck(t *testing.T) {
	msg := AckMessage{SenderID: 1, CumulativeAck: -1, SelectiveAcks: []int64{2, 5, 9}}
	data, err := Encode(msg, 0)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	got, ok := decoded.(AckMessage)
	require.True(t, ok)
	assert.Equal(t, msg, got)
}

func TestCodec_RoundTripKeepAlive(t *testing.T) {
	data, err := Encode(KeepAliveMessage{}, 0)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.IsType(t, KeepAliveMessage{}, decoded)
}

func TestCodec_UnknownKindIsMalformedNotPanic(t *testing.T) {
	data, err := Encode(KeepAliveMessage{}, 0)
	require.NoError(t, err)
	data[1] = 0xEE // corrupt the kind tag past the compression flag

	var decodeErr error
	assert.NotPanics(t, func() {
		_, decodeErr = Decode(data)
	})
	assert.ErrorIs(t, decodeErr, ErrUnknownKind)
}

func TestCodec_TruncatedIsMalformed(t *testing.T) {
	_, err := Decode([]byte{0})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestCodec_EnforcesMaxDatagramSize(t *testing.T) {
	// Random bytes do not compress, so the encoded message stays over the limit.
	payload := make([]byte, 10*MaxDatagramSize)
	_, _ = rand.New(rand.NewSource(1)).Read(payload)
	big := InputMessage{SenderID: 1, Frame: lockstep.NewFrameInput(1, payload)}
	_, err := Encode(big, MaxDatagramSize)
	assert.ErrorIs(t, err, ErrDatagramTooLarge)
}
