package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skycoin/lockstep/pkg/lockstep"
	"github.com/skycoin/lockstep/pkg/wire"
)

// receiveBufferSize is sized well above wire.MaxDatagramSize so a
// datagram is never silently truncated by ReadFromUDP; anything larger
// than this on the wire is itself a protocol violation.
const receiveBufferSize = 4 * wire.MaxDatagramSize

// ReadLoop pulls datagrams off a Socket, decodes them, and applies them
// to a Session. One ReadLoop per session; it never blocks the caller
// beyond ReadTimeout, so Run can check ctx between reads the way
// original_source/LockstepLibrary/LockstepReceiver.java polls a stop
// flag between GZIPInputStream reads.
type ReadLoop struct {
	socket      *Socket
	session     *lockstep.Session
	readTimeout time.Duration
	log         *logrus.Entry
}

// NewReadLoop constructs a ReadLoop. readTimeout bounds each blocking
// read so Run can observe ctx cancellation promptly; it does not bound
// how long a peer may stay silent (that is Session.LastSeen's job).
func NewReadLoop(socket *Socket, session *lockstep.Session, readTimeout time.Duration, log *logrus.Entry) *ReadLoop {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ReadLoop{socket: socket, session: session, readTimeout: readTimeout, log: log.WithField("worker", "readloop")}
}

// Run blocks decoding and dispatching datagrams until ctx is done or the
// socket is closed. Malformed datagrams (unknown kind, truncated body,
// bad compression) are logged and dropped; they never stop the loop, per
// the "log and continue" contract on all Malformed classifications.
func (r *ReadLoop) Run(ctx context.Context) error {
	buf := make([]byte, receiveBufferSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if r.readTimeout > 0 {
			if err := r.socket.conn.SetReadDeadline(time.Now().Add(r.readTimeout)); err != nil {
				return err
			}
		}

		n, _, err := r.socket.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		r.dispatch(datagram)
	}
}

func (r *ReadLoop) dispatch(datagram []byte) {
	decoded, err := wire.Decode(datagram)
	if err != nil {
		r.log.WithError(err).Debug("dropping malformed datagram")
		return
	}

	var dispatchErr error
	switch m := decoded.(type) {
	case wire.InputMessage:
		dispatchErr = r.session.HandleInput(m.SenderID, m.Frame)
	case wire.InputBatchMessage:
		dispatchErr = r.session.HandleInputBatch(m.SenderID, m.Frames)
	case wire.AckMessage:
		dispatchErr = r.session.HandleAck(m.SenderID, lockstep.FrameACK{
			SenderID:      m.SenderID,
			CumulativeAck: m.CumulativeAck,
			SelectiveAcks: m.SelectiveAcks,
		})
	case wire.KeepAliveMessage:
		r.session.HandleKeepAlive(m.SenderID)
	default:
		r.log.Warnf("decoded unhandled wire type %T", decoded)
	}
	if dispatchErr != nil {
		r.log.WithError(dispatchErr).Debug("dropping datagram rejected by session")
	}
}
