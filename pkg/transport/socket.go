// Package transport moves wire-encoded datagrams between a lockstep
// Session and the network. It owns the UDP socket and the two worker
// goroutines (ReadLoop, SenderLoop) that drive a session's I/O; the
// session itself never touches net.Conn.
//
// Grounded on pkg/net/factory/udp_factory.go's UDPFactory, which pairs a
// single *net.UDPConn with a background GC goroutine and per-connection
// read/write loops, and on original_source/LockstepLibrary/
// LockstepReceiver.java's use of a fixed-size receive buffer capped at
// the same 300-byte datagram ceiling as pkg/wire.MaxDatagramSize.
package transport

import (
	"net"

	"github.com/sirupsen/logrus"
)

// Socket wraps a bound *net.UDPConn shared by a session's ReadLoop and
// SenderLoop.
type Socket struct {
	conn *net.UDPConn
	log  *logrus.Entry
}

// Listen binds a UDP socket at listenAddr ("host:port", or ":port" to
// bind all interfaces).
func Listen(listenAddr string, log *logrus.Entry) (*Socket, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Socket{conn: conn, log: log.WithField("local_addr", conn.LocalAddr().String())}, nil
}

// LocalAddr returns the bound local address.
func (s *Socket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Close releases the underlying socket. Any blocked ReadLoop.Run wakes
// with a network error, which it treats as a cancellation signal.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// ResolvePeerAddrs resolves a peerID->"host:port" map into UDP
// addresses, for the SenderLoop's per-peer destination table.
func ResolvePeerAddrs(raw map[uint32]string) (map[uint32]*net.UDPAddr, error) {
	out := make(map[uint32]*net.UDPAddr, len(raw))
	for id, addr := range raw {
		a, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}
