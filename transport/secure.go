package transport

import (
	"crypto/tls"
	"errors"
	"net"
	"time"
)

// Secure wraps a TLS connection. crypto/tls exposes only a blocking
// net.Conn, so Recv/Send arm a zero-wait deadline before each syscall and
// translate the resulting timeout into ErrWouldBlock — the same contract
// Plain gives callers, letting the FSM drive both transports identically.
// TLS record/handshake internals themselves are out of scope here; this
// type only adapts the standard library's implementation to the readiness
// loop's non-blocking contract.
type Secure struct {
	conn      *tls.Conn
	handshook bool
	closed    bool
}

// NewSecure wraps an accepted raw connection with a server-side TLS config.
// The handshake is not performed here; it happens lazily on the first
// Recv/Send/Ready call so a readiness loop can poll it forward.
func NewSecure(raw net.Conn, cfg *tls.Config) *Secure {
	return &Secure{conn: tls.Server(raw, cfg)}
}

func (s *Secure) Ready() bool {
	if s.handshook {
		return true
	}
	s.conn.SetDeadline(time.Now())
	err := s.conn.Handshake()
	s.conn.SetDeadline(time.Time{})
	if err == nil {
		s.handshook = true
		return true
	}
	return false
}

func (s *Secure) Recv(buf []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if !s.Ready() {
		return 0, ErrWouldBlock
	}

	s.conn.SetReadDeadline(time.Now())
	n, err := s.conn.Read(buf)
	s.conn.SetReadDeadline(time.Time{})
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return n, ErrWouldBlock
		}
		return n, err
	}
	return n, nil
}

func (s *Secure) Send(buf []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if !s.Ready() {
		return 0, ErrWouldBlock
	}

	s.conn.SetWriteDeadline(time.Now())
	n, err := s.conn.Write(buf)
	s.conn.SetWriteDeadline(time.Time{})
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return n, ErrWouldBlock
		}
		return n, err
	}
	return n, nil
}

func (s *Secure) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
