// Package transport abstracts the byte-level read/write path a connection's
// FSM drives, so the same protocol engine runs unmodified over a plain TCP
// socket or a TLS record layer. It deliberately mirrors a small vtable
// rather than net.Conn: WOULD_BLOCK is a first-class result rather than an
// error the caller has to sniff out of an interface{} err value, which
// matters in the non-blocking daemon loops that call Recv/Send once per
// readiness notification and must never block the caller.
package transport

import "errors"

// ErrWouldBlock is returned by Recv/Send when the operation could not
// complete without blocking; the caller should retry once the poller
// reports the fd ready again.
var ErrWouldBlock = errors.New("transport: would block")

// ErrClosed is returned once Close has been called, and by Plain.Recv when
// the peer has closed its end of the connection.
var ErrClosed = errors.New("transport: closed")

// Transport is the read/write/close vtable a ConnectionFSM drives. Over a
// non-blocking fd, Recv and Send surface ErrWouldBlock instead of
// blocking. Thread-per-connection mode hands Plain a blocking fd, and there
// they block (reads bounded by SO_RCVTIMEO).
type Transport interface {
	// Recv reads into buf, returning the number of bytes read.
	Recv(buf []byte) (n int, err error)
	// Send writes buf, returning the number of bytes written. Partial
	// writes are possible and must be re-driven by the caller with the
	// unwritten remainder.
	Send(buf []byte) (n int, err error)
	// Ready reports whether the transport has completed any preliminary
	// handshake and is ready to exchange HTTP bytes. Plain transports are
	// always ready; secure transports are not until the TLS handshake
	// finishes.
	Ready() bool
	// Close releases the underlying fd/connection.
	Close() error
}
