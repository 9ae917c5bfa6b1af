package connfsm

import (
	"errors"
	"time"

	"github.com/searchktools/mhttpd/internal/bytepool"
	"github.com/searchktools/mhttpd/internal/mempool"
	"github.com/searchktools/mhttpd/internal/reqparser"
	"github.com/searchktools/mhttpd/response"
	"github.com/searchktools/mhttpd/transport"
)

// initialBufSize is the read buffer's starting size, carved once from the
// connection's Arena at Rearm and grown in place from there. It is never
// released back to the arena for the life of the connection, so keep-alive
// requests reuse the same low-end allocation instead of re-carving it.
const initialBufSize = 2048

// ErrHandlerRejected is recorded on a connection whose handler returned No.
var ErrHandlerRejected = errors.New("connfsm: handler rejected connection")

// ErrBusyWaitCallback is recorded when a callback-sourced response's Reader
// returns 0 (not ready) on a connection running in external mode. External
// mode makes exactly one non-blocking sweep per host-driven Run call, so a
// Reader that isn't ready yet would otherwise need the loop to spin on it
// with no readiness event to wait on; per contract that's a fatal usage
// error rather than something the FSM can wait out.
var ErrBusyWaitCallback = errors.New("connfsm: callback reader returned 0 in external mode")

// Handler is the user-supplied access callback. It is invoked at least
// twice per request: once when headers are ready (chunk == nil, final ==
// false) and again for each delivered body chunk, with a last call carrying
// final == true once the body is fully delivered (chunk may be nil on that
// last call for a request with no body). The handler signals it is done
// producing a response by calling Conn.QueueResponse before returning.
type Handler func(c *Conn, chunk []byte, final bool) Action

// Conn drives one connection's protocol state machine end to end: parsing,
// handler dispatch, response serialization, and keep-alive/pipelining.
type Conn struct {
	Transport transport.Transport
	Arena     *mempool.Pool

	handler  Handler
	bytePool *bytepool.Pool

	parser reqparser.Parser
	state  State

	buf    []byte
	bufLen int
	bufOff int

	clientContext any
	suspended     bool

	resp           *response.Response
	responseQueued bool

	sendHeader    []byte
	sendHeaderOff int
	bodyPos       int64

	pendingContinue    []byte
	pendingContinueOff int

	keepAlive          bool
	err                error
	expectContinueSent bool

	idleDeadline time.Time
	idleTimeout  time.Duration

	externalMode bool
}

// New constructs a Conn ready to run in state Init. arena may be nil when
// New is only building a template for a connection pool; Rearm supplies
// the real, per-accept Arena before the Conn is ever driven.
func New(tr transport.Transport, arena *mempool.Pool, bp *bytepool.Pool, h Handler, idleTimeout time.Duration) *Conn {
	c := &Conn{
		Transport:   tr,
		handler:     h,
		bytePool:    bp,
		state:       Init,
		idleTimeout: idleTimeout,
	}
	if arena != nil {
		c.armArena(arena)
	}
	return c
}

// State reports the FSM's current position.
func (c *Conn) State() State { return c.state }

// Err reports the error that caused a Closed transition, if any.
func (c *Conn) Err() error { return c.err }

// Request exposes the in-progress/most recently parsed request to the
// handler.
func (c *Conn) Request() *reqparser.Request { return &c.parser.Request }

// QueuedResponse returns the response queued with QueueResponse, or nil
// if none has been queued yet for the current request.
func (c *Conn) QueuedResponse() *response.Response { return c.resp }

// ClientContext returns the handler-owned opaque state for this request,
// nil until the handler first sets one with SetClientContext.
func (c *Conn) ClientContext() any { return c.clientContext }

// SetClientContext lets the handler stash state that survives repeated
// invocations within the same request (e.g. an in-progress upload parser).
func (c *Conn) SetClientContext(v any) { c.clientContext = v }

// QueueResponse hands the FSM a response to serialize. After this call
// further handler invocations for the current request are suppressed. A
// second call while a response is already queued is a no-op; callers that
// need to know whether their response was accepted check ResponseQueued
// beforehand.
func (c *Conn) QueueResponse(r *response.Response) {
	if c.responseQueued {
		return
	}
	c.resp = r
	c.responseQueued = true
}

// ResponseQueued reports whether a response has already been queued for
// the current request.
func (c *Conn) ResponseQueued() bool { return c.responseQueued }

// Suspend halts FSM progress for this connection until Resume is called.
// The daemon must stop calling Advance while suspended; the transport stays
// registered but idle-timeout tracking pauses too.
func (c *Conn) Suspend() { c.suspended = true }

// Resume clears a prior Suspend.
func (c *Conn) Resume() { c.suspended = false }

// Suspended reports whether the connection is currently suspended.
func (c *Conn) Suspended() bool { return c.suspended }

// Reset clears a Conn for reuse across accepted connections, implementing
// pools.Poolable. Call Rearm with a fresh Transport and Arena before
// driving Advance again; the read buffer is dropped along with the Arena
// that owns its memory, since each accept gets its own Arena.
func (c *Conn) Reset() {
	c.Transport = nil
	c.Arena = nil
	c.parser.Reset()
	c.parser.SetArena(nil)
	c.state = Init
	c.buf = nil
	c.bufLen = 0
	c.bufOff = 0
	c.clientContext = nil
	c.suspended = false
	c.resp = nil
	c.responseQueued = false
	c.sendHeader = nil
	c.sendHeaderOff = 0
	c.bodyPos = 0
	c.pendingContinue = nil
	c.pendingContinueOff = 0
	c.keepAlive = false
	c.err = nil
	c.expectContinueSent = false
	c.idleDeadline = time.Time{}
	c.externalMode = false
}

// Rearm re-initializes a Reset Conn for a newly accepted connection. It
// carves the read buffer out of arena, so ok is false only when arena is
// too small to hold even the initial buffer — the caller should treat
// that as a setup failure and reject the connection outright.
func (c *Conn) Rearm(tr transport.Transport, arena *mempool.Pool, idleTimeout time.Duration) (ok bool) {
	c.Transport = tr
	c.idleTimeout = idleTimeout
	c.state = Init
	return c.armArena(arena)
}

// armArena binds arena to the connection and carves its permanent, low-end
// read buffer from it. The buffer is never returned to the arena
// individually; it lives until the whole Arena is discarded at the next
// accept, growing in place via Reallocate as requests need more room.
func (c *Conn) armArena(arena *mempool.Pool) bool {
	buf, ok := arena.Allocate(initialBufSize)
	if !ok {
		return false
	}
	c.Arena = arena
	c.parser.SetArena(arena)
	c.buf = buf
	c.bufLen = 0
	c.bufOff = 0
	return true
}

// SetExternalMode marks whether this connection is driven by the host's own
// non-blocking sweep (external mode) rather than an internal event loop or
// a dedicated blocking worker. It governs whether a not-ready callback
// Reader is treated as a recoverable "would block" or a fatal usage error.
func (c *Conn) SetExternalMode(v bool) { c.externalMode = v }

// Advance drives the FSM forward until it would block on I/O, needs a
// suspended handler to resume, or reaches Closed.
func (c *Conn) Advance() {
	if c.suspended {
		return
	}

	for {
		switch c.state {
		case Init:
			c.beginRequest()

		case URL, Headers:
			if !c.readHeaders() {
				return
			}

		case BodyRead:
			if !c.readBody() {
				return
			}

		case Send:
			if !c.sendHeadersStep() {
				return
			}

		case SendBody:
			if !c.sendBodyStep() {
				return
			}

		case Footers:
			c.sendFooters()

		case Done:
			c.finishRequest()

		case Closed:
			c.teardown()
			return

		case HandlerState:
			// callHandler always resolves synchronously into BodyRead,
			// Send, or Closed; this case is unreachable in steady state.
			return
		}

		if c.suspended {
			return
		}
	}
}

func (c *Conn) beginRequest() {
	c.parser.Reset()
	c.responseQueued = false
	c.resp = nil
	c.clientContext = nil
	c.expectContinueSent = false
	c.sendHeader = nil
	c.sendHeaderOff = 0
	c.bodyPos = 0
	c.state = URL
	c.touch()
}

func (c *Conn) touch() {
	if c.idleTimeout > 0 {
		c.idleDeadline = time.Now().Add(c.idleTimeout)
	}
}

// IdleTimedOut reports whether the connection has been idle past its
// configured deadline; the daemon's reaper calls this between Advance
// calls, matching the "any state, idle > timeout -> CLOSED" transition.
func (c *Conn) IdleTimedOut(now time.Time) bool {
	return c.idleTimeout > 0 && !c.idleDeadline.IsZero() && now.After(c.idleDeadline)
}

func (c *Conn) fail(err error) {
	c.err = err
	c.state = Closed
}

// failWithStatus records err and, per the FSM's "best-effort error
// response if headers not yet sent" rule, synthesizes and queues a
// status-only response before transitioning to Send instead of straight
// to Closed. It falls back to a silent close if a real response is
// already queued or the FSM has already started sending one.
func (c *Conn) failWithStatus(err error, status int) {
	c.err = err
	if c.responseQueued || c.state == Send || c.state == SendBody || c.state == Footers || c.state == Done {
		c.state = Closed
		return
	}
	resp := response.FromBuffer(nil, response.Borrow, nil)
	resp.Status = status
	c.QueueResponse(resp)
	c.state = Send
}

// Abort forces the connection to Closed with err and releases its
// transport and any queued response, for a daemon reaper or shutdown path
// that needs to end a connection the FSM itself has no event to drive
// forward (idle timeout, host shutdown). A no-op if already Closed.
func (c *Conn) Abort(err error) {
	if c.state == Closed {
		return
	}
	c.fail(err)
	c.teardown()
}

// growBuf doubles the read buffer in place via the Arena's low-end
// reallocation, reporting false when the Arena has no room left — the
// single, explicit exhaustion signal a greedy connection can hit.
func (c *Conn) growBuf() bool {
	next, ok := c.Arena.Reallocate(c.buf, len(c.buf), len(c.buf)*2)
	if !ok {
		return false
	}
	c.buf = next
	return true
}

// parseErrorStatus maps a reqparser.Error's cause to the status code the
// FSM's best-effort error response should carry: 500 for arena
// exhaustion (a resource-exhaustion category of its own per the error
// handling design), 400 for every other parse failure.
func parseErrorStatus(err error) int {
	if err == mempool.ErrExhausted {
		return 500
	}
	return 400
}

func (c *Conn) compact() {
	if c.bufOff == 0 {
		return
	}
	n := copy(c.buf, c.buf[c.bufOff:c.bufLen])
	c.bufLen = n
	c.bufOff = 0
}

// readHeaders reads and parses the request line and header block. Returns
// false if it exits only because the transport would block.
func (c *Conn) readHeaders() bool {
	for {
		n, ev := c.parser.Feed(c.buf[c.bufOff:c.bufLen])
		c.bufOff += n

		switch ev.Kind {
		case reqparser.HeadersReady:
			c.touch()
			c.callHandler(nil, false)
			return true
		case reqparser.Error:
			c.failWithStatus(ev.Err, parseErrorStatus(ev.Err))
			return true
		}

		if c.parser.Request.Method != "" {
			c.state = Headers
		}

		c.compact()
		if c.bufLen == len(c.buf) {
			if !c.growBuf() {
				c.failWithStatus(mempool.ErrExhausted, 500)
				return true
			}
		}
		nr, err := c.Transport.Recv(c.buf[c.bufLen:])
		if err != nil {
			if err == transport.ErrWouldBlock {
				return false
			}
			c.fail(err)
			return true
		}
		if nr == 0 {
			continue
		}
		c.bufLen += nr
		c.touch()
	}
}

// readBody feeds body bytes to the parser, invoking the handler for each
// delivered chunk and once more on completion. Returns false only when it
// exits because the transport would block.
func (c *Conn) readBody() bool {
	if !c.drainPendingContinue() {
		return false
	}

	for {
		n, ev := c.parser.Feed(c.buf[c.bufOff:c.bufLen])
		c.bufOff += n

		switch ev.Kind {
		case reqparser.BodyChunk:
			c.callHandler(ev.Chunk, false)
			if c.state != BodyRead {
				return true
			}
			continue
		case reqparser.BodyDone:
			c.callHandler(nil, true)
			return true
		case reqparser.Error:
			c.failWithStatus(ev.Err, parseErrorStatus(ev.Err))
			return true
		}

		c.compact()
		if c.bufLen == len(c.buf) {
			if !c.growBuf() {
				c.failWithStatus(mempool.ErrExhausted, 500)
				return true
			}
		}
		nr, err := c.Transport.Recv(c.buf[c.bufLen:])
		if err != nil {
			if err == transport.ErrWouldBlock {
				return false
			}
			c.fail(err)
			return true
		}
		if nr == 0 {
			continue
		}
		c.bufLen += nr
		c.touch()
	}
}

// callHandler invokes the user handler unless a response has already been
// queued for this request, per the "further handler calls are suppressed"
// rule, and resolves the next state from the outcome.
func (c *Conn) callHandler(chunk []byte, final bool) {
	if c.responseQueued {
		if final {
			c.state = Send
		}
		return
	}

	c.state = HandlerState
	switch c.handler(c, chunk, final) {
	case No:
		c.fail(ErrHandlerRejected)
		return
	}

	if c.responseQueued {
		c.state = Send
		return
	}
	c.state = BodyRead

	if !c.expectContinueSent && c.parser.ShouldExpectContinue() {
		c.expectContinueSent = true
		c.pendingContinue = []byte("HTTP/1.1 100 Continue\r\n\r\n")
		c.pendingContinueOff = 0
	}
}

// drainPendingContinue flushes a queued "100 Continue" line before any body
// bytes are read, per the requirement that it be emitted exactly once,
// ahead of the body, when the handler hasn't already responded.
func (c *Conn) drainPendingContinue() bool {
	for c.pendingContinueOff < len(c.pendingContinue) {
		n, err := c.Transport.Send(c.pendingContinue[c.pendingContinueOff:])
		c.pendingContinueOff += n
		if err != nil {
			if err == transport.ErrWouldBlock {
				return false
			}
			c.fail(err)
			return true
		}
	}
	c.pendingContinue = nil
	return true
}
