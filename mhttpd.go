// Package mhttpd is the public embedding surface over the daemon package:
// start/stop a listener, register handlers by URI prefix, and let the host
// process drive the daemon's event loop in whichever of the three modes
// its Config selects. Everything below is a thin, host-facing wrapper
// around daemon.Daemon — the protocol engine itself lives in
// internal/connfsm, internal/reqparser and transport.
package mhttpd

import (
	"net"

	"github.com/searchktools/mhttpd/config"
	"github.com/searchktools/mhttpd/daemon"
	"github.com/searchktools/mhttpd/internal/connfsm"
	"github.com/searchktools/mhttpd/router"
)

// Handler processes one request chunk. Called once per readiness event
// with the newly available bytes (nil on the initial "headers ready"
// call), and once more with final=true after the body is fully read.
// Returning No aborts the connection.
type Handler = connfsm.Handler

// Session is the request/connection state visible to a Handler.
type Session = daemon.Session

// AcceptPolicy decides whether a newly accepted connection may proceed.
type AcceptPolicy = daemon.AcceptPolicy

// NotifyCompleted, if set, fires once per connection as it terminates.
type NotifyCompleted = daemon.NotifyCompleted

// TerminationCode names why NotifyCompleted fired.
type TerminationCode = daemon.TerminationCode

const (
	TerminatedCompletedOK    = daemon.TerminatedCompletedOK
	TerminatedWithError      = daemon.TerminatedWithError
	TerminatedTimeoutReached = daemon.TerminatedTimeoutReached
	TerminatedDaemonShutdown = daemon.TerminatedDaemonShutdown
)

// Action is a Handler's directive back to the connection FSM.
type Action = connfsm.Action

const (
	// Yes keeps processing the connection normally.
	Yes = connfsm.Yes
	// No aborts the connection with an error.
	No = connfsm.No
)

// Errors returned by RegisterHandler/UnregisterHandler/Start/Stop/Run/
// GetFDSet, re-exported from daemon so callers never need to import it
// directly just to compare against a sentinel.
var (
	ErrDuplicateHandler   = daemon.ErrDuplicateHandler
	ErrHandlerNotFound    = daemon.ErrHandlerNotFound
	ErrNotRunning         = daemon.ErrNotRunning
	ErrNoAddressFamily    = daemon.ErrNoAddressFamily
	ErrMissingTLSMaterial = daemon.ErrMissingTLSMaterial
	ErrWrongMode          = daemon.ErrWrongMode
)

// Daemon is a running listener plus its registered handlers. The zero
// value is not usable; obtain one from Start.
type Daemon struct {
	d *daemon.Daemon
}

// Start binds cfg.Port (per cfg.Options' address family and mode bits)
// and returns a running Daemon. defaultHandler serves any request whose
// path matches no prefix later registered with RegisterHandler; policy
// and notify may both be nil.
//
// Depending on cfg.Options, the returned Daemon is driven one of three
// ways: external mode (neither UseInternalSelect nor
// UseThreadPerConnection set) requires the host to call GetFDSet/Run
// itself; the other two modes start their own goroutine and Run/GetFDSet
// return ErrWrongMode.
func Start(cfg *config.Config, defaultHandler Handler, policy AcceptPolicy, notify NotifyCompleted) (*Daemon, error) {
	reg := router.New()
	if defaultHandler != nil {
		if err := reg.Register("", defaultHandler); err != nil {
			return nil, err
		}
	}
	d, err := daemon.Start(cfg, reg, policy, notify)
	if err != nil {
		return nil, err
	}
	return &Daemon{d: d}, nil
}

// Stop halts the daemon, closing every live connection with
// TerminatedDaemonShutdown and releasing the listener. Safe to call once;
// a second call returns daemon.ErrNotRunning.
func (h *Daemon) Stop() error {
	return h.d.Stop()
}

// RegisterHandler binds h to every request path with the given prefix.
// Prefix "" registers the default handler used when no other prefix
// matches.
func (h *Daemon) RegisterHandler(prefix string, fn Handler) error {
	return h.d.RegisterHandler(prefix, fn)
}

// UnregisterHandler removes a previously registered handler.
func (h *Daemon) UnregisterHandler(prefix string) error {
	return h.d.UnregisterHandler(prefix)
}

// GetFDSet reports the fds a host running its own select/poll loop
// should watch. Only valid in external mode.
func (h *Daemon) GetFDSet() (readFDs, writeFDs []int, maxFD int, err error) {
	return h.d.GetFDSet()
}

// Run performs one non-blocking sweep over the listener and every live
// connection. Only valid in external mode; the host calls this
// repeatedly, typically right after its own select/poll wakes.
func (h *Daemon) Run() error {
	return h.d.Run()
}

// Addr returns the listener's bound local address.
func (h *Daemon) Addr() (net.Addr, error) {
	return h.d.Addr()
}

// Stats reports live connection count and pool/handler diagnostics.
type Stats = daemon.Stats

// Stats returns a snapshot of the daemon's current load.
func (h *Daemon) Stats() Stats {
	return h.d.Stats()
}
