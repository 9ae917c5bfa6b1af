// Package daemon implements the readiness-driven event loop around
// internal/connfsm: binding a listener, accepting connections, running one
// of the three operating modes spec'd for this engine, and reaping idle
// connections. It is grounded on core/engine.go's Engine type, generalized
// from a single owned accept/poll loop into the three modes a host process
// may select.
package daemon

import (
	"crypto/tls"
	"errors"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/searchktools/mhttpd/config"
	"github.com/searchktools/mhttpd/internal/bytepool"
	"github.com/searchktools/mhttpd/internal/connfsm"
	"github.com/searchktools/mhttpd/internal/mempool"
	"github.com/searchktools/mhttpd/internal/observability"
	"github.com/searchktools/mhttpd/internal/pools"
	"github.com/searchktools/mhttpd/internal/poller"
	"github.com/searchktools/mhttpd/internal/wpool"
	"github.com/searchktools/mhttpd/router"
	"github.com/searchktools/mhttpd/transport"
)

// AcceptPolicy decides whether a newly accepted connection from addr may
// proceed, mirroring libmicrohttpd's MHD_AcceptPolicyCallback.
type AcceptPolicy func(addr net.Addr) bool

// NotifyCompleted, if set, fires once per connection as it terminates,
// mirroring libmicrohttpd's MHD_RequestCompletedCallback.
type NotifyCompleted func(s *Session, code TerminationCode)

// Daemon owns a listening socket, a handler registry, and the connection
// registry for whichever of the three event-loop modes cfg.Options selects.
type Daemon struct {
	cfg      *config.Config
	registry *router.Registry
	monitor  *observability.Monitor

	acceptPolicy AcceptPolicy
	notify       NotifyCompleted

	tlsConfig *tls.Config

	listenFD   int
	listenFile *os.File

	connPool *pools.ConnectionPool
	bytePool *bytepool.Pool

	conns  map[int]*connfsm.Conn
	connMu sync.RWMutex

	reqStart sync.Map // *connfsm.Conn -> int64, observability.Monitor.StartTrace value

	pollerP poller.Poller // internal-select mode only
	workers *wpool.Pool   // thread-per-connection mode only

	wg      sync.WaitGroup
	running atomic.Bool

	stopR *os.File
	stopW *os.File
	done  chan struct{}
}

// Start binds the listening socket, builds the daemon's pools, and — for
// the two modes the daemon owns outright — starts the background
// goroutine(s). In external mode the caller drives progress itself via
// GetFDSet/Run.
func Start(cfg *config.Config, registry *router.Registry, policy AcceptPolicy, notify NotifyCompleted) (*Daemon, error) {
	if !cfg.Options.Has(config.UseIPv4) && !cfg.Options.Has(config.UseIPv6) {
		return nil, ErrNoAddressFamily
	}
	if cfg.Options.Has(config.UseThreadPerConnection) && cfg.Options.Has(config.UseInternalSelect) {
		return nil, errors.New("daemon: UseThreadPerConnection and UseInternalSelect are mutually exclusive")
	}

	d := &Daemon{
		cfg:          cfg,
		registry:     registry,
		monitor:      observability.NewMonitor(),
		acceptPolicy: policy,
		notify:       notify,
		bytePool:     bytepool.New(),
		conns:        make(map[int]*connfsm.Conn, 1024),
	}
	d.connPool = pools.NewConnectionPool(func() any {
		return connfsm.New(nil, nil, d.bytePool, d.handle, cfg.IdleTimeout)
	})

	if cfg.Options.Has(config.UseSSL) {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, ErrMissingTLSMaterial
		}
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		d.tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	network := "tcp4"
	if cfg.Options.Has(config.UseIPv6) && !cfg.Options.Has(config.UseIPv4) {
		network = "tcp6"
	} else if cfg.Options.Has(config.UseIPv6) && cfg.Options.Has(config.UseIPv4) {
		network = "tcp"
	}

	ln, err := net.ListenTCP(network, &net.TCPAddr{Port: cfg.Port})
	if err != nil {
		return nil, err
	}
	lnFile, err := ln.File()
	if err != nil {
		ln.Close()
		return nil, err
	}
	// ln.File dups the descriptor into lnFile, which the daemon keeps
	// alive and drives directly with raw syscalls from here on; ln itself
	// is redundant once the dup exists.
	ln.Close()
	lfd := int(lnFile.Fd())
	if err := syscall.SetNonblock(lfd, true); err != nil {
		lnFile.Close()
		return nil, err
	}
	d.listenFD = lfd
	d.listenFile = lnFile

	stopR, stopW, err := os.Pipe()
	if err != nil {
		lnFile.Close()
		return nil, err
	}
	d.stopR, d.stopW = stopR, stopW
	d.done = make(chan struct{})

	d.running.Store(true)

	if cfg.Options.Has(config.UseDebug) {
		log.Printf("🚀 daemon listening on port %d", cfg.Port)
	}

	switch {
	case cfg.Options.Has(config.UseThreadPerConnection):
		d.workers = wpool.New(0)
		d.wg.Add(2)
		go d.runThreadPerConnection()
		go d.runReaper()
	case cfg.Options.Has(config.UseInternalSelect):
		p, err := poller.New()
		if err != nil {
			d.closeListener()
			return nil, err
		}
		if err := p.Add(lfd); err != nil {
			p.Close()
			d.closeListener()
			return nil, err
		}
		d.pollerP = p
		d.wg.Add(2)
		go d.runInternalSelect()
		go d.runReaper()
	}
	// external mode: caller drives GetFDSet/Run, nothing to start here.

	return d, nil
}

func (d *Daemon) closeListener() {
	d.listenFile.Close()
	d.stopR.Close()
	d.stopW.Close()
}

// Stop signals every owned loop to exit (via the self-pipe), waits for
// them, force-closes every still-live connection with
// TerminatedDaemonShutdown, and releases the listener.
func (d *Daemon) Stop() error {
	if !d.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}

	d.stopW.Write([]byte{0})
	close(d.done)
	d.wg.Wait()

	if d.workers != nil {
		d.workers.Close()
	}
	if d.pollerP != nil {
		d.pollerP.Close()
	}

	d.connMu.Lock()
	remaining := make([]*connfsm.Conn, 0, len(d.conns))
	for fd, c := range d.conns {
		remaining = append(remaining, c)
		delete(d.conns, fd)
	}
	d.connMu.Unlock()

	for _, c := range remaining {
		c.Abort(ErrDaemonShutdown)
		d.fireNotify(c, TerminatedDaemonShutdown)
		d.reqStart.Delete(c)
		d.connPool.Put(c)
	}

	d.monitor.Close()
	d.closeListener()
	return nil
}

// RegisterHandler adds a handler for the given URI prefix.
func (d *Daemon) RegisterHandler(prefix string, h connfsm.Handler) error {
	if err := d.registry.Register(prefix, h); err != nil {
		return ErrDuplicateHandler
	}
	return nil
}

// UnregisterHandler removes a previously registered handler.
func (d *Daemon) UnregisterHandler(prefix string) error {
	if err := d.registry.Unregister(prefix); err != nil {
		return ErrHandlerNotFound
	}
	return nil
}

// Stats reports connection-pool and per-handler diagnostics.
type Stats struct {
	LiveConnections int
	ConnPoolGets    uint64
	ConnPoolPuts    uint64
	ConnPoolHitRate float64
	Handlers        []observability.Snapshot
	TotalRequests   uint64
}

// Stats returns a snapshot of the daemon's current activity.
func (d *Daemon) Stats() Stats {
	d.connMu.RLock()
	live := len(d.conns)
	d.connMu.RUnlock()

	gets, puts, hitRate := d.connPool.Stats()
	handlers, total := d.monitor.Snapshots()

	return Stats{
		LiveConnections: live,
		ConnPoolGets:    gets,
		ConnPoolPuts:    puts,
		ConnPoolHitRate: hitRate,
		Handlers:        handlers,
		TotalRequests:   total,
	}
}

// handle is the single dispatcher every pooled Conn is constructed with;
// it resolves the registered handler by request path on every call, since
// the path isn't known until the request line is parsed.
func (d *Daemon) handle(c *connfsm.Conn, chunk []byte, final bool) connfsm.Action {
	h, prefix, ok := d.registry.LookupPrefix(c.Request().Path)
	if !ok {
		return connfsm.No
	}

	if chunk == nil && !final {
		d.reqStart.Store(c, startKey{prefix, d.monitor.StartTrace()})
	}

	action := h(c, chunk, final)

	if final || action == connfsm.No {
		if v, ok := d.reqStart.LoadAndDelete(c); ok {
			sk := v.(startKey)
			d.monitor.EndTrace(handlerLabel(sk.prefix), sk.start, action == connfsm.No)
		}
	}
	return action
}

type startKey struct {
	prefix string
	start  int64
}

func handlerLabel(prefix string) string {
	if prefix == "" {
		return "default"
	}
	return prefix
}

// newTransport wraps an accepted, address-family-appropriate fd in the
// configured transport, returning the fd the daemon should register with
// its poller (which differs from nfd once TLS's net.Conn dups the
// descriptor internally).
func (d *Daemon) newTransport(nfd int) (transport.Transport, int, error) {
	if d.tlsConfig == nil {
		return transport.NewPlain(nfd), nfd, nil
	}

	f := os.NewFile(uintptr(nfd), "conn")
	netConn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil, -1, err
	}

	sc, ok := netConn.(syscall.Conn)
	if !ok {
		netConn.Close()
		return nil, -1, errors.New("daemon: accepted connection exposes no raw fd")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		netConn.Close()
		return nil, -1, err
	}
	var pollFD int
	if err := raw.Control(func(fd uintptr) { pollFD = int(fd) }); err != nil {
		netConn.Close()
		return nil, -1, err
	}

	return transport.NewSecure(netConn, d.tlsConfig), pollFD, nil
}

// acceptOne accepts and configures at most one pending connection off lfd,
// returning ok=false once the accept queue is drained (EAGAIN) or the fd
// is rejected by policy/setup failure (in which case it has already been
// cleaned up and the caller should just try again).
func (d *Daemon) acceptOne(blocking bool) (c *connfsm.Conn, fd int, ok bool, drained bool) {
	nfd, sa, err := syscall.Accept(d.listenFD)
	if err != nil {
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			return nil, -1, false, true
		}
		if err == syscall.EINTR {
			return nil, -1, false, false
		}
		if d.cfg.Options.Has(config.UseDebug) {
			log.Printf("daemon: accept error: %v", err)
		}
		return nil, -1, false, false
	}

	peer := sockaddrToAddr(sa)
	if d.acceptPolicy != nil && !d.acceptPolicy(peer) {
		syscall.Close(nfd)
		return nil, -1, false, false
	}

	if !blocking {
		if err := syscall.SetNonblock(nfd, true); err != nil {
			syscall.Close(nfd)
			return nil, -1, false, false
		}
	}
	syscall.SetsockoptInt(nfd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1)
	syscall.SetsockoptInt(nfd, syscall.SOL_SOCKET, syscall.SO_KEEPALIVE, 1)

	tr, pollFD, err := d.newTransport(nfd)
	if err != nil {
		syscall.Close(nfd)
		if d.cfg.Options.Has(config.UseDebug) {
			log.Printf("daemon: transport setup failed: %v", err)
		}
		return nil, -1, false, false
	}

	arena := mempool.New(d.arenaSize())
	conn := d.connPool.Get().(*connfsm.Conn)
	if !conn.Rearm(tr, arena, d.cfg.IdleTimeout) {
		d.connPool.Put(conn)
		tr.Close()
		if d.cfg.Options.Has(config.UseDebug) {
			log.Printf("daemon: arena too small for connection buffer")
		}
		return nil, -1, false, false
	}

	d.connMu.Lock()
	d.conns[pollFD] = conn
	d.connMu.Unlock()

	return conn, pollFD, true, false
}

func (d *Daemon) arenaSize() int {
	if d.cfg.ArenaSize > 0 {
		return d.cfg.ArenaSize
	}
	return 64 * 1024
}

// closeConn removes fd from the registry, fires the termination notifier,
// tears down the connection, and returns it to the pool.
func (d *Daemon) closeConn(fd int, code TerminationCode) {
	d.connMu.Lock()
	c, ok := d.conns[fd]
	if ok {
		delete(d.conns, fd)
	}
	d.connMu.Unlock()
	if !ok {
		return
	}

	if c.State() != connfsm.Closed {
		c.Abort(errConnReaped)
	}
	d.fireNotify(c, code)
	d.reqStart.Delete(c)
	d.connPool.Put(c)
}

func (d *Daemon) fireNotify(c *connfsm.Conn, code TerminationCode) {
	if d.notify != nil {
		d.notify(c, code)
	}
}

// terminationCodeFor classifies a Conn that reached Closed on its own
// (i.e. not via the reaper or Stop, which pick their own code) by whether
// it carries an error.
func terminationCodeFor(c *connfsm.Conn) TerminationCode {
	if c.Err() != nil {
		return TerminatedWithError
	}
	return TerminatedCompletedOK
}

var errConnReaped = errors.New("daemon: connection reaped")

// ErrIdleTimeout and ErrDaemonShutdown are recorded on a Conn forced
// closed by the reaper or by Stop, so Conn.Err() reports why.
var (
	ErrIdleTimeout   = errors.New("daemon: idle timeout")
	ErrDaemonShutdown = errors.New("daemon: shutdown")
)

// Addr returns the listener's bound local address, useful when Config.Port
// was 0 and the kernel picked an ephemeral port.
func (d *Daemon) Addr() (net.Addr, error) {
	sa, err := syscall.Getsockname(d.listenFD)
	if err != nil {
		return nil, err
	}
	if addr := sockaddrToAddr(sa); addr != nil {
		return addr, nil
	}
	return nil, errors.New("daemon: unrecognized listener sockaddr")
}

func sockaddrToAddr(sa syscall.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *syscall.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	case *syscall.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return nil
	}
}

// reapIdle scans the registry for connections idle past their deadline and
// closes them, mirroring core/engine.go's cleanupIdleConnections ticker
// pattern.
func (d *Daemon) reapIdle() {
	now := time.Now()
	var toClose []int

	d.connMu.RLock()
	for fd, c := range d.conns {
		if !c.Suspended() && c.IdleTimedOut(now) {
			toClose = append(toClose, fd)
		}
	}
	d.connMu.RUnlock()

	for _, fd := range toClose {
		d.connMu.Lock()
		c, ok := d.conns[fd]
		d.connMu.Unlock()
		if ok {
			c.Abort(ErrIdleTimeout)
		}
		d.closeConn(fd, TerminatedTimeoutReached)
	}
}
