package daemon

import (
	"github.com/searchktools/mhttpd/config"
	"github.com/searchktools/mhttpd/internal/connfsm"
)

// GetFDSet reports the fds a host running its own select/poll loop should
// watch: the listener plus every non-suspended connection, split into
// read-interest and write-interest sets. Only valid in external mode.
func (d *Daemon) GetFDSet() (readFDs, writeFDs []int, maxFD int, err error) {
	if d.cfg.Options.Has(config.UseInternalSelect) || d.cfg.Options.Has(config.UseThreadPerConnection) {
		return nil, nil, 0, ErrWrongMode
	}

	readFDs = append(readFDs, d.listenFD)
	maxFD = d.listenFD

	d.connMu.RLock()
	for fd, c := range d.conns {
		if c.Suspended() {
			continue
		}
		readFDs = append(readFDs, fd)
		if wantsWrite(c.State()) {
			writeFDs = append(writeFDs, fd)
		}
		if fd > maxFD {
			maxFD = fd
		}
	}
	d.connMu.RUnlock()

	return readFDs, writeFDs, maxFD, nil
}

func wantsWrite(s connfsm.State) bool {
	switch s {
	case connfsm.Send, connfsm.SendBody, connfsm.Footers:
		return true
	default:
		return false
	}
}

// Run performs one non-blocking sweep: accept up to one new connection if
// the listener has one pending, advance every live connection until it
// would block, and reap anything idle past its deadline. Only valid in
// external mode; every Conn it touches runs with SetExternalMode(true) so
// a callback response reader returning "not ready" is treated as the
// fatal usage error spec'd for this mode rather than a recoverable block.
func (d *Daemon) Run() error {
	if d.cfg.Options.Has(config.UseInternalSelect) || d.cfg.Options.Has(config.UseThreadPerConnection) {
		return ErrWrongMode
	}
	if !d.running.Load() {
		return ErrNotRunning
	}

	if c, fd, ok, _ := d.acceptOne(false); ok {
		c.SetExternalMode(true)
		d.driveOne(fd, c)
	}

	d.connMu.RLock()
	snapshot := make(map[int]*connfsm.Conn, len(d.conns))
	for fd, c := range d.conns {
		snapshot[fd] = c
	}
	d.connMu.RUnlock()

	for fd, c := range snapshot {
		if c.Suspended() {
			continue
		}
		c.SetExternalMode(true)
		d.driveOne(fd, c)
	}

	d.reapIdle()
	return nil
}

func (d *Daemon) driveOne(fd int, c *connfsm.Conn) {
	c.Advance()
	if c.State() == connfsm.Closed {
		d.closeConn(fd, terminationCodeFor(c))
	}
}
