package daemon

import (
	"github.com/searchktools/mhttpd/internal/connfsm"
	"github.com/searchktools/mhttpd/internal/poller"
)

// runInternalSelect is the internal-select mode's owned loop: one
// goroutine running internal/poller (epoll/kqueue) over the listener, the
// stop pipe, and every live connection, restructured from
// core/engine.go's Run into a mode the daemon can run alongside the other
// two instead of always owning the process's only event loop.
func (d *Daemon) runInternalSelect() {
	defer d.wg.Done()

	stopFD := int(d.stopR.Fd())
	d.pollerP.Add(stopFD)

	for {
		events, err := d.pollerP.Wait(200)
		if err != nil {
			continue
		}

		for _, ev := range events {
			switch ev.Fd {
			case stopFD:
				return
			case d.listenFD:
				d.acceptLoopInternal()
			default:
				d.driveEvent(ev)
			}
		}
	}
}

func (d *Daemon) acceptLoopInternal() {
	for {
		c, fd, ok, drained := d.acceptOne(false)
		if drained {
			return
		}
		if !ok {
			continue
		}
		if err := d.pollerP.Add(fd); err != nil {
			d.closeConn(fd, TerminatedWithError)
			continue
		}
		c.SetExternalMode(false)
	}
}

func (d *Daemon) driveEvent(ev poller.Event) {
	d.connMu.RLock()
	c, ok := d.conns[ev.Fd]
	d.connMu.RUnlock()
	if !ok || c.Suspended() {
		return
	}

	c.Advance()

	if c.State() == connfsm.Closed {
		d.closeConn(ev.Fd, terminationCodeFor(c))
		return
	}
	d.pollerP.Modify(ev.Fd, wantsWrite(c.State()))
}
