package daemon

import (
	"syscall"
	"time"

	"github.com/searchktools/mhttpd/internal/connfsm"
	"github.com/searchktools/mhttpd/internal/poller"
)

// runThreadPerConnection watches the listener and stop pipe with the same
// readiness poller internal-select mode uses (accepting is still cheap to
// multiplex), but hands each accepted connection to internal/wpool as a
// dedicated blocking worker instead of registering it for further
// readiness events — the mode 3 split spec.md describes.
func (d *Daemon) runThreadPerConnection() {
	defer d.wg.Done()

	p, err := poller.New()
	if err != nil {
		return
	}
	defer p.Close()

	p.Add(d.listenFD)
	stopFD := int(d.stopR.Fd())
	p.Add(stopFD)

	for {
		events, err := p.Wait(1000)
		if err != nil {
			continue
		}
		for _, ev := range events {
			switch ev.Fd {
			case stopFD:
				return
			case d.listenFD:
				d.acceptForWorkers()
			}
		}
	}
}

func (d *Daemon) acceptForWorkers() {
	for {
		c, fd, ok, drained := d.acceptOne(true)
		if drained {
			return
		}
		if !ok {
			continue
		}

		setRecvTimeout(fd, d.cfg.IdleTimeout)
		c.SetExternalMode(false)

		if !d.workers.Submit(func() { d.runWorker(fd, c) }) {
			d.closeConn(fd, TerminatedWithError)
		}
	}
}

// runWorker drives one connection to completion on its own goroutine.
// Plain's blocking recv/send, paced by SO_RCVTIMEO for idle detection,
// makes a single Advance call run the whole connection; a would-block
// return without reaching Closed only happens for Secure (whose per-call
// read/write deadlines make it behave non-blocking regardless of the fd's
// own mode), so a short backoff bridges that case without busy-spinning.
func (d *Daemon) runWorker(fd int, c *connfsm.Conn) {
	for {
		c.Advance()

		if c.State() == connfsm.Closed {
			d.closeConn(fd, terminationCodeFor(c))
			return
		}

		if !c.Suspended() && c.IdleTimedOut(time.Now()) {
			c.Abort(ErrIdleTimeout)
			d.closeConn(fd, TerminatedTimeoutReached)
			return
		}

		if c.Suspended() {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		time.Sleep(2 * time.Millisecond)
	}
}

func setRecvTimeout(fd int, d time.Duration) {
	if d <= 0 {
		return
	}
	tv := syscall.NsecToTimeval(d.Nanoseconds())
	syscall.SetsockoptTimeval(fd, syscall.SOL_SOCKET, syscall.SO_RCVTIMEO, &tv)
}
