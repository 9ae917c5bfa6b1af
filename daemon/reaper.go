package daemon

import "time"

// runReaper periodically closes connections idle past their deadline, in
// the shape of core/engine.go's cleanupIdleConnections ticker loop. Used
// by internal-select and thread-per-connection mode; external mode reaps
// inline at the end of each Run call instead.
func (d *Daemon) runReaper() {
	defer d.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.reapIdle()
		}
	}
}
