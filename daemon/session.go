package daemon

import "github.com/searchktools/mhttpd/internal/connfsm"

// Session is the public name for a Connection as seen by an access
// handler — the same *connfsm.Conn the daemon drives internally, exposed
// under the name a handler actually interacts with.
type Session = connfsm.Conn
