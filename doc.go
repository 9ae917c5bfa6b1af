/*
Package mhttpd is an embeddable HTTP/1.1 protocol engine: a connection
state machine, a request parser, a reference-counted response type, and a
daemon that drives them over a raw listener socket, in the shape of
libmicrohttpd's start/stop/register_handler/queue_response API.

Quick Start

	package main

	import (
		"log"

		"github.com/searchktools/mhttpd"
		"github.com/searchktools/mhttpd/config"
	)

	func main() {
		cfg := config.New()
		cfg.Options |= config.UseInternalSelect

		handler := func(c *mhttpd.Session, chunk []byte, final bool) mhttpd.Action {
			if !final {
				return mhttpd.Yes
			}
			resp := mhttpd.CreateResponseFromBuffer([]byte("hello\n"), mhttpd.Borrow)
			mhttpd.QueueResponse(c, 200, resp)
			mhttpd.DestroyResponse(resp)
			return mhttpd.Yes
		}

		d, err := mhttpd.Start(cfg, handler, nil, nil)
		if err != nil {
			log.Fatal(err)
		}
		defer d.Stop()

		select {} // in internal-select or thread-per-connection mode the
		          // daemon runs on its own goroutines; an external-mode
		          // host would call d.GetFDSet/d.Run from its own loop
		          // instead of blocking here.
	}

Modes

The daemon runs one of three ways, selected by config.Options:

  - external mode (default): the host owns the event loop and calls
    GetFDSet/Run itself, e.g. to fold the listener into a larger
    select/poll/epoll loop the host already runs for other fds.
  - UseInternalSelect: the daemon owns a readiness-driven loop on its own
    goroutine.
  - UseThreadPerConnection: the daemon owns an accept loop and hands each
    connection to a fixed pool of blocking worker goroutines, each serving
    one connection at a time.

Modules

  - config: startup options and a live-tunable settings store
  - daemon: the event loop, connection registry, and accept path
  - router: URI-prefix handler dispatch
  - response: reference-counted response bodies
  - internal/connfsm: the per-connection HTTP/1.1 state machine
  - internal/reqparser: the request-line/header/body parser
  - internal/headers: the header/cookie/query/form value store
  - transport: the plaintext and TLS byte-transport implementations
  - internal/mempool, internal/bytepool, internal/pools: per-connection
    and pooled allocation
  - internal/poller, internal/wpool: readiness multiplexing and the
    thread-per-connection worker pool
  - internal/observability: per-handler request tracing and bottleneck
    detection
*/
package mhttpd
