// Command mhttpd-example runs a minimal daemon in internal-select mode,
// serving a handful of routes to demonstrate the public mhttpd API.
package main

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/searchktools/mhttpd"
	"github.com/searchktools/mhttpd/config"
)

func main() {
	cfg := config.New()
	cfg.Options |= config.UseInternalSelect

	notify := func(s *mhttpd.Session, code mhttpd.TerminationCode) {
		if cfg.Options.Has(config.UseDebug) {
			log.Printf("connection terminated: %s", code)
		}
	}

	d, err := mhttpd.Start(cfg, rootHandler, nil, notify)
	if err != nil {
		log.Fatalf("mhttpd.Start: %v", err)
	}

	if err := d.RegisterHandler("/api/status", statusHandler); err != nil {
		log.Fatalf("RegisterHandler: %v", err)
	}
	if err := d.RegisterHandler("/api/echo", echoHandler); err != nil {
		log.Fatalf("RegisterHandler: %v", err)
	}

	log.Printf("🚀 mhttpd example listening on port %d [%s]", cfg.Port, cfg.Env)

	awaitSignal(d)
}

func awaitSignal(d *mhttpd.Daemon) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("signal received: %v, shutting down", sig)

	if err := d.Stop(); err != nil {
		log.Printf("Stop: %v", err)
	}
}

// rootHandler is the default handler: it serves "/" directly and answers
// everything else with 404, since no other prefix claimed it.
func rootHandler(c *mhttpd.Session, chunk []byte, final bool) mhttpd.Action {
	if !final {
		return mhttpd.Yes
	}

	status, body := 404, []byte("not found\n")
	if c.Request().Path == "/" {
		status, body = 200, []byte("Welcome to mhttpd\n")
	}

	resp := mhttpd.CreateResponseFromBuffer(body, mhttpd.Borrow)
	mhttpd.AddResponseHeader(resp, "Content-Type", "text/plain")
	err := mhttpd.QueueResponse(c, status, resp)
	mhttpd.DestroyResponse(resp)
	if err != nil {
		return mhttpd.No
	}
	return mhttpd.Yes
}

func statusHandler(c *mhttpd.Session, chunk []byte, final bool) mhttpd.Action {
	if !final {
		return mhttpd.Yes
	}
	body, err := json.Marshal(map[string]string{
		"status": "ok",
		"server": "mhttpd",
	})
	if err != nil {
		return mhttpd.No
	}
	resp := mhttpd.CreateResponseFromBuffer(body, mhttpd.FreeOnDestroy)
	mhttpd.AddResponseHeader(resp, "Content-Type", "application/json")
	qerr := mhttpd.QueueResponse(c, 200, resp)
	mhttpd.DestroyResponse(resp)
	if qerr != nil {
		return mhttpd.No
	}
	return mhttpd.Yes
}

// echoHandler accumulates the request body across successive calls in a
// per-request ClientContext, then sends it back once the request is
// complete.
func echoHandler(c *mhttpd.Session, chunk []byte, final bool) mhttpd.Action {
	buf, _ := c.ClientContext().(*strings.Builder)
	if buf == nil {
		buf = &strings.Builder{}
		c.SetClientContext(buf)
	}
	buf.Write(chunk)

	if !final {
		return mhttpd.Yes
	}

	body := []byte(buf.String())
	resp := mhttpd.CreateResponseFromBuffer(body, mhttpd.FreeOnDestroy)
	mhttpd.AddResponseHeader(resp, "Content-Type", "application/octet-stream")
	err := mhttpd.QueueResponse(c, 200, resp)
	mhttpd.DestroyResponse(resp)
	if err != nil {
		return mhttpd.No
	}
	return mhttpd.Yes
}
