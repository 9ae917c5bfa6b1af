package daemon

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/searchktools/mhttpd/config"
	"github.com/searchktools/mhttpd/internal/connfsm"
	"github.com/searchktools/mhttpd/response"
	"github.com/searchktools/mhttpd/router"
)

func testConfig(extra config.Options) *config.Config {
	return &config.Config{
		Options:     config.UseIPv4 | extra,
		Port:        0,
		IdleTimeout: 500 * time.Millisecond,
		ArenaSize:   16 * 1024,
	}
}

func helloHandler(c *connfsm.Conn, chunk []byte, final bool) connfsm.Action {
	if !final {
		return connfsm.Yes
	}
	resp := response.FromBuffer([]byte("hello"), response.Borrow, nil)
	c.QueueResponse(resp)
	return connfsm.Yes
}

func rejectHandler(c *connfsm.Conn, chunk []byte, final bool) connfsm.Action {
	return connfsm.No
}

func doGet(t *testing.T, addr net.Addr) []byte {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	body, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return body
}

func TestExternalModeServesOneRequest(t *testing.T) {
	reg := router.New()
	reg.Register("", helloHandler)

	d, err := Start(testConfig(0), reg, nil, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	addr, err := d.Addr()
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}

	result := make(chan []byte, 1)
	go func() { result <- doGet(t, addr) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.Run()
		select {
		case body := <-result:
			if !bytes.Contains(body, []byte("hello")) {
				t.Fatalf("response missing body: %q", body)
			}
			if !bytes.Contains(body, []byte("200")) {
				t.Fatalf("response missing status: %q", body)
			}
			return
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatal("timed out waiting for response")
}

func TestExternalModeRejectingHandlerClosesConnection(t *testing.T) {
	reg := router.New()
	reg.Register("", rejectHandler)

	d, err := Start(testConfig(0), reg, nil, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	addr, err := d.Addr()
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}

	result := make(chan []byte, 1)
	go func() { result <- doGet(t, addr) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.Run()
		select {
		case body := <-result:
			if len(body) != 0 {
				t.Fatalf("expected no bytes from a rejected connection, got %q", body)
			}
			return
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatal("timed out waiting for connection to close")
}

func TestAcceptPolicyRejectsBeforeHandler(t *testing.T) {
	reg := router.New()
	reg.Register("", helloHandler)

	called := false
	policy := func(net.Addr) bool {
		called = true
		return false
	}

	d, err := Start(testConfig(0), reg, policy, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	addr, err := d.Addr()
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}

	go net.DialTimeout("tcp", addr.String(), time.Second)

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) && !called {
		d.Run()
		time.Sleep(5 * time.Millisecond)
	}

	if !called {
		t.Fatal("accept policy was never invoked")
	}

	d.connMu.RLock()
	n := len(d.conns)
	d.connMu.RUnlock()
	if n != 0 {
		t.Fatalf("expected the policy-rejected connection to never be registered, got %d live", n)
	}
}

func TestRegisterHandlerDuplicateFails(t *testing.T) {
	reg := router.New()
	reg.Register("", helloHandler)

	d, err := Start(testConfig(0), reg, nil, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	if err := d.RegisterHandler("/foo", helloHandler); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	if err := d.RegisterHandler("/foo", helloHandler); err != ErrDuplicateHandler {
		t.Fatalf("got %v, want ErrDuplicateHandler", err)
	}
	if err := d.UnregisterHandler("/foo"); err != nil {
		t.Fatalf("UnregisterHandler: %v", err)
	}
	if err := d.UnregisterHandler("/foo"); err != ErrHandlerNotFound {
		t.Fatalf("got %v, want ErrHandlerNotFound", err)
	}
}

func TestStopTerminatesRunningDaemon(t *testing.T) {
	reg := router.New()
	reg.Register("", helloHandler)

	d, err := Start(testConfig(config.UseInternalSelect), reg, nil, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := d.Stop(); err != ErrNotRunning {
		t.Fatalf("second Stop: got %v, want ErrNotRunning", err)
	}
}
