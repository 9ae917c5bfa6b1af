package daemon

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/searchktools/mhttpd/config"
	"github.com/searchktools/mhttpd/router"
)

// TestStressManyConcurrentConnections drives a large number of concurrent
// short-lived connections through internal-select mode and checks every
// one gets the expected body back, exercising the connection pool and
// idle reaper under real concurrency rather than a single request.
func TestStressManyConcurrentConnections(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	const clients = 200

	reg := router.New()
	reg.Register("", helloHandler)

	d, err := Start(&config.Config{
		Options:     config.UseIPv4 | config.UseInternalSelect,
		Port:        0,
		IdleTimeout: 2 * time.Second,
		ArenaSize:   16 * 1024,
	}, reg, nil, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	addr, err := d.Addr()
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}

	var wg sync.WaitGroup
	failures := make(chan string, clients)

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := doGet(t, addr)
			if !bytes.Contains(body, []byte("hello")) {
				failures <- string(body)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("stress run did not complete in time")
	}

	close(failures)
	for f := range failures {
		t.Errorf("client got unexpected response: %q", f)
	}

	stats := d.Stats()
	if stats.LiveConnections != 0 {
		t.Errorf("expected every connection to be closed after the run, got %d live", stats.LiveConnections)
	}
}
