package config

import (
	"sync"
	"testing"
	"time"
)

func TestSetGetRoundTrip(t *testing.T) {
	m := NewManager()
	m.Set("idle.timeout", 30)

	v, ok := m.Get("idle.timeout")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if v.(int) != 30 {
		t.Errorf("got %v, want 30", v)
	}
}

func TestGetStringDefault(t *testing.T) {
	m := NewManager()
	if got := m.GetString("missing", "fallback"); got != "fallback" {
		t.Errorf("got %q, want fallback", got)
	}
}

func TestGetIntCoercesString(t *testing.T) {
	m := NewManager()
	m.Set("port", "9090")
	if got := m.GetInt("port"); got != 9090 {
		t.Errorf("got %d, want 9090", got)
	}
}

func TestGetBoolCoercesVariants(t *testing.T) {
	m := NewManager()
	m.Set("a", "yes")
	m.Set("b", 1)
	m.Set("c", false)

	if !m.GetBool("a") {
		t.Error("expected \"yes\" to be true")
	}
	if !m.GetBool("b") {
		t.Error("expected 1 to be true")
	}
	if m.GetBool("c") {
		t.Error("expected false to be false")
	}
}

func TestGetDurationParsesString(t *testing.T) {
	m := NewManager()
	m.Set("timeout", "45s")
	if got := m.GetDuration("timeout"); got != 45*time.Second {
		t.Errorf("got %v, want 45s", got)
	}
}

func TestWatchFiresOnSet(t *testing.T) {
	m := NewManager()

	var wg sync.WaitGroup
	wg.Add(1)
	var gotKey string
	var gotVal interface{}

	m.Watch("idle.timeout", func(key string, val interface{}) {
		gotKey = key
		gotVal = val
		wg.Done()
	})

	m.Set("idle.timeout", 15)
	wg.Wait()

	if gotKey != "idle.timeout" || gotVal.(int) != 15 {
		t.Errorf("watcher got (%q, %v)", gotKey, gotVal)
	}
}

func TestDeleteAndClear(t *testing.T) {
	m := NewManager()
	m.Set("a", 1)
	m.Set("b", 2)

	m.Delete("a")
	if _, ok := m.Get("a"); ok {
		t.Error("expected a to be deleted")
	}

	m.Clear()
	if len(m.GetAll()) != 0 {
		t.Error("expected empty store after Clear")
	}
}
