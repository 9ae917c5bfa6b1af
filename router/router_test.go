package router

import (
	"reflect"
	"testing"

	"github.com/searchktools/mhttpd/internal/connfsm"
)

func stubHandler(id string) connfsm.Handler {
	return func(c *connfsm.Conn, chunk []byte, final bool) connfsm.Action {
		return connfsm.Yes
	}
}

func sameHandler(a, b connfsm.Handler) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

func TestLookupPrefersLongestPrefix(t *testing.T) {
	r := New()
	apiHandler := stubHandler("api")
	apiV2Handler := stubHandler("api-v2")
	if err := r.Register("/api", apiHandler); err != nil {
		t.Fatalf("Register(/api): %v", err)
	}
	if err := r.Register("/api/v2", apiV2Handler); err != nil {
		t.Fatalf("Register(/api/v2): %v", err)
	}

	h, ok := r.Lookup("/api/v2/users")
	if !ok {
		t.Fatal("expected a match")
	}
	if !sameHandler(h, apiV2Handler) {
		t.Error("expected the longer /api/v2 prefix to win over /api")
	}
}

func TestLookupFallsBackToShorterPrefix(t *testing.T) {
	r := New()
	r.Register("/api", stubHandler("api"))
	r.Register("/api/v2", stubHandler("api-v2"))

	_, ok := r.Lookup("/api/v1/users")
	if !ok {
		t.Fatal("expected /api/v1/users to fall back to the /api handler")
	}
}

func TestLookupUsesDefaultHandlerAsTerminalFallback(t *testing.T) {
	r := New()
	r.Register("/api", stubHandler("api"))
	r.Register("", stubHandler("default"))

	_, ok := r.Lookup("/totally/unrelated")
	if !ok {
		t.Fatal("expected the default handler to catch an unmatched path")
	}
}

func TestLookupWithNoHandlersReturnsFalse(t *testing.T) {
	r := New()
	_, ok := r.Lookup("/anything")
	if ok {
		t.Fatal("expected no match when nothing is registered")
	}
}

func TestRegisterDuplicatePrefixErrors(t *testing.T) {
	r := New()
	if err := r.Register("/api", stubHandler("api")); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register("/api", stubHandler("api2")); err != ErrDuplicate {
		t.Fatalf("got %v, want ErrDuplicate", err)
	}
}

func TestRegisterDuplicateDefaultErrors(t *testing.T) {
	r := New()
	if err := r.Register("", stubHandler("default")); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register("", stubHandler("default2")); err != ErrDuplicate {
		t.Fatalf("got %v, want ErrDuplicate", err)
	}
}

func TestUnregisterRemovesPrefix(t *testing.T) {
	r := New()
	r.Register("/api", stubHandler("api"))

	if err := r.Unregister("/api"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, ok := r.Lookup("/api/x"); ok {
		t.Fatal("expected no match after unregistering the only handler")
	}
}

func TestUnregisterUnknownPrefixErrors(t *testing.T) {
	r := New()
	if err := r.Unregister("/nope"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
