package headers

import "testing"

func TestLookupFirstCaseInsensitive(t *testing.T) {
	var m Map
	if err := m.Append(Header, "Content-Type", "text/plain"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{"Content-Type", "text/plain"},
		{"content-type", "text/plain"},
		{"CONTENT-TYPE", "text/plain"},
	}

	for _, tt := range tests {
		got, ok := m.LookupFirst(Header, tt.key)
		if !ok || got != tt.want {
			t.Errorf("LookupFirst(%q) = %q, %v; want %q, true", tt.key, got, ok, tt.want)
		}
	}
}

func TestAppendPreservesOriginalCase(t *testing.T) {
	var m Map
	m.Append(Header, "X-Request-Id", "abc")

	var seenKey string
	m.Iterate(Header, func(_ Kind, key, _ string) bool {
		seenKey = key
		return true
	})

	if seenKey != "X-Request-Id" {
		t.Errorf("emitted key = %q, want original case preserved", seenKey)
	}
}

func TestAppendRejectsControlBytes(t *testing.T) {
	var m Map

	if err := m.Append(Header, "X-Bad\r\n", "v"); err == nil {
		t.Error("expected error for CRLF in key")
	}
	if err := m.Append(Header, "X-Bad", "v\r\nInjected: yes"); err == nil {
		t.Error("expected error for CRLF in value")
	}
}

func TestIterationOrderIsInsertionOrder(t *testing.T) {
	var m Map
	m.Append(Header, "A", "1")
	m.Append(Header, "B", "2")
	m.Append(Header, "A", "3")

	var got []string
	m.Iterate(Header, func(_ Kind, key, value string) bool {
		got = append(got, key+"="+value)
		return true
	})

	want := []string{"A=1", "B=2", "A=3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCountRespectsKindMask(t *testing.T) {
	var m Map
	m.Append(Header, "H", "1")
	m.Append(Cookie, "C", "2")
	m.Append(GetArgument, "G", "3")

	if n := m.Count(Header | Cookie); n != 2 {
		t.Errorf("Count(Header|Cookie) = %d, want 2", n)
	}
	if n := m.Count(Header | Cookie | PostData | GetArgument); n != 3 {
		t.Errorf("Count(all) = %d, want 3", n)
	}
}

func TestDelRemovesMatchingEntriesOnly(t *testing.T) {
	var m Map
	m.Append(Header, "X", "1")
	m.Append(Cookie, "X", "2")
	m.Append(Header, "X", "3")

	removed := m.Del(Header, "x")
	if removed != 2 {
		t.Fatalf("Del removed %d entries, want 2", removed)
	}
	if n := m.Count(Header); n != 0 {
		t.Errorf("Count(Header) after Del = %d, want 0", n)
	}
	if n := m.Count(Cookie); n != 1 {
		t.Errorf("Count(Cookie) after Del = %d, want 1", n)
	}
}
