package reqparser

import (
	"strings"
	"testing"

	"github.com/searchktools/mhttpd/internal/headers"
)

func feedAll(t *testing.T, p *Parser, input []byte) []Event {
	t.Helper()
	var events []Event
	data := input
	// A request with no body reports BodyDone on the Feed call after
	// HeadersReady, even when no data is left, so feed once more then.
	for len(data) > 0 || (len(events) > 0 && events[len(events)-1].Kind == HeadersReady) {
		n, ev := p.Feed(data)
		events = append(events, ev)
		if n == 0 && ev.Kind == NeedMore {
			break
		}
		data = data[n:]
		if ev.Kind == Error {
			break
		}
	}
	return events
}

func TestSimpleGETHeadersReady(t *testing.T) {
	p := New()
	input := []byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n")

	events := feedAll(t, p, input)

	var sawHeadersReady, sawBodyDone bool
	for _, ev := range events {
		switch ev.Kind {
		case HeadersReady:
			sawHeadersReady = true
		case BodyDone:
			sawBodyDone = true
		case Error:
			t.Fatalf("unexpected parse error: %v", ev.Err)
		}
	}

	if !sawHeadersReady {
		t.Fatal("expected HeadersReady event")
	}
	if !sawBodyDone {
		t.Fatal("expected BodyDone event for a GET with no body")
	}
	if p.Request.Method != "GET" || p.Request.Path != "/hello" {
		t.Errorf("got method=%q path=%q", p.Request.Method, p.Request.Path)
	}
}

func TestChunkedUploadYieldsChunksInOrder(t *testing.T) {
	p := New()
	input := []byte("POST /up HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nHello\r\n6\r\n World\r\n0\r\n\r\n")

	events := feedAll(t, p, input)

	var chunks []string
	var sawDone bool
	for _, ev := range events {
		switch ev.Kind {
		case BodyChunk:
			chunks = append(chunks, string(ev.Chunk))
		case BodyDone:
			sawDone = true
		case Error:
			t.Fatalf("unexpected parse error: %v", ev.Err)
		}
	}

	if len(chunks) != 2 || chunks[0] != "Hello" || chunks[1] != " World" {
		t.Fatalf("got chunks %v, want [\"Hello\" \" World\"]", chunks)
	}
	if !sawDone {
		t.Fatal("expected BodyDone after the terminating zero chunk")
	}
}

func TestOversizedHeaderBlockErrors(t *testing.T) {
	p := New()
	var b strings.Builder
	b.WriteString("GET / HTTP/1.1\r\n")
	for i := 0; i < 4000; i++ {
		b.WriteString("X-Pad: aaaaaaaaaa\r\n")
	}
	// deliberately no terminating blank line within the cap

	events := feedAll(t, p, []byte(b.String()))

	var sawError bool
	for _, ev := range events {
		if ev.Kind == Error {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("expected an Error event for a header block over the 32KiB cap")
	}
}

func TestConflictingContentLengthErrors(t *testing.T) {
	p := New()
	input := []byte("POST /x HTTP/1.1\r\nContent-Length: 5\r\nContent-Length: 6\r\n\r\nhello")

	events := feedAll(t, p, input)

	var sawError bool
	for _, ev := range events {
		if ev.Kind == Error {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("expected an Error event for conflicting Content-Length values")
	}
}

func TestObsoleteLineFoldingConcatenatesWithSpace(t *testing.T) {
	p := New()
	input := []byte("GET / HTTP/1.1\r\nX-Long: first\r\n second\r\n\r\n")

	feedAll(t, p, input)

	got, ok := p.Request.Headers.LookupFirst(headers.Header, "X-Long")
	if !ok {
		t.Fatal("expected X-Long header to be present")
	}
	if got != "first second" {
		t.Errorf("got %q, want %q", got, "first second")
	}
}

func TestPipelinedBytesAfterBodyDoneArePreserved(t *testing.T) {
	p := New()
	req1 := "GET /a HTTP/1.1\r\nHost: x\r\n\r\n"
	req2 := "GET /b HTTP/1.1\r\nHost: x\r\n\r\n"
	input := []byte(req1 + req2)

	consumedTotal := 0
	for {
		n, ev := p.Feed(input[consumedTotal:])
		consumedTotal += n
		if ev.Kind == BodyDone {
			break
		}
		if ev.Kind == Error {
			t.Fatalf("unexpected error: %v", ev.Err)
		}
	}

	if consumedTotal != len(req1) {
		t.Fatalf("consumed %d bytes, want exactly %d (leftover must be preserved byte-exactly)", consumedTotal, len(req1))
	}

	leftover := input[consumedTotal:]
	if string(leftover) != req2 {
		t.Fatalf("leftover = %q, want %q", leftover, req2)
	}
}

func TestExpect100ContinueHTTP10Ignored(t *testing.T) {
	p := New()
	input := []byte("POST /x HTTP/1.0\r\nExpect: 100-continue\r\nContent-Length: 2\r\n\r\nhi")

	feedAll(t, p, input)

	if p.ShouldExpectContinue() {
		t.Error("HTTP/1.0 request must never trigger 100-continue")
	}
}

func TestExpect100ContinueHTTP11Honored(t *testing.T) {
	p := New()
	input := []byte("POST /x HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 2\r\n\r\n")

	p.Feed(input)

	if !p.ShouldExpectContinue() {
		t.Error("HTTP/1.1 request with Expect: 100-continue should trigger it")
	}
}

func TestBadMethodTokenRejected(t *testing.T) {
	p := New()
	input := []byte("G ET / HTTP/1.1\r\n\r\n")

	_, ev := p.Feed(input)
	if ev.Kind != Error {
		t.Fatalf("got %v, want Error for a method containing a space", ev.Kind)
	}
}

func TestUnsupportedVersionRejected(t *testing.T) {
	p := New()
	input := []byte("GET / HTTP/2.0\r\n\r\n")

	_, ev := p.Feed(input)
	if ev.Kind != Error {
		t.Fatalf("got %v, want Error for an unsupported version", ev.Kind)
	}
}

func TestQueryStringPercentDecoded(t *testing.T) {
	p := New()
	input := []byte("GET /search?q=hello%20world HTTP/1.1\r\n\r\n")

	feedAll(t, p, input)

	got, ok := p.Request.GetArgs.LookupFirst(headers.GetArgument, "q")
	if !ok || got != "hello world" {
		t.Errorf("q = %q, %v; want %q, true", got, ok, "hello world")
	}
}
