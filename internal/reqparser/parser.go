// Package reqparser implements the incremental HTTP/1.1 request parser:
// request line, headers (with obsolete line folding), and body framing
// (chunked, Content-Length, no-body, or stream-until-close), in that
// priority order. It never blocks: Feed consumes whatever prefix of its
// input it can and returns a NeedMore event when it needs another read.
package reqparser

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/searchktools/mhttpd/internal/headers"
	"github.com/searchktools/mhttpd/internal/mempool"
)

const (
	maxURLLineBytes  = 8 * 1024
	maxHeaderBytes   = 32 * 1024
	maxChunkSizeHex  = 8 // hex digits in a chunk-size line; the value is capped by maxChunkSizeByte
	maxChunkSizeByte = 1 << 30
)

// EventKind identifies what Feed produced.
type EventKind uint8

const (
	NeedMore EventKind = iota
	HeadersReady
	BodyChunk
	BodyDone
	Error
)

// Event is the result of one Feed call.
type Event struct {
	Kind  EventKind
	Chunk []byte // valid only for BodyChunk; aliases the input slice
	Err   error
}

type state uint8

const (
	stateRequestLine state = iota
	stateHeaders
	stateBodyContentLength
	stateBodyStreamUntilClose
	stateBodyDone
	stateChunkSize
	stateChunkSizeExt
	stateChunkData
	stateChunkCRLF
	stateChunkTrailer
	stateFatal
)

// Parser is the per-connection incremental request parser. It is reset and
// reused across pipelined/keep-alive requests via Reset.
type Parser struct {
	Request Request

	arena       *mempool.Pool
	st          state
	lineBuf     []byte
	headerBytes int
	lastKey     string

	remaining   int64 // bytes left to read for stateBodyContentLength
	haveCL      bool
	haveCLValue int64

	chunkTemp     [maxChunkSizeHex]byte
	chunkTempLen  int
	chunkLen      int64
	chunkReceived int
}

// New returns a ready-to-use Parser.
func New() *Parser {
	p := &Parser{}
	p.Reset()
	return p
}

// SetArena binds the connection's Arena as the source for scratch
// allocations (the partial-line accumulator). A nil arena falls back to
// ordinary Go-heap growth, for standalone use of a Parser without a Conn.
func (p *Parser) SetArena(a *mempool.Pool) {
	p.arena = a
	p.lineBuf = nil
}

// Reset prepares the parser for the next request on the same connection.
func (p *Parser) Reset() {
	p.Request.Reset()
	p.st = stateRequestLine
	// lineBuf is dropped rather than resliced to zero: its backing memory
	// came from the Arena's scratch end, released in bulk by the
	// connection between requests, so holding onto the old slice would
	// alias memory the next request's scratch allocations may reuse.
	p.lineBuf = nil
	p.headerBytes = 0
	p.lastKey = ""
	p.remaining = 0
	p.haveCL = false
	p.haveCLValue = 0
	p.chunkTempLen = 0
	p.chunkLen = 0
	p.chunkReceived = 0
}

// ensureLineBuf lazily carves the partial-line accumulator from the
// arena's scratch end on first use each request, reusing it for every
// fold within that request.
func (p *Parser) ensureLineBuf() bool {
	if p.lineBuf != nil {
		return true
	}
	return p.growLineBuf(512)
}

// growLineBuf replaces lineBuf with a scratch allocation of at least
// want bytes, copying over any bytes already accumulated. It reports
// false when the arena has no room left.
func (p *Parser) growLineBuf(want int) bool {
	if p.arena == nil {
		grown := make([]byte, len(p.lineBuf), want)
		copy(grown, p.lineBuf)
		p.lineBuf = grown
		return true
	}
	fresh, ok := p.arena.Scratch(want)
	if !ok {
		return false
	}
	n := copy(fresh, p.lineBuf)
	p.lineBuf = fresh[:n]
	return true
}

// appendLine appends b to lineBuf, growing it (capped by the arena's
// remaining scratch space) as needed.
func (p *Parser) appendLine(b []byte) bool {
	if !p.ensureLineBuf() {
		return false
	}
	need := len(p.lineBuf) + len(b)
	if need > cap(p.lineBuf) {
		newCap := cap(p.lineBuf) * 2
		if newCap == 0 {
			newCap = 512
		}
		for newCap < need {
			newCap *= 2
		}
		if !p.growLineBuf(newCap) {
			return false
		}
	}
	p.lineBuf = append(p.lineBuf, b...)
	return true
}

// Feed advances parsing with newly available bytes and returns the number
// of bytes consumed plus the resulting event. Call it again with the
// unconsumed remainder (or fresh bytes appended to it) as more data
// arrives. A body-framing decision with zero body length (or one already
// exhausted from a prior call) reports BodyDone even when data is empty.
func (p *Parser) Feed(data []byte) (consumed int, ev Event) {
	if p.st == stateBodyDone {
		return 0, Event{Kind: BodyDone}
	}

	off := 0
	for {
		switch p.st {
		case stateRequestLine, stateHeaders:
			idx := bytes.IndexByte(data[off:], '\n')
			if idx == -1 {
				if !p.appendLine(data[off:]) {
					p.st = stateFatal
					return len(data), errEvent(mempool.ErrExhausted)
				}
				if len(p.lineBuf) > maxLineBudget(p.st) {
					p.st = stateFatal
					return len(data), errEvent(lineTooLongErr(p.st))
				}
				return len(data), Event{Kind: NeedMore}
			}

			line := data[off : off+idx]
			off += idx + 1

			var full []byte
			if len(p.lineBuf) == 0 {
				full = line
			} else {
				if !p.appendLine(line) {
					p.st = stateFatal
					return off, errEvent(mempool.ErrExhausted)
				}
				full = p.lineBuf
			}
			full = trimCR(full)

			if p.st == stateRequestLine {
				if err := p.parseRequestLine(full); err != nil {
					p.st = stateFatal
					return off, errEvent(err)
				}
				p.lineBuf = p.lineBuf[:0]
				p.st = stateHeaders
				continue
			}

			// stateHeaders
			if len(full) == 0 {
				if err := p.finishHeaders(); err != nil {
					p.st = stateFatal
					return off, errEvent(err)
				}
				p.lineBuf = p.lineBuf[:0]
				return off, Event{Kind: HeadersReady}
			}

			if isFold(full) {
				if p.lastKey == "" {
					p.st = stateFatal
					return off, errEvent(ErrObsFoldWithoutHeader)
				}
				p.appendFold(full)
			} else if err := p.parseHeaderLine(full); err != nil {
				p.st = stateFatal
				return off, errEvent(err)
			}

			p.headerBytes += len(full)
			if p.headerBytes > maxHeaderBytes {
				p.st = stateFatal
				return off, errEvent(ErrHeaderTooLarge)
			}
			p.lineBuf = p.lineBuf[:0]

		case stateBodyContentLength:
			avail := int64(len(data) - off)
			if avail > p.remaining {
				avail = p.remaining
			}
			chunk := data[off : off+int(avail)]
			off += int(avail)
			p.remaining -= avail
			if p.remaining == 0 {
				p.st = stateBodyDone
			}
			if len(chunk) == 0 && p.st != stateBodyDone {
				return off, Event{Kind: NeedMore}
			}
			return off, Event{Kind: BodyChunk, Chunk: chunk}

		case stateBodyStreamUntilClose:
			if off >= len(data) {
				return off, Event{Kind: NeedMore}
			}
			chunk := data[off:]
			off = len(data)
			return off, Event{Kind: BodyChunk, Chunk: chunk}

		case stateChunkSize, stateChunkSizeExt, stateChunkData, stateChunkCRLF:
			n, ev := p.feedChunk(data[off:])
			off += n
			if ev.Kind == NeedMore && p.st == stateChunkTrailer && off < len(data) {
				// the zero-length chunk was just read and its trailer
				// section follows in the same input
				continue
			}
			return off, ev

		case stateChunkTrailer:
			idx := bytes.IndexByte(data[off:], '\n')
			if idx == -1 {
				if !p.appendLine(data[off:]) {
					p.st = stateFatal
					return len(data), errEvent(mempool.ErrExhausted)
				}
				return len(data), Event{Kind: NeedMore}
			}
			line := data[off : off+idx]
			off += idx + 1
			var full []byte
			if len(p.lineBuf) == 0 {
				full = line
			} else {
				if !p.appendLine(line) {
					p.st = stateFatal
					return off, errEvent(mempool.ErrExhausted)
				}
				full = p.lineBuf
			}
			full = trimCR(full)
			p.lineBuf = p.lineBuf[:0]

			if len(full) == 0 {
				p.st = stateBodyDone
				return off, Event{Kind: BodyDone}
			}
			p.parseHeaderLine(full) // trailers merge into the same header space
			continue

		case stateBodyDone:
			return off, Event{Kind: BodyDone}

		case stateFatal:
			return len(data), Event{Kind: NeedMore}
		}

		if off >= len(data) {
			return off, Event{Kind: NeedMore}
		}
	}
}

func errEvent(err error) Event { return Event{Kind: Error, Err: err} }

func maxLineBudget(st state) int {
	if st == stateRequestLine {
		return maxURLLineBytes
	}
	return maxHeaderBytes
}

func lineTooLongErr(st state) error {
	if st == stateRequestLine {
		return ErrURLTooLong
	}
	return ErrHeaderTooLarge
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}

func isFold(line []byte) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

// parseRequestLine splits "METHOD URL VERSION" and validates the method
// token and version per spec: URL > 8KiB or version outside
// {HTTP/1.0, HTTP/1.1} are rejected.
func (p *Parser) parseRequestLine(line []byte) error {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return ErrBadRequestLine
	}
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 == -1 {
		return ErrBadRequestLine
	}

	method := string(line[:sp1])
	url := string(rest[:sp2])
	version := string(rest[sp2+1:])

	if !isValidMethodToken(method) {
		return ErrBadMethod
	}
	if len(url) > maxURLLineBytes {
		return ErrURLTooLong
	}
	if version != "HTTP/1.1" && version != "HTTP/1.0" {
		return ErrUnsupportedVersion
	}

	p.Request.Method = method
	p.Request.URL = url
	p.Request.Version = version

	if qi := strings.IndexByte(url, '?'); qi != -1 {
		p.Request.Path = url[:qi]
		parseURLEncodedInto(&p.Request.GetArgs, headers.GetArgument, url[qi+1:])
	} else {
		p.Request.Path = url
	}

	return nil
}

func isValidMethodToken(m string) bool {
	if m == "" {
		return false
	}
	for i := 0; i < len(m); i++ {
		if !isTokenChar(m[i]) {
			return false
		}
	}
	return true
}

// isTokenChar reports whether c is a valid RFC 7230 "tchar".
func isTokenChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

func (p *Parser) parseHeaderLine(line []byte) error {
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return ErrBadHeaderLine
	}
	key := string(bytes.TrimSpace(line[:colon]))
	value := string(bytes.TrimSpace(line[colon+1:]))

	if err := p.Request.Headers.Append(headers.Header, key, value); err != nil {
		return err
	}
	p.lastKey = key
	return nil
}

func (p *Parser) appendFold(line []byte) {
	folded := string(bytes.TrimSpace(line))
	prev, ok := p.Request.Headers.LookupFirst(headers.Header, p.lastKey)
	if !ok {
		return
	}
	p.Request.Headers.Del(headers.Header, p.lastKey)
	p.Request.Headers.Append(headers.Header, p.lastKey, prev+" "+folded)
}

// finishHeaders decides body framing per spec priority: chunked >
// Content-Length > no-body methods > stream-until-close.
func (p *Parser) finishHeaders() error {
	if err := p.checkContentLength(); err != nil {
		return err
	}

	connVal, _ := p.Request.Headers.LookupFirst(headers.Header, "Connection")
	if strings.EqualFold(strings.TrimSpace(connVal), "close") {
		p.Request.Close = true
	}

	te, hasTE := p.Request.Headers.LookupFirst(headers.Header, "Transfer-Encoding")
	if hasTE && lastToken(te) == "chunked" {
		p.Request.Chunked = true
		p.st = stateChunkSize
		return nil
	}

	if p.haveCL {
		p.Request.ContentLength = p.haveCLValue
		p.remaining = p.haveCLValue
		if p.remaining == 0 {
			p.st = stateBodyDone
		} else {
			p.st = stateBodyContentLength
		}
		return nil
	}

	switch p.Request.Method {
	case "GET", "HEAD", "DELETE", "OPTIONS":
		p.st = stateBodyDone
	default:
		// POST/PUT/PATCH without any framing: no declared body length;
		// the handler may stream via the upload interface until the
		// peer closes. Persistent connections are impossible without
		// known framing, so this connection is forced to close.
		p.Request.Close = true
		p.st = stateBodyStreamUntilClose
	}
	return nil
}

func (p *Parser) checkContentLength() error {
	values := p.Request.Headers.LookupAll(headers.Header, "Content-Length")
	if len(values) == 0 {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(values[0]), 10, 64)
	if err != nil || n < 0 {
		return ErrBadContentLength
	}
	for _, v := range values[1:] {
		m, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || m != n {
			return ErrConflictingContentLength
		}
	}
	p.haveCL = true
	p.haveCLValue = n
	return nil
}

func lastToken(commaList string) string {
	parts := strings.Split(commaList, ",")
	return strings.ToLower(strings.TrimSpace(parts[len(parts)-1]))
}

// ShouldExpectContinue reports whether the engine must emit
// "100 Continue" before reading the body: HTTP/1.1 request carrying
// Expect: 100-continue. Per spec, HTTP/1.0 requests never trigger it.
func (p *Parser) ShouldExpectContinue() bool {
	if p.Request.Version != "HTTP/1.1" {
		return false
	}
	v, ok := p.Request.Headers.LookupFirst(headers.Header, "Expect")
	return ok && strings.EqualFold(strings.TrimSpace(v), "100-continue")
}
