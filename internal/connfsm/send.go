package connfsm

import (
	"strconv"
	"strings"

	"github.com/searchktools/mhttpd/internal/headers"
	"github.com/searchktools/mhttpd/response"
	"github.com/searchktools/mhttpd/transport"
)

// sendHeadersStep serializes the status line and header block for the
// queued response on first entry, then drains it. Returns false only when
// exiting because the transport would block.
func (c *Conn) sendHeadersStep() bool {
	if c.sendHeader == nil {
		c.sendHeader = c.buildStatusAndHeaders()
	}

	for c.sendHeaderOff < len(c.sendHeader) {
		n, err := c.Transport.Send(c.sendHeader[c.sendHeaderOff:])
		c.sendHeaderOff += n
		if err != nil {
			if err == transport.ErrWouldBlock {
				return false
			}
			c.fail(err)
			return true
		}
	}

	c.state = SendBody
	return true
}

func (c *Conn) buildStatusAndHeaders() []byte {
	status := c.resp.Status
	if status == 0 {
		status = 200
	}

	var b []byte
	b = append(b, "HTTP/1.1 "...)
	b = strconv.AppendInt(b, int64(status), 10)
	b = append(b, ' ')
	b = append(b, statusText(status)...)
	b = append(b, "\r\n"...)

	c.keepAlive = c.calcKeepAlive()

	c.resp.Headers.Iterate(headers.ResponseHeader, func(_ headers.Kind, key, value string) bool {
		if isEngineControlledHeader(key) {
			return true
		}
		b = append(b, key...)
		b = append(b, ": "...)
		b = append(b, value...)
		b = append(b, "\r\n"...)
		return true
	})

	if c.resp.Size() == response.Unknown {
		b = append(b, "Transfer-Encoding: chunked\r\n"...)
	} else {
		// Content-Length is always derived from the response body itself,
		// never taken from a handler-set header, so framing can't be lied
		// about by an out-of-sync header value.
		b = append(b, "Content-Length: "...)
		b = strconv.AppendInt(b, c.resp.Size(), 10)
		b = append(b, "\r\n"...)
	}

	if c.keepAlive {
		b = append(b, "Connection: keep-alive\r\n"...)
	} else {
		b = append(b, "Connection: close\r\n"...)
	}

	b = append(b, "\r\n"...)
	return b
}

func isEngineControlledHeader(key string) bool {
	switch strings.ToLower(key) {
	case "connection", "content-length", "transfer-encoding":
		return true
	default:
		return false
	}
}

func (c *Conn) calcKeepAlive() bool {
	if c.err != nil {
		return false
	}
	if c.parser.Request.Close {
		return false
	}

	def := c.parser.Request.Version == "HTTP/1.1"
	if v, ok := c.parser.Request.Headers.LookupFirst(headers.Header, "Connection"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "close":
			def = false
		case "keep-alive":
			def = true
		}
	}
	if v, ok := c.resp.Headers.LookupFirst(headers.ResponseHeader, "Connection"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "close":
			def = false
		case "keep-alive":
			def = true
		}
	}
	return def
}

// sendBodyStep drains the queued response's body, chunk-framing it when the
// body size is unknown up front.
func (c *Conn) sendBodyStep() bool {
	if c.resp.IsCallback() {
		return c.sendCallbackBody()
	}
	return c.sendBufferedBody()
}

func (c *Conn) sendBufferedBody() bool {
	buf := c.resp.Buffer()
	for c.bodyPos < int64(len(buf)) {
		n, err := c.Transport.Send(buf[c.bodyPos:])
		c.bodyPos += int64(n)
		if err != nil {
			if err == transport.ErrWouldBlock {
				return false
			}
			c.fail(err)
			return true
		}
	}
	c.state = Done
	return true
}

func (c *Conn) sendCallbackBody() bool {
	if c.resp.Size() == response.Unknown {
		return c.sendChunkedCallbackBody()
	}
	return c.sendKnownLengthCallbackBody()
}

// sendKnownLengthCallbackBody streams a callback body whose total size was
// declared up front, framed by the Content-Length header rather than
// chunked encoding.
func (c *Conn) sendKnownLengthCallbackBody() bool {
	scratch := c.bytePool.Get(8192)
	defer c.bytePool.Put(scratch)

	for {
		if len(c.sendHeader) > 0 && c.sendHeaderOff < len(c.sendHeader) {
			if !c.flushChunkFrame() {
				return false
			}
			continue
		}

		if c.bodyPos >= c.resp.Size() {
			c.state = Done
			return true
		}

		n, done := c.resp.Read(c.bodyPos, scratch)
		if n < 0 {
			c.fail(errCallbackAborted)
			return true
		}
		if n == 0 && !done {
			if c.externalMode {
				c.fail(ErrBusyWaitCallback)
				return true
			}
			return false
		}

		c.bodyPos += int64(n)
		c.sendHeader = append([]byte(nil), scratch[:n]...)
		c.sendHeaderOff = 0
		if !c.flushChunkFrame() {
			return false
		}

		if done {
			c.sendHeader = nil
			c.sendHeaderOff = 0
			c.state = Done
			return true
		}
	}
}

// sendChunkedCallbackBody streams a callback body of unknown total size,
// framing each pulled chunk with hex-length/CRLF envelopes.
func (c *Conn) sendChunkedCallbackBody() bool {
	scratch := c.bytePool.Get(8192)
	defer c.bytePool.Put(scratch)

	for {
		if len(c.sendHeader) > 0 && c.sendHeaderOff < len(c.sendHeader) {
			// draining a previously-built chunk frame that didn't fully
			// flush last call
			if !c.flushChunkFrame() {
				return false
			}
			continue
		}

		n, done := c.resp.Read(c.bodyPos, scratch)
		if n < 0 {
			c.fail(errCallbackAborted)
			return true
		}
		if n == 0 && !done {
			if c.externalMode {
				c.fail(ErrBusyWaitCallback)
				return true
			}
			return false
		}
		if n == 0 && done {
			// nothing left to frame; sendFooters emits the terminating chunk
			c.state = Footers
			c.sendHeader = nil
			c.sendHeaderOff = 0
			return true
		}

		c.bodyPos += int64(n)
		c.sendHeader = formatChunk(scratch[:n])
		c.sendHeaderOff = 0
		if !c.flushChunkFrame() {
			return false
		}

		if done {
			c.state = Footers
			c.sendHeader = nil
			c.sendHeaderOff = 0
			return true
		}
	}
}

var errCallbackAborted = &fatalErr{"connfsm: callback response reader aborted"}

type fatalErr struct{ msg string }

func (e *fatalErr) Error() string { return e.msg }

func (c *Conn) flushChunkFrame() bool {
	for c.sendHeaderOff < len(c.sendHeader) {
		n, err := c.Transport.Send(c.sendHeader[c.sendHeaderOff:])
		c.sendHeaderOff += n
		if err != nil {
			if err == transport.ErrWouldBlock {
				return false
			}
			c.fail(err)
			return true
		}
	}
	return true
}

func formatChunk(data []byte) []byte {
	var b []byte
	b = strconv.AppendInt(b, int64(len(data)), 16)
	b = append(b, "\r\n"...)
	b = append(b, data...)
	b = append(b, "\r\n"...)
	return b
}

// sendFooters emits the terminating zero-length chunk for a chunked
// response, then transitions to Done.
func (c *Conn) sendFooters() {
	if !c.resp.IsCallback() || c.resp.Size() != response.Unknown {
		c.state = Done
		return
	}
	c.sendHeader = []byte("0\r\n\r\n")
	c.sendHeaderOff = 0
	if c.flushChunkFrame() {
		c.state = Done
	}
}

func (c *Conn) finishRequest() {
	if c.resp != nil {
		c.resp.Decref()
		c.resp = nil
	}

	if c.keepAlive && c.err == nil {
		c.Arena.ResetScratch()
		c.state = Init
		return
	}
	c.state = Closed
}

func (c *Conn) teardown() {
	if c.resp != nil {
		c.resp.Decref()
		c.resp = nil
	}
	c.Transport.Close()
}

func statusText(code int) string {
	switch code {
	case 100:
		return "Continue"
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 204:
		return "No Content"
	case 206:
		return "Partial Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 408:
		return "Request Timeout"
	case 411:
		return "Length Required"
	case 413:
		return "Payload Too Large"
	case 414:
		return "URI Too Long"
	case 431:
		return "Request Header Fields Too Large"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}
