package reqparser

import (
	"strings"

	"github.com/searchktools/mhttpd/internal/headers"
)

// Request is the parsed request line plus every header/query/post value
// space the daemon exposes to a handler. Cookies and POST form fields are
// populated lazily by ParseCookies/ParseForm — the parser only fills in
// Headers and GetArgs during header parsing, per spec: cookies and form
// data are parsed on demand.
type Request struct {
	Method  string
	URL     string // raw target, including query string
	Path    string // target with query string stripped
	Version string

	Headers headers.Map
	GetArgs headers.Map
	Cookies headers.Map
	Post    headers.Map

	ContentLength int64 // -1 if absent
	Chunked       bool
	Close         bool // "Connection: close" seen on request, or forced for a body without length framing

	cookiesParsed bool
	formParsed    bool
}

// Reset clears the request for reuse across pipelined/keep-alive requests
// on the same connection.
func (r *Request) Reset() {
	r.Method = ""
	r.URL = ""
	r.Path = ""
	r.Version = ""
	r.Headers.Reset()
	r.GetArgs.Reset()
	r.Cookies.Reset()
	r.Post.Reset()
	r.ContentLength = -1
	r.Chunked = false
	r.Close = false
	r.cookiesParsed = false
	r.formParsed = false
}

// ParseCookies lazily populates r.Cookies from the request's Cookie
// header(s). Safe to call more than once.
func (r *Request) ParseCookies() {
	if r.cookiesParsed {
		return
	}
	r.cookiesParsed = true

	for _, raw := range r.Headers.LookupAll(headers.Header, "Cookie") {
		for _, pair := range strings.Split(raw, ";") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			name, value, found := strings.Cut(pair, "=")
			if !found {
				continue
			}
			decoded, err := percentDecode(value)
			if err != nil {
				continue
			}
			r.Cookies.Append(headers.Cookie, strings.TrimSpace(name), decoded)
		}
	}
}

// ParseForm lazily populates r.Post from an application/x-www-form-urlencoded
// body. multipart/form-data is left to the handler, per spec.
func (r *Request) ParseForm(body []byte) {
	if r.formParsed {
		return
	}
	r.formParsed = true

	ct, _ := r.Headers.LookupFirst(headers.Header, "Content-Type")
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "application/x-www-form-urlencoded") {
		return
	}
	parseURLEncodedInto(&r.Post, headers.PostData, string(body))
}

// parseURLEncodedInto percent-decodes "key=value&key2=value2" pairs into m.
func parseURLEncodedInto(m *headers.Map, kind headers.Kind, raw string) {
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		dk, err := percentDecode(strings.ReplaceAll(key, "+", " "))
		if err != nil {
			continue
		}
		dv, err := percentDecode(strings.ReplaceAll(value, "+", " "))
		if err != nil {
			continue
		}
		m.Append(kind, dk, dv)
	}
}
