package mhttpd

import "github.com/searchktools/mhttpd/internal/headers"

// ValueKind selects which value space GetSessionValues/LookupSessionValue
// read from. Kinds combine by bitwise OR when iterating or counting.
type ValueKind = headers.Kind

const (
	ResponseHeaderKind ValueKind = headers.ResponseHeader
	HeaderKind         ValueKind = headers.Header
	CookieKind         ValueKind = headers.Cookie
	PostDataKind       ValueKind = headers.PostData
	GetArgumentKind    ValueKind = headers.GetArgument
)

// GetSessionValues calls iter once per (kind, key, value) stored under
// any kind set in kindMask, in insertion order, stopping early if iter
// returns false. It returns the number of entries visited.
//
// ResponseHeaderKind reads from the response queued on s, if any;
// querying it before QueueResponse visits nothing.
func GetSessionValues(s *Session, kindMask ValueKind, iter func(kind ValueKind, key, value string) bool) int {
	visited := 0
	count := func(m *headers.Map) {
		m.Iterate(kindMask, func(kind headers.Kind, key, value string) bool {
			visited++
			return iter(kind, key, value)
		})
	}

	if kindMask&headers.ResponseHeader != 0 {
		if r := s.QueuedResponse(); r != nil {
			count(&r.Headers)
		}
	}
	if kindMask&headers.Header != 0 {
		count(&s.Request().Headers)
	}
	if kindMask&headers.Cookie != 0 {
		count(&s.Request().Cookies)
	}
	if kindMask&headers.PostData != 0 {
		count(&s.Request().Post)
	}
	if kindMask&headers.GetArgument != 0 {
		count(&s.Request().GetArgs)
	}
	return visited
}

// LookupSessionValue returns the first value of the given kind stored
// under key, case-insensitively. For HeaderKind and CookieKind lookups
// this matches RFC 7230's case-insensitive field-name rule.
func LookupSessionValue(s *Session, kind ValueKind, key string) (string, bool) {
	switch kind {
	case headers.ResponseHeader:
		if r := s.QueuedResponse(); r != nil {
			return r.Headers.LookupFirst(headers.ResponseHeader, key)
		}
		return "", false
	case headers.Header:
		return s.Request().Headers.LookupFirst(headers.Header, key)
	case headers.Cookie:
		return s.Request().Cookies.LookupFirst(headers.Cookie, key)
	case headers.PostData:
		return s.Request().Post.LookupFirst(headers.PostData, key)
	case headers.GetArgument:
		return s.Request().GetArgs.LookupFirst(headers.GetArgument, key)
	default:
		return "", false
	}
}
