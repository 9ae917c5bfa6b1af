package mhttpd

import (
	"errors"

	"github.com/searchktools/mhttpd/internal/bytepool"
	"github.com/searchktools/mhttpd/response"
)

// ErrResponseAlreadyQueued is returned by QueueResponse when a response
// has already been queued for the current request.
var ErrResponseAlreadyQueued = errors.New("mhttpd: response already queued")

// Response is a reusable, reference-counted body+headers object built by
// CreateResponseFromBuffer/CreateResponseFromCallback and attached to a
// Session with QueueResponse.
type Response = response.Response

// BodyReader streams a callback-sourced Response body. See
// response.Reader for the exact contract on return values.
type BodyReader = response.Reader

// Ownership controls what a buffer-sourced Response does with its data
// once every connection it was queued on has released it. Exactly one of
// the three modes applies to a given buffer.
type Ownership = response.Ownership

const (
	// Borrow: the caller retains ownership of data; the Response only
	// reads it, and the caller must not mutate or free it before the
	// response has been fully sent.
	Borrow = response.Borrow
	// CopyOnCreate: the buffer is copied into pool-owned memory
	// immediately, so the caller may reuse or free data right away.
	CopyOnCreate = response.CopyOnCreate
	// FreeOnDestroy: the Response takes ownership of data and returns it
	// to the shared byte pool once its refcount reaches zero. The caller
	// must not touch data again after this call.
	FreeOnDestroy = response.FreeOnDestroy
)

// Unknown marks a callback Response whose total size isn't known ahead
// of time; the body is sent chunked instead of with Content-Length.
const Unknown = response.Unknown

// responsePool backs CopyOnCreate/FreeOnDestroy buffers so their memory is
// recycled instead of freed to the Go heap on every response.
var responsePool = bytepool.New()

// CreateResponseFromBuffer builds a Response over a contiguous, already
// fully-formed body. ownership picks one of Borrow (caller keeps data and
// must not touch it until the response is sent), CopyOnCreate (data is
// copied into pool-owned memory immediately, so the caller may reuse data
// right away), or FreeOnDestroy (the Response takes ownership of data and
// returns it to the pool once done).
func CreateResponseFromBuffer(data []byte, ownership Ownership) *Response {
	return response.FromBuffer(data, ownership, responsePool)
}

// CreateResponseFromCallback builds a Response whose body is produced on
// demand by reader, up to size bytes (or Unknown for a chunked body of
// unbounded length). free, if non-nil, runs exactly once when the
// Response's refcount reaches zero.
func CreateResponseFromCallback(size int64, reader BodyReader, free func()) *Response {
	return response.FromCallback(size, reader, free)
}

// AddResponseHeader appends a header to be sent with r.
func AddResponseHeader(r *Response, key, value string) error {
	return r.AddHeader(key, value)
}

// DelResponseHeader removes every header named key from r, returning the
// number removed.
func DelResponseHeader(r *Response, key string) int {
	return r.DelHeader(key)
}

// DestroyResponse drops the caller's reference to r. Once every
// connection that queued r has also released it, its body's backing
// memory is freed.
func DestroyResponse(r *Response) {
	r.Decref()
}

// QueueResponse attaches status and r to s so the FSM serializes it as
// the reply to the current request. Fails with ErrResponseAlreadyQueued
// if a response has already been queued for this request; the caller
// keeps ownership of r either way and should DestroyResponse it once
// done.
func QueueResponse(s *Session, status int, r *Response) error {
	if s.ResponseQueued() {
		return ErrResponseAlreadyQueued
	}
	r.Status = status
	r.Incref()
	s.QueueResponse(r)
	return nil
}
