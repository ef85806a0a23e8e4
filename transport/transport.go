// Package transport issues single network requests to a chosen instance.
//
// It knows nothing about discovery or breakers: give it an address and a
// request, it returns the status code and body or the raw I/O error. The
// client layer decides what those errors mean.
package transport

import (
	"context"
	"net/http"
	"net/url"
)

// Request is one HTTP-style request addressed to host:port.
type Request struct {
	Method string
	Addr   string // host:port
	Path   string // already substituted and escaped
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is the raw answer. Any status code is a Response, not an error.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport sends a request and waits for the answer. Implementations must
// abort the in-flight call as soon as ctx is done.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}
