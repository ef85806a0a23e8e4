package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-cleanhttp"
)

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes int64 = 10 << 20

// ErrBodyTooLarge is returned instead of a truncated body.
var ErrBodyTooLarge = errors.New("response body too large")

// HTTPTransport sends requests over HTTP/1.1 with a pooled client.
//
// The client has no global timeout: every call is bounded by its context,
// which the caller derives from the call descriptor.
type HTTPTransport struct {
	client       *http.Client
	scheme       string
	maxBodyBytes int64
}

// NewHTTPTransport creates a transport using a pooled cleanhttp client.
// scheme defaults to "http".
func NewHTTPTransport(scheme string) *HTTPTransport {
	return NewHTTPTransportWithClient(cleanhttp.DefaultPooledClient(), scheme)
}

// NewHTTPTransportWithClient wraps an existing client, e.g. one with TLS settings.
func NewHTTPTransportWithClient(client *http.Client, scheme string) *HTTPTransport {
	if scheme == "" {
		scheme = "http"
	}
	return &HTTPTransport{client: client, scheme: scheme, maxBodyBytes: DefaultMaxBodyBytes}
}

// Do performs exactly one request. No retries, no redirects beyond what the
// underlying client follows.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	u := url.URL{
		Scheme: t.scheme,
		Host:   req.Addr,
		Path:   req.Path,
	}
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	// The path is already escaped; keep it verbatim on the wire.
	u.RawPath = req.Path
	if unescaped, err := url.PathUnescape(req.Path); err == nil {
		u.Path = unescaped
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > t.maxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, t.maxBodyBytes)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
	}, nil
}
