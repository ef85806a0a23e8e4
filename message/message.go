// Package message defines the values exchanged between a caller and a remote
// dependency.
//
// A CallDescriptor describes one call; the client turns it into a network
// request against a selected instance and returns a Response. Callers above
// the circuit breaker only ever see a Result, which tags the response as a
// real answer or a degraded one.
package message

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"mini-call/codec"
)

// ErrMalformedDescriptor marks a programming error in building a call.
// Such calls are rejected before reaching the breaker and are never counted.
var ErrMalformedDescriptor = errors.New("malformed call descriptor")

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// ValidMethod reports whether m is a supported HTTP method in canonical
// upper case. Methods are case-sensitive on the wire: "get" is not GET.
func ValidMethod(m string) bool {
	return allowedMethods[m]
}

// CallDescriptor describes a single remote call.
//
//   - Dependency:   logical service name, e.g. "billing-service"
//   - PathTemplate: path with {name} placeholders, e.g. "/billing-api/payment/{cardNo}"
//   - PathParams:   values substituted into the template (URL-escaped)
//   - Timeout:      hard upper bound on the network call
type CallDescriptor struct {
	Dependency   string
	Method       string
	PathTemplate string
	PathParams   map[string]string
	Query        url.Values
	Header       http.Header
	Body         []byte
	Timeout      time.Duration
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedDescriptor, fmt.Sprintf(format, args...))
}

// Validate checks everything that can be checked without the network.
// A zero Timeout is accepted here; the client applies its default.
func (d *CallDescriptor) Validate() error {
	if d == nil {
		return malformed("nil descriptor")
	}
	if d.Dependency == "" {
		return malformed("empty dependency")
	}
	if !ValidMethod(d.Method) {
		return malformed("unsupported method %q", d.Method)
	}
	if !strings.HasPrefix(d.PathTemplate, "/") {
		return malformed("path template %q must start with /", d.PathTemplate)
	}
	if d.Timeout < 0 {
		return malformed("negative timeout %s", d.Timeout)
	}
	_, err := d.Path()
	return err
}

// Path substitutes every {name} placeholder. Missing parameters and
// parameters the template does not use are both errors.
func (d *CallDescriptor) Path() (string, error) {
	used := make(map[string]bool, len(d.PathParams))
	var missing []string

	path := placeholder.ReplaceAllStringFunc(d.PathTemplate, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := d.PathParams[name]
		if !ok || v == "" {
			missing = append(missing, name)
			return m
		}
		used[name] = true
		return url.PathEscape(v)
	})
	if len(missing) > 0 {
		return "", malformed("missing path parameters %v for %s", missing, d.PathTemplate)
	}
	for name := range d.PathParams {
		if !used[name] {
			return "", malformed("unknown path parameter %q for %s", name, d.PathTemplate)
		}
	}
	if strings.ContainsAny(path, "{}") {
		return "", malformed("unbalanced braces in %s", d.PathTemplate)
	}
	return path, nil
}

// BreakerKey identifies one circuit breaker: who is calling which dependency.
type BreakerKey struct {
	Caller     string
	Dependency string
}

func (k BreakerKey) String() string {
	return k.Caller + "->" + k.Dependency
}

// Response is the raw answer of a remote instance, or a synthesized one.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Instance   string // host:port that answered, empty if synthesized
}

// Text returns the body as a string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// NewTextResponse synthesizes a plain-text response.
func NewTextResponse(status int, body string) *Response {
	h := make(http.Header)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return &Response{StatusCode: status, Header: h, Body: []byte(body)}
}

// ResultKind tags a Result.
type ResultKind int

const (
	// Success means the dependency answered with a 2xx response.
	Success ResultKind = iota
	// Degraded means the response comes from a fallback or was synthesized.
	Degraded
)

func (k ResultKind) String() string {
	switch k {
	case Success:
		return "success"
	case Degraded:
		return "degraded"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Result is what the caller-facing API returns instead of an error.
// Response is never nil. Cause is set on Degraded results.
type Result struct {
	Kind     ResultKind
	Response *Response
	Cause    error
}

// OK reports whether the result came from the dependency itself.
func (r Result) OK() bool {
	return r.Kind == Success
}

// Decode unmarshals the body with the codec matching its Content-Type.
func (r *Response) Decode(v any) error {
	if r == nil {
		return fmt.Errorf("decode: nil response")
	}
	return codec.ForContentType(r.Header.Get("Content-Type")).Decode(r.Body, v)
}
