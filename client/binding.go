package client

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"mini-call/message"
)

// ErrUnknownEndpoint is returned by Describe for a name missing from the table.
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// Endpoint is one declared remote operation.
type Endpoint struct {
	Dependency   string
	Method       string
	PathTemplate string
	Timeout      time.Duration
	Header       http.Header
}

// Binding maps operation names to endpoints. It is built once at startup and
// read-only afterwards, so callers name operations instead of spelling out
// paths:
//
//	b, _ := client.NewBinding(map[string]client.Endpoint{
//		"paymentByCard": {Dependency: "billing", Method: "GET", PathTemplate: "/billing-api/payment/{cardNo}"},
//	})
//	desc, _ := b.Describe("paymentByCard", map[string]string{"cardNo": "4111"})
type Binding struct {
	endpoints map[string]Endpoint
}

// NewBinding validates every endpoint and freezes the table.
func NewBinding(endpoints map[string]Endpoint) (*Binding, error) {
	b := &Binding{endpoints: make(map[string]Endpoint, len(endpoints))}
	for name, ep := range endpoints {
		switch {
		case ep.Dependency == "":
			return nil, fmt.Errorf("endpoint %s: %w: empty dependency", name, message.ErrMalformedDescriptor)
		case !message.ValidMethod(ep.Method):
			return nil, fmt.Errorf("endpoint %s: %w: unsupported method %q", name, message.ErrMalformedDescriptor, ep.Method)
		case !strings.HasPrefix(ep.PathTemplate, "/"):
			return nil, fmt.Errorf("endpoint %s: %w: path template %q must start with /", name, message.ErrMalformedDescriptor, ep.PathTemplate)
		case ep.Timeout < 0:
			return nil, fmt.Errorf("endpoint %s: %w: negative timeout", name, message.ErrMalformedDescriptor)
		}
		b.endpoints[name] = ep
	}
	return b, nil
}

// Names lists the declared operations, sorted.
func (b *Binding) Names() []string {
	out := make([]string, 0, len(b.endpoints))
	for n := range b.endpoints {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Describe builds the descriptor for one call of the named operation.
func (b *Binding) Describe(name string, params map[string]string) (*message.CallDescriptor, error) {
	ep, ok := b.endpoints[name]
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", message.ErrMalformedDescriptor, ErrUnknownEndpoint, name)
	}
	desc := &message.CallDescriptor{
		Dependency:   ep.Dependency,
		Method:       ep.Method,
		PathTemplate: ep.PathTemplate,
		PathParams:   params,
		Header:       ep.Header.Clone(),
		Timeout:      ep.Timeout,
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return desc, nil
}
