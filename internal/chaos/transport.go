package chaos

import (
	"fmt"
	"net/http"
)

// Transport wraps an http.RoundTripper and injects delays and drops into
// outbound requests.
type Transport struct {
	Base  http.RoundTripper
	Chaos *Chaos
}

// NewTransport wraps base; a nil base uses http.DefaultTransport.
func NewTransport(base http.RoundTripper, c *Chaos) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Chaos: c}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Host
	op := req.Method + " " + req.URL.Path

	if err := t.Chaos.MaybeDelay(req.Context(), host, op); err != nil {
		return nil, err
	}
	if t.Chaos.MaybeDrop(host, op) {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, ErrDropped)
	}
	return t.Base.RoundTrip(req)
}

// Client returns an http.Client using the chaos transport.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}
