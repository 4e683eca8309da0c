package logging

import (
	"net/http"
	"time"
)

// Transport wraps an http.RoundTripper and logs every request it carries.
type Transport struct {
	Base http.RoundTripper
}

// NewTransport returns a logging Transport around base (http.DefaultTransport
// when nil).
func NewTransport(base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		HTTPRequestContext(req.Context(), req.Method, req.URL.String(), 0, duration, "error", err.Error())
		return nil, err
	}
	HTTPRequestContext(req.Context(), req.Method, req.URL.String(), resp.StatusCode, duration)
	return resp, nil
}
