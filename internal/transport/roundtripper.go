package transport

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

var statusHints = map[int]string{
	http.StatusBadRequest:          "bad request, check the submitted fields",
	http.StatusUnauthorized:        "unauthorized, check credentials",
	http.StatusNotFound:            "resource not found, check the request URL",
	http.StatusMethodNotAllowed:    "method not allowed, check that the endpoint supports it",
	http.StatusInternalServerError: "internal server error, try again later",
}

type loggingTransport struct {
	next http.RoundTripper
	log  zerolog.Logger
}

// NewLoggingTransport logs each request and its response or failure.
func NewLoggingTransport(next http.RoundTripper, log zerolog.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{next: next, log: log}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.log.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("API request")

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.log.Error().
			Err(err).
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Dur("duration", time.Since(start)).
			Msg("API unreachable: server is not responding")
		return nil, err
	}

	evt := t.log.Info()
	if resp.StatusCode >= 400 {
		evt = t.log.Warn()
		if hint, ok := statusHints[resp.StatusCode]; ok {
			evt = evt.Str("hint", hint)
		}
	}
	evt.Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("API response")

	return resp, nil
}
