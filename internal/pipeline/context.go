package pipeline

import (
	"io"
	"net"
	"net/http"
	"strings"
)

// bufferBody reads the inbound body into memory once (§3, §9): the body
// length is itself a feature (§4.3 request_body_size), and every
// downstream stage that wants the body reuses these bytes instead of
// re-reading the request.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// clientIP extracts the request's client IP, preferring a forwarded
// header (chi's RealIP middleware normalizes RemoteAddr from this
// already when mounted; this is a defensive fallback in its absence),
// same pattern as the teacher's middleware.clientIP.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
