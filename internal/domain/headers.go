package domain

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
)

const (
	HeaderDestination   = "Linkup-Destination"
	HeaderTraceParent   = "Traceparent"
	HeaderTraceState    = "Tracestate"
	HeaderForwardedHost = "X-Forwarded-Host"
)

// UpstreamHeaders returns the headers to add to a request before it leaves
// for dest. in is left untouched.
func UpstreamHeaders(in http.Header, session, host string, dest Destination) http.Header {
	out := make(http.Header)

	if in.Get(HeaderTraceParent) == "" {
		out.Set(HeaderTraceParent, NewTraceParent())
	}

	member := TraceStateKey + "=" + session
	switch ts := in.Get(HeaderTraceState); {
	case ts == "":
		out.Set(HeaderTraceState, member)
	case !strings.Contains(ts, member):
		out.Set(HeaderTraceState, ts+","+member)
	}

	if in.Get(HeaderDestination) == "" {
		out.Set(HeaderDestination, dest.Service)
	}

	if in.Get(HeaderForwardedHost) == "" {
		out.Set(HeaderForwardedHost, StripSession(host, session))
	}

	return out
}

// NewTraceParent builds a W3C traceparent with random trace and parent ids.
func NewTraceParent() string {
	var ids [24]byte
	_, _ = rand.Read(ids[:])
	return "00-" + hex.EncodeToString(ids[:16]) + "-" + hex.EncodeToString(ids[16:]) + "-00"
}

// CORSHeaders are set on every proxied response.
func CORSHeaders() http.Header {
	return http.Header{
		"Access-Control-Allow-Methods": {"GET, POST, PUT, PATCH, DELETE, HEAD, CONNECT, TRACE, OPTIONS"},
		"Access-Control-Allow-Origin":  {"*"},
		"Access-Control-Allow-Headers": {"*"},
		"Access-Control-Max-Age":       {"86400"},
	}
}
