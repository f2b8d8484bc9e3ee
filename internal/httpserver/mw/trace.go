package mw

import (
	"context"
	"net/http"
)

// Trace is filled in by the proxy handler so the access log can name the
// session and the upstream of a request.
type Trace struct {
	Session  string
	Upstream string
}

type traceKey struct{}

func withTrace(r *http.Request) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), traceKey{}, &Trace{}))
}

func trace(r *http.Request) *Trace {
	if t, ok := r.Context().Value(traceKey{}).(*Trace); ok {
		return t
	}
	return &Trace{}
}

// SetTrace records the routing outcome of r. Without the Log middleware it
// is a no-op.
func SetTrace(r *http.Request, session, upstream string) {
	t := trace(r)
	t.Session = session
	t.Upstream = upstream
}
