package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"

	"github.com/MrSnakeDoc/linkup/internal/domain"
	"github.com/MrSnakeDoc/linkup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkup/internal/httpserver/mw"
	"github.com/MrSnakeDoc/linkup/internal/logger"
)

type routeKey struct{}

// route is what the proxy handler decided for one request.
type route struct {
	session string
	host    string
	dest    domain.Destination
}

// Proxy forwards every request that is not a linkup endpoint to the service
// its session routes it to.
func Proxy(d deps.Deps) http.HandlerFunc {
	cors := domain.CORSHeaders()

	rp := &httputil.ReverseProxy{
		Transport: d.Transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			rt := pr.In.Context().Value(routeKey{}).(route)

			out := *rt.dest.URL
			out.RawQuery = pr.In.URL.RawQuery
			pr.Out.URL = &out
			pr.Out.Host = ""

			pr.SetXForwarded()
			if fh := pr.In.Header.Get(domain.HeaderForwardedHost); fh != "" {
				pr.Out.Header.Set(domain.HeaderForwardedHost, fh)
			}
			for k, v := range domain.UpstreamHeaders(pr.In.Header, rt.session, rt.host, rt.dest) {
				pr.Out.Header[k] = v
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			for k, v := range cors {
				resp.Header[k] = v
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, context.Canceled) {
				// client went away
				return
			}
			d.Logger.Warn("upstream request failed",
				logger.String("host", r.Host),
				logger.String("path", r.URL.Path),
				logger.Error(err))
			http.Error(w, "Failed to proxy request - are all your servers started? "+err.Error(), http.StatusBadGateway)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := d.Sessions.RequestSession(r.Context(), r.Host, r.Header)
		if err != nil {
			writeError(w, r, d, err)
			return
		}

		host := domain.StripSession(r.Host, sess.Name)
		dest, err := domain.DispatchRequest(sess, domain.Request{
			Host:   host,
			Path:   r.URL.EscapedPath(),
			Header: r.Header,
		}, d.CurrentTargets())
		if err != nil {
			writeError(w, r, d, err)
			return
		}

		mw.SetTrace(r, sess.Name, dest.URL.String())
		ctx := context.WithValue(r.Context(), routeKey{}, route{session: sess.Name, host: r.Host, dest: dest})
		rp.ServeHTTP(w, r.WithContext(ctx))
	}
}
