package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/linkup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkup/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/linkup/internal/httpserver/mw"
)

func init() { Register("admin", Everywhere, registerAdmin) }

// registerAdmin mounts the endpoints that write sessions. They share one rate
// limiter and the optional IP and Host restrictions.
func registerAdmin(r chi.Router, d deps.Deps) {
	r.Group(func(r chi.Router) {
		r.Use(
			mw.AllowCIDRs(d.AllowedCIDRS, d.TrustProxy, d.Logger),
			mw.AllowHosts(d.AllowedHosts, d.Logger),
			mw.RateLimit(mw.RateLimitConfig{
				Burst:      d.RateBurst,
				PerMinute:  d.RatePerMin,
				MaxClients: 10000,
				TrustProxy: d.TrustProxy,
				Logger:     d.Logger,
			}),
			mw.CORS(),
			middleware.Timeout(10*time.Second),
		)

		session := handlers.Session(d)
		r.HandleFunc("/linkup", session)
		r.HandleFunc("/linkup/local-session", session)

		preview := handlers.Preview(d)
		r.HandleFunc("/preview", preview)
		r.HandleFunc("/linkup/preview-session", preview)
	})
}
