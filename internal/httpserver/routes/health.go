package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/linkup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkup/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/linkup/internal/httpserver/mw"
)

func init() { Register("health", Everywhere, registerHealth) }

func registerHealth(r chi.Router, d deps.Deps) {
	r.Get("/linkup/healthz", handlers.Healthz(d))
	r.With(mw.AllowCIDRs(d.AllowedCIDRS, d.TrustProxy, d.Logger)).Get("/linkup/readyz", handlers.Readyz(d))
}
