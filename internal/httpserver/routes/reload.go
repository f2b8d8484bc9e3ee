package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/linkup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkup/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/linkup/internal/httpserver/mw"
)

func init() { Register("reload", LocalOnly, registerReload) }

func registerReload(r chi.Router, d deps.Deps) {
	r.With(
		mw.AllowCIDRs(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.AllowHosts(d.AllowedHosts, d.Logger),
	).Post("/linkup/reload", handlers.Reload(d))
}
