package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/linkup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkup/internal/httpserver/handlers"
)

func init() { Register("proxy", Fallback, registerProxy) }

// registerProxy sends everything else to the session router.
func registerProxy(r chi.Router, d deps.Deps) {
	r.Handle("/*", handlers.Proxy(d))
}
