package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/linkup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkup/internal/httpserver/handlers"
)

func init() { Register("check", Everywhere, registerCheck) }

func registerCheck(r chi.Router, _ deps.Deps) {
	r.Get("/linkup/check", handlers.Check)
	r.Get("/linkup-check", handlers.Check)
}
