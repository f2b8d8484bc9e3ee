package mw

import (
	"net/http"

	"github.com/MrSnakeDoc/linkup/internal/domain"
)

// CORS adds the allow-all headers to every response and answers preflight
// requests itself.
func CORS() func(http.Handler) http.Handler {
	headers := domain.CORSHeaders()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range headers {
				w.Header()[k] = v
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
