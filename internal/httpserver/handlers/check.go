package handlers

import "net/http"

// Check is the liveness check the CLI polls after spawning the local server.
func Check(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}
