package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/linkup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkup/internal/logger"
)

// Reload re-reads the local state file right away instead of waiting for the
// watcher. Only the local server registers it.
func Reload(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.ReloadState(); err != nil {
			d.Logger.Warn("manual state reload failed",
				logger.String("remote_ip", r.RemoteAddr),
				logger.Error(err))
			http.Error(w, "state reload failed: "+err.Error(), http.StatusInternalServerError)
			return
		}

		d.Logger.Info("manual state reload triggered via endpoint",
			logger.String("remote_ip", r.RemoteAddr))
		w.WriteHeader(http.StatusAccepted)
		if _, err := w.Write([]byte("state reloaded\n")); err != nil {
			d.Logger.Debug("failed to write response", logger.Error(err))
		}
	}
}
