package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/linkup/internal/httpserver/deps"
)

type componentStatus struct {
	OK       bool   `json:"ok"`
	Backend  string `json:"backend,omitempty"`
	Sessions *int   `json:"sessions,omitempty"`
	Error    string `json:"error,omitempty"`
}

type readyzResponse struct {
	Ready      bool                       `json:"ready"`
	Components map[string]componentStatus `json:"components"`
}

// Readyz answers 503 while the session store is unreachable.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := checkStore(r.Context(), d)
		resp := readyzResponse{
			Ready:      store.OK,
			Components: map[string]componentStatus{"store": store},
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if !resp.Ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func checkStore(ctx context.Context, d deps.Deps) componentStatus {
	st := componentStatus{Backend: d.StoreName}
	if d.Sessions == nil {
		st.Error = "store not initialized"
		return st
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.Sessions.Ping(ctx); err != nil {
		st.Error = err.Error()
		return st
	}
	st.OK = true
	if list, err := d.Sessions.List(ctx); err == nil {
		n := len(list)
		st.Sessions = &n
	}
	return st
}
