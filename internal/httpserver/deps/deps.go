package deps

import (
	"net/http"
	"time"

	"github.com/MrSnakeDoc/linkup/internal/domain"
	"github.com/MrSnakeDoc/linkup/internal/logger"
	"github.com/MrSnakeDoc/linkup/internal/sessions"
)

// Server modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
	TimeNow   func() time.Time // for testing, defaults to time.Now
	Mode      string           // ModeLocal or ModeRemote

	Sessions    *sessions.Store        // session storage shared by every handler
	Targets     func() domain.Targets  // current local/remote switch, read per request
	Transport   http.RoundTripper      // upstream transport, nil = http.DefaultTransport
	ReloadState func() error           // re-reads the local state file; nil on a remote server
	StoreName   string                 // "memory" | "redis", reported by readyz
	MaxBodySize int64                  // limit on session documents, 0 = 1 MiB

	AllowedHosts []string // Host headers allowed on admin endpoints
	AllowedCIDRS []string // IPs allowed on admin and health endpoints
	TrustProxy   bool     // true if running behind a trusted reverse proxy (e.g., cloudflared)
	RateBurst    int      // token bucket size per client IP on admin endpoints
	RatePerMin   int      // tokens refilled per minute
}

// CurrentTargets never returns nil.
func (d Deps) CurrentTargets() domain.Targets {
	if d.Targets == nil {
		return domain.RemoteOnly{}
	}
	if t := d.Targets(); t != nil {
		return t
	}
	return domain.RemoteOnly{}
}

func (d Deps) Now() time.Time {
	if d.TimeNow == nil {
		return time.Now()
	}
	return d.TimeNow()
}
