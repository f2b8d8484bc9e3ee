package mw

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/linkup/internal/domain"
	"github.com/MrSnakeDoc/linkup/internal/logger"
	"github.com/MrSnakeDoc/linkup/internal/utils"
)

func passthrough(next http.Handler) http.Handler { return next }

// AllowCIDRs rejects callers whose address is outside allowed. An empty list
// lets everyone through. A list that does not parse rejects everyone, since
// the operator asked for a restriction that cannot be honoured.
func AllowCIDRs(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	set, err := utils.ParsePrefixSet(allowed)
	if err != nil {
		log.Error("allowed cidrs unusable, rejecting all admin calls", logger.Error(err))
	} else if set.Empty() {
		return passthrough
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, ok := utils.ClientAddr(r, trustProxy)
			if ok && set.Contains(addr) {
				next.ServeHTTP(w, r)
				return
			}
			log.Debug("client address rejected",
				logger.String("client_ip", utils.ClientIP(r, trustProxy)),
				logger.String("remote_addr", r.RemoteAddr),
				logger.String("path", r.URL.Path))
			http.Error(w, "client address not allowed", http.StatusForbidden)
		})
	}
}

// AllowHosts rejects requests whose Host is not in allowed. Entries are exact
// hosts or "*.suffix" patterns. A host of the form <session>.<entry> is
// accepted too, so a session subdomain reaches the edge it lives on. An empty
// list lets everything through.
func AllowHosts(allowed []string, log logger.Logger) func(http.Handler) http.Handler {
	patterns := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if a = canonicalHost(a); a != "" {
			patterns = append(patterns, a)
		}
	}
	if len(patterns) == 0 {
		return passthrough
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := canonicalHost(r.Host)
			for _, p := range patterns {
				if hostAllowed(host, p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			log.Debug("host rejected",
				logger.String("host", r.Host),
				logger.String("path", r.URL.Path))
			http.Error(w, "host "+r.Host+" is not allowed", http.StatusForbidden)
		})
	}
}

func hostAllowed(host, pattern string) bool {
	if host == "" {
		return false
	}
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return strings.HasSuffix(host, "."+suffix)
	}
	if host == pattern {
		return true
	}
	label, rest, ok := strings.Cut(host, ".")
	if !ok || rest != pattern {
		return false
	}
	_, valid := domain.NormalizeSessionName(label)
	return valid
}

// canonicalHost lowercases h and drops its port and any trailing dot.
func canonicalHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	return strings.TrimSuffix(strings.Trim(h, "[]"), ".")
}
