package routes

import (
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/linkup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkup/internal/logger"
)

// Scope decides on which servers, and when, a route group is mounted.
type Scope int

const (
	// Everywhere groups are mounted on local and remote servers.
	Everywhere Scope = iota
	// LocalOnly groups need the local state file and are skipped on a remote
	// server or when no reload hook is wired.
	LocalOnly
	// Fallback groups catch whatever no other group matched. They are mounted
	// last whatever their registration order.
	Fallback
)

// Registrar mounts one group of routes.
type Registrar func(r chi.Router, d deps.Deps)

type group struct {
	name  string
	scope Scope
	reg   Registrar
}

var groups []group

// Register adds a route group. Groups register themselves from init.
func Register(name string, scope Scope, reg Registrar) {
	groups = append(groups, group{name: name, scope: scope, reg: reg})
}

func (g group) wanted(d deps.Deps) bool {
	if g.scope != LocalOnly {
		return true
	}
	return d.Mode == deps.ModeLocal && d.ReloadState != nil
}

// Mount registers every group that applies to d on r, fallbacks last, and
// returns the names of the mounted groups in mount order.
func Mount(r chi.Router, d deps.Deps) []string {
	ordered := append([]group(nil), groups...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].scope != Fallback && ordered[j].scope == Fallback
	})

	mounted := make([]string, 0, len(ordered))
	for _, g := range ordered {
		if !g.wanted(d) {
			continue
		}
		g.reg(r, d)
		mounted = append(mounted, g.name)
	}
	if d.Logger != nil {
		d.Logger.Debug("routes mounted", logger.String("mode", d.Mode), logger.Strings("groups", mounted))
	}
	return mounted
}
