package redirect

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
)

// RouteMatcher reports whether a path belongs to one of this service's routes.
type RouteMatcher interface {
	Matches(path string) bool
}

// RouteTable is a declarative set of chi route patterns, e.g. "/bikes/{bikeID}".
// Matching goes through chi's own tree so a path is accepted only if the router
// would dispatch it.
type RouteTable struct {
	mux      *chi.Mux
	patterns []string
}

// NewRouteTable registers each pattern for GET. Invalid patterns are rejected
// instead of panicking at match time.
func NewRouteTable(patterns ...string) (*RouteTable, error) {
	t := &RouteTable{mux: chi.NewRouter()}
	for _, p := range patterns {
		if err := t.add(p); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *RouteTable) add(pattern string) (err error) {
	if pattern == "" || pattern[0] != '/' {
		return fmt.Errorf("route pattern must start with /: %q", pattern)
	}
	if slices.Contains(t.patterns, pattern) {
		return nil
	}
	// chi panics on malformed or duplicate patterns.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid route pattern %q: %v", pattern, r)
		}
	}()
	t.mux.Get(pattern, http.NotFound)
	t.patterns = append(t.patterns, pattern)
	return nil
}

// Matches implements RouteMatcher.
func (t *RouteTable) Matches(path string) bool {
	if t == nil || path == "" {
		return false
	}
	return t.mux.Match(chi.NewRouteContext(), http.MethodGet, path)
}

// Patterns returns the registered patterns in registration order.
func (t *RouteTable) Patterns() []string {
	out := make([]string, len(t.patterns))
	copy(out, t.patterns)
	return out
}
