package redirect

import (
	"fmt"
	"net/url"
	"strings"
)

// AllowEntry permits an external https destination: exact host, and a path
// equal to Prefix or continuing it at a "/" boundary.
type AllowEntry struct {
	Host   string
	Prefix string
}

// AllowList is the set of permitted external destinations.
type AllowList []AllowEntry

// ParseAllowList reads entries of the form "host/path-prefix" or "host".
func ParseAllowList(entries []string) (AllowList, error) {
	out := make(AllowList, 0, len(entries))
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "://") {
			return nil, fmt.Errorf("allow-list entry must not carry a scheme: %q", raw)
		}
		host, prefix, _ := strings.Cut(raw, "/")
		if host == "" {
			return nil, fmt.Errorf("allow-list entry has no host: %q", raw)
		}
		entry := AllowEntry{Host: strings.ToLower(host)}
		if prefix = strings.TrimSuffix(prefix, "/"); prefix != "" {
			entry.Prefix = "/" + prefix
		}
		out = append(out, entry)
	}
	return out, nil
}

// permits matches on the decoded path, so %2e%2e counts as a dot segment.
// Any dot segment is refused.
func (a AllowList) permits(u *url.URL) bool {
	if hasDotSegment(u.Path) {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, e := range a {
		if host != e.Host {
			continue
		}
		if e.Prefix == "" || u.Path == e.Prefix || strings.HasPrefix(u.Path, e.Prefix+"/") {
			return true
		}
	}
	return false
}

// Checker decides whether a caller-supplied return_to may be followed.
// It holds no mutable state and is safe for concurrent use.
type Checker struct {
	// Self is this service's own origin; absolute URLs on it are treated as internal.
	Self   *url.URL
	Routes RouteMatcher
	Allow  AllowList
}

// IsSafe reports whether candidate is an internal route of this service or an
// allow-listed https destination.
func (c Checker) IsSafe(candidate string) bool {
	return IsSafe(candidate, c.Self, c.Routes, c.Allow)
}

// IsSafe is the redirect safety check. A candidate is safe when it is
//   - a path on this service (relative, or absolute on self) that matches routes, or
//   - an https URL whose host and path prefix are on allow.
func IsSafe(candidate string, self *url.URL, routes RouteMatcher, allow AllowList) bool {
	if candidate == "" || strings.ContainsAny(candidate, "\\") || hasControl(candidate) {
		return false
	}
	u, err := url.Parse(candidate)
	if err != nil || u.User != nil || u.Opaque != "" {
		return false
	}

	if u.Scheme == "" && u.Host == "" {
		// "//evil.example" parses with a host, so only plain paths reach here.
		if !strings.HasPrefix(candidate, "/") || strings.HasPrefix(candidate, "//") {
			return false
		}
		return internalPath(u, routes)
	}

	if self != nil && sameOrigin(u, self) {
		return internalPath(u, routes)
	}

	if u.Scheme != "https" || u.Host == "" || u.Port() != "" {
		return false
	}
	return allow.permits(u)
}

func internalPath(u *url.URL, routes RouteMatcher) bool {
	if routes == nil || hasDotSegment(u.Path) {
		return false
	}
	return routes.Matches(u.Path)
}

func sameOrigin(u, self *url.URL) bool {
	return strings.EqualFold(u.Scheme, self.Scheme) && strings.EqualFold(u.Host, self.Host)
}

func hasDotSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

func hasControl(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}
