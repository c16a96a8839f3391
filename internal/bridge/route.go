package bridge

import (
	"strings"
)

// IsListingRoute reports whether route is the plain listing page under base.
// Sub-routes such as add, edit or view never count. Query strings and
// fragments are ignored.
func IsListingRoute(route, base string) bool {
	route = normalizeRoute(route)
	base = normalizeRoute(base)
	return route == base
}

// ListingRefresher returns a listener that calls refresh only while the
// route reported by currentRoute is the listing page for base
func ListingRefresher(currentRoute func() string, base string, refresh func()) Listener {
	return func(Signal) {
		if IsListingRoute(currentRoute(), base) {
			refresh()
		}
	}
}

func normalizeRoute(route string) string {
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	route = strings.TrimRight(strings.TrimSpace(route), "/")
	if route == "" {
		return "/"
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}
