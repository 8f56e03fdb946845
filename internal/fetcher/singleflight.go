package fetcher

import (
	"golang.org/x/sync/singleflight"
)

// Group collapses concurrent exports of the same project content into one
// API call.
type Group struct {
	g singleflight.Group
}

func (g *Group) Do(key cacheKey, fn func() (any, error)) (any, error, bool) {
	return g.g.Do(key.content+"\x00"+key.token, fn)
}
