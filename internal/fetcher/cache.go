package fetcher

import "sync"

// cacheKey identifies one export of one project.
type cacheKey struct {
	content string
	token   string
}

type Cache struct {
	data sync.Map
}

func NewCache() *Cache {
	return &Cache{}
}

func (c *Cache) Get(key cacheKey) (any, bool) {
	return c.data.Load(key)
}

func (c *Cache) Set(key cacheKey, value any) {
	c.data.Store(key, value)
}
