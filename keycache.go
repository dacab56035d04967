package tagdb

import "slices"

// keyCache mirrors the set of keys present in a namespace's key-value table.
// It decides between insert and update on Set and answers Has without a
// backend read. The owning namespace's mutex guards it.
type keyCache struct {
	keys map[string]struct{}
}

func (c *keyCache) has(key string) bool {
	_, ok := c.keys[key]
	return ok
}

func (c *keyCache) add(key string) {
	if c.keys == nil {
		c.keys = make(map[string]struct{})
	}
	c.keys[key] = struct{}{}
}

func (c *keyCache) remove(key string) {
	delete(c.keys, key)
}

func (c *keyCache) reset(keys []string) {
	c.keys = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		c.keys[k] = struct{}{}
	}
}

func (c *keyCache) clear() {
	c.keys = nil
}

func (c *keyCache) len() int {
	return len(c.keys)
}

func (c *keyCache) sorted() []string {
	keys := make([]string, 0, len(c.keys))
	for k := range c.keys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
