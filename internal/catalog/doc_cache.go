package catalog

import (
	"container/list"
	"sync"
)

// docCache is a bounded LRU of decoded catalog responses keyed by request.
type docCache struct {
	mu    sync.Mutex
	max   int
	ll    *list.List
	items map[string]*list.Element
}

type cacheEntry struct {
	key  string
	docs []Document
}

func newDocCache(max int) *docCache {
	return &docCache{
		max:   max,
		ll:    list.New(),
		items: make(map[string]*list.Element),
	}
}

func (c *docCache) get(key string) ([]Document, bool) {
	if c == nil || c.max <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return cloneDocs(el.Value.(*cacheEntry).docs), true
}

func (c *docCache) put(key string, docs []Document) {
	if c == nil || c.max <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).docs = cloneDocs(docs)
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&cacheEntry{key: key, docs: cloneDocs(docs)})
	for c.ll.Len() > c.max {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

func (c *docCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func cloneDocs(in []Document) []Document {
	out := make([]Document, len(in))
	for i, d := range in {
		fields := make(Fields, len(d.Fields))
		for k, v := range d.Fields {
			fields[k] = v
		}
		out[i] = Document{ID: d.ID, Fields: fields}
	}
	return out
}
