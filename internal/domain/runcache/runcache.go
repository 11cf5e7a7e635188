// Package runcache keeps recent waterfall results keyed by input fingerprint.
package runcache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
)

// Cache stores results of identical inputs so reruns skip recomputation.
// Cached results are shared; callers must treat them as read-only.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (*model.WaterfallResult, bool)
	Put(ctx context.Context, fingerprint string, res *model.WaterfallResult)
	Invalidate(ctx context.Context, fingerprint string)
	// InvalidateProject drops every entry computed for projectID and returns how many were removed.
	InvalidateProject(ctx context.Context, projectID string) int
	Size() int64
}

// node is an entry in the recency list.
type node struct {
	key        string
	res        *model.WaterfallResult
	prev, next *node
}

func (n *node) reset() {
	n.key = ""
	n.res = nil
	n.prev = nil
	n.next = nil
}

// inMemoryCache uses a map plus a doubly linked list, newest at head.
// For maxSize <= 0 entries are never evicted.
type inMemoryCache struct {
	mu       sync.Mutex
	entries  map[string]*node
	head     *node
	tail     *node
	maxSize  int
	size     atomic.Int64
	nodePool sync.Pool
}

// New creates an in-memory cache.
func New(opts ...Option) Cache {
	c := &inMemoryCache{
		maxSize: 256,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.entries = make(map[string]*node)
	c.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}
	return c
}

// Get returns the result for fingerprint and marks it most recently used.
func (c *inMemoryCache) Get(ctx context.Context, fingerprint string) (*model.WaterfallResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	c.unlink(n)
	c.pushFront(n)
	return n.res, true
}

// Put stores res, evicting the least recently used entry when full.
func (c *inMemoryCache) Put(ctx context.Context, fingerprint string, res *model.WaterfallResult) {
	if res == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.entries[fingerprint]; ok {
		n.res = res
		c.unlink(n)
		c.pushFront(n)
		return
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	n := c.nodePool.Get().(*node)
	n.key = fingerprint
	n.res = res
	c.pushFront(n)
	c.entries[fingerprint] = n
	c.size.Add(1)
}

// Invalidate drops a single entry.
func (c *inMemoryCache) Invalidate(ctx context.Context, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.entries[fingerprint]; ok {
		c.remove(n)
	}
}

// InvalidateProject drops all entries for a project.
func (c *inMemoryCache) InvalidateProject(ctx context.Context, projectID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for n := c.head; n != nil; {
		next := n.next
		if n.res.ProjectID == projectID {
			c.remove(n)
			removed++
		}
		n = next
	}
	return removed
}

// Size returns the current number of entries.
func (c *inMemoryCache) Size() int64 {
	return c.size.Load()
}

// Must be called with c.mu held.
func (c *inMemoryCache) evictOldest() {
	if c.tail != nil {
		c.remove(c.tail)
	}
}

// Must be called with c.mu held.
func (c *inMemoryCache) remove(n *node) {
	delete(c.entries, n.key)
	c.unlink(n)
	n.reset()
	c.nodePool.Put(n)
	c.size.Add(-1)
}

func (c *inMemoryCache) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}

func (c *inMemoryCache) pushFront(n *node) {
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}
