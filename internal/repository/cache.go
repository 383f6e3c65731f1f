package repository

import (
	"slices"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/xenking/orderdesk/internal/domain/order"
)

// cache holds one order listing.
//
// A cache is either unset or loaded; a loaded cache may be empty. Every
// invalidation bumps the generation, and a fetch may only store its result
// if the generation it started in is still current.
type cache struct {
	name   string
	path   string
	accept func(order.Order) bool

	group singleflight.Group

	mu     sync.Mutex
	gen    uint64
	loaded bool
	orders []order.Order
}

func newCache(name, path string, accept func(order.Order) bool) *cache {
	return &cache{name: name, path: path, accept: accept}
}

// get returns a copy of the cached orders and whether the cache is loaded.
func (c *cache) get() ([]order.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		return nil, false
	}
	return slices.Clone(c.orders), true
}

func (c *cache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.gen
}

// key identifies the in-flight fetch for the current generation.
func (c *cache) key(gen uint64) string {
	return c.name + ":" + strconv.FormatUint(gen, 10)
}

// store replaces the cached orders if gen is still current.
func (c *cache) store(gen uint64, orders []order.Order) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return false
	}
	c.loaded = true
	c.orders = slices.Clone(orders)
	if c.orders == nil {
		c.orders = []order.Order{}
	}
	return true
}

// invalidate unsets the cache.
func (c *cache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.loaded = false
	c.orders = nil
}

// evict removes the order with id from a loaded cache.
func (c *cache) evict(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.orders)
	c.orders = slices.DeleteFunc(c.orders, func(o order.Order) bool {
		return o.ID == id
	})
	return len(c.orders) != n
}

// find looks id up in a loaded cache without fetching.
func (c *cache) find(id int64) (order.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, o := range c.orders {
		if o.ID == id {
			return o, true
		}
	}
	return order.Order{}, false
}

func (c *cache) filter(orders []order.Order) []order.Order {
	if c.accept == nil {
		return orders
	}
	out := make([]order.Order, 0, len(orders))
	for _, o := range orders {
		if c.accept(o) {
			out = append(out, o)
		}
	}
	return out
}
