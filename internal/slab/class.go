package slab

import (
	"container/list"
	"sync"
)

// chainElem is the concrete container/list element type backing both
// Item.elem and Sentinel.elem. Using container/list keeps chain
// membership swaps (the crawl_q step) backed by the standard library,
// the same way the cache's own eviction list does.
type chainElem = *list.Element

type chainMember interface {
	isChainMember()
}

// Class is one slab class: a single LRU chain plus the lock the crawler
// and request handlers both take to mutate it. Classes are intentionally
// dumb about allocation sizing — tempuscache is not reproducing
// memcached's slab allocator, only the chain/refcount contract the
// crawler needs.
type Class struct {
	ID    uint8
	Mu    sync.Mutex
	chain *list.List
}

// NewClass allocates an empty class.
func NewClass(id uint8) *Class {
	return &Class{ID: id, chain: list.New()}
}

// Len returns the number of chain entries currently linked, including the
// crawler sentinel while one is linked.
func (c *Class) Len() int {
	return c.chain.Len()
}

// LinkHead inserts a brand-new item at the head (most-recently-used
// position), mirroring the teacher's MoveToFront-on-insert convention.
func (c *Class) LinkHead(it *Item) {
	it.elem = c.chain.PushFront(it)
}

// Unlink removes an item from the chain. Caller holds c.Mu.
func (c *Class) Unlink(it *Item) {
	if it.elem != nil {
		c.chain.Remove(it.elem)
		it.elem = nil
	}
}

// Touch moves an item to the head on access.
func (c *Class) Touch(it *Item) {
	c.chain.MoveToFront(it.elem)
}

// Back returns the least-recently-used real item in the chain, skipping
// over a crawler sentinel if one currently occupies the tail position.
// Used by a host cache's capacity eviction, which cares about the
// oldest item, not whatever placeholder the crawler has parked there.
func (c *Class) Back() (*Item, bool) {
	for e := c.chain.Back(); e != nil; e = e.Prev() {
		if it, ok := e.Value.(*Item); ok {
			return it, true
		}
	}
	return nil, false
}

// LinktailQ links a sentinel at the tail of the chain (the oldest/about
// to evict end), matching spec.md §4.6's linktail_q.
func (c *Class) LinktailQ(s *Sentinel) {
	s.elem = c.chain.PushBack(s)
	s.Active = true
}

// UnlinktailQ removes a linked sentinel from the chain.
func (c *Class) UnlinktailQ(s *Sentinel) {
	if s.elem != nil {
		c.chain.Remove(s.elem)
		s.elem = nil
	}
	s.Active = false
}

// CrawlQ advances the sentinel one position toward the head, swapping it
// with the item that was immediately ahead of it, and returns that item.
// Returns ok=false once the sentinel has reached the head (nothing left
// to crawl in this class).
//
// The swap is implemented as a single container/list.MoveBefore so both
// the sentinel's and the candidate's *list.Element identities survive —
// anything else holding a pointer to either element (namely the item's
// own it.elem) keeps working after the call.
func (c *Class) CrawlQ(s *Sentinel) (*Item, bool) {
	prev := s.elem.Prev()
	if prev == nil {
		return nil, false
	}
	c.chain.MoveBefore(s.elem, prev)
	return prev.Value.(*Item), true
}
