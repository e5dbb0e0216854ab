package tempuscache

import (
	"github.com/dolfly/memcached/internal/htable"
	"github.com/dolfly/memcached/internal/slab"
)

// evictOldestLocked removes the least-recently-used item from class to
// make room for a new insert. Caller holds class.Mu.
//
// TIME COMPLEXITY: O(1) average — Class.Back() walks past at most one
// crawler sentinel before finding the real tail item.
func (c *Cache) evictOldestLocked(class *slab.Class) {
	it, ok := class.Back()
	if !ok {
		return
	}
	class.Unlink(it)
	c.ht.Remove(htable.HashKey(it.Key), it.Key)
	it.RefcountDecr()
	c.recordEviction()
}
