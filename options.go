package tempuscache

import (
	"time"
)

/*
Option defines a functional configuration modifier for Cache.

DESIGN PATTERN

This file implements the Functional Options Pattern, a common
idiomatic Go design used for flexible and extensible configuration.

Instead of passing multiple parameters to the constructor,
New() accepts a variadic list of Option functions:

    cache := New(
        WithCleanupInterval(10 * time.Second),
        WithMaxEntries(10000),
    )

Each Option modifies the Cache instance before it becomes active.
*/

type Option func(*Cache)

// WithCleanupInterval sets how often the background AUTOEXPIRE crawl
// runs. Zero (the default) disables active expiration entirely — the
// cache then relies solely on lazy expiration in Get.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *Cache) {
		c.interval = d
	}
}

// WithMaxEntries caps the class at n live items; inserting past the cap
// evicts the least-recently-used entry first. Zero (the default) means
// unlimited.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}
