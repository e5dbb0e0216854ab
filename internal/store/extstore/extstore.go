// Package extstore is a minimal stand-in for the optional external
// (disk-backed) storage tier. Its on-disk layout, compaction, and
// recovery are explicitly out of scope (spec.md §1) — the crawler only
// ever needs the two hooks below.
package extstore

import (
	"errors"
	"sync"

	"github.com/dolfly/memcached/internal/slab"
)

// ErrInvalid is returned by Validate when the page/offset pair an item's
// header points at no longer holds that item's data (the page was
// reclaimed or compacted out from under it).
var ErrInvalid = errors.New("extstore: item header no longer valid")

// Store is a page-addressed blob store, just real enough that Validate and
// Delete have actual state to check against instead of always succeeding.
type Store struct {
	mu    sync.Mutex
	pages map[uint32]map[uint32][]byte // page -> offset -> payload
}

func New() *Store {
	return &Store{pages: make(map[uint32]map[uint32][]byte)}
}

// Write stores a payload at the given page/offset descriptor.
func (s *Store) Write(page, offset uint32, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pages[page] == nil {
		s.pages[page] = make(map[uint32][]byte)
	}
	s.pages[page][offset] = payload
}

// Validate checks that item's ext_page/ext_offset descriptor still
// resolves to live data, per the "external-storage header" hooks in
// spec.md §6.
func (s *Store) Validate(it *slab.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	off, ok := s.pages[it.ExtPage]
	if !ok {
		return ErrInvalid
	}
	if _, ok := off[it.ExtOffset]; !ok {
		return ErrInvalid
	}
	return nil
}

// Delete removes the payload backing an item's header, invoked by the
// expired-mode reap path when an external-storage item is reclaimed.
func (s *Store) Delete(it *slab.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	off, ok := s.pages[it.ExtPage]
	if !ok {
		return nil
	}
	delete(off, it.ExtOffset)
	return nil
}
