package slab

// Sentinel is the crawler's placeholder item, linked into a class's LRU
// chain for the duration of a crawl. It carries its own budget and
// per-class counters so the scanner and the caller can read progress
// without touching the real items.
type Sentinel struct {
	// Active is true iff the sentinel is currently linked into its
	// class's chain (invariant 1 in spec.md §3).
	Active bool

	// Remaining is the crawler's internal per-class budget. 0 means
	// unlimited (walk to head); it is stored pre-incremented by one so a
	// post-decrement of 1 terminates after visiting the caller's N.
	Remaining uint64

	Reclaimed  uint64
	Unfetched  uint64
	Checked    uint64

	elem chainElem
}

func (s *Sentinel) isChainMember() {}

// CapRemaining is the sentinel value for "use the current class size as
// the cap" passed to Controller.Start.
const CapRemaining = ^uint64(0)

// Reset clears counters and arms the sentinel with a budget. remaining==0
// means unlimited; remaining==CapRemaining is resolved by the caller
// before Reset is invoked (it needs the live class size).
func (s *Sentinel) Reset(remaining uint64) {
	s.Reclaimed = 0
	s.Unfetched = 0
	s.Checked = 0
	if remaining == 0 {
		s.Remaining = 0
	} else {
		s.Remaining = remaining + 1
	}
}
