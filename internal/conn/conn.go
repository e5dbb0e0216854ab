// Package conn models the minimal connection lifecycle the crawler's
// client sink depends on: a handle it can write to, and the two
// side-thread operations (spec.md §6) that hand a connection back to the
// server once the crawler is done with it — without the crawler needing
// to know anything about request-handling worker threads.
package conn

import (
	"net"
)

// Conn wraps a live connection plus the bookkeeping a worker thread needs
// to reclaim it once a side-thread (the crawler) is finished.
type Conn struct {
	NetConn net.Conn

	// Fd is the connection's descriptor, as the wire-level
	// lru_crawler_set_client call would see it. spec.md §9 open
	// question 2 notes that the original treats sfd==0 as "no fd
	// supplied" even though 0 is a legitimate descriptor value;
	// tempuscache preserves that quirk for compatibility with existing
	// callers (see Controller.Start's NeedsClient check), so a zero Fd
	// on an otherwise non-nil *Conn is rejected the same way a nil
	// *Conn is.
	Fd uintptr
}

// Server is the subset of the host cache server the crawler's sink calls
// into when it closes or hands back a connection. A real server wires its
// worker-thread dispatch here; tests use a fake.
type Server interface {
	// SidethreadConnClose tears a connection down from a non-owning
	// thread (the sink hit EOF/hangup/hard error while flushing).
	SidethreadConnClose(c *Conn)
	// RedispatchConn returns a connection to normal worker-thread
	// ownership after the side-thread (the crawler) released it cleanly.
	RedispatchConn(c *Conn)
}
