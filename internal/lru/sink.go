package lru

import (
	"errors"
	"net"
	"time"

	"github.com/dolfly/memcached/internal/conn"
)

// MinBufSpace is the minimum free space a mode's Eval is guaranteed in the
// sink buffer before it runs, per spec.md §4.1.
const MinBufSpace = 8192

const initialSinkLen = 16 * MinBufSpace

// FlushStatus is the outcome of one Sink.Flush call.
type FlushStatus int

const (
	// FlushOK means everything buffered was written.
	FlushOK FlushStatus = iota
	// FlushRetry means the socket wasn't ready within the 1s window;
	// the buffer is retained and the caller should try again later.
	FlushRetry
	// FlushClosed means the sink hit EOF/hangup/a hard write error and
	// has torn itself down; the caller must treat the sink as absent.
	FlushClosed
)

var errAlreadyAttached = errors.New("lru: sink already attached")

// Sink is a buffered, poll-driven writer to a connection attached to an
// in-progress crawl. It is owned exclusively by the crawler worker for
// its lifetime — nothing else touches its buffer.
type Sink struct {
	c      *conn.Conn
	server conn.Server

	buf  []byte
	used int

	closed bool
}

// Attach binds a connection to the sink and allocates its buffer. Fails
// if a sink is already attached.
func (s *Sink) Attach(c *conn.Conn, server conn.Server) error {
	if s.c != nil {
		return errAlreadyAttached
	}
	s.c = c
	s.server = server
	s.buf = make([]byte, initialSinkLen)
	s.used = 0
	s.closed = false
	return nil
}

// Attached reports whether a connection is currently bound (and not yet
// closed).
func (s *Sink) Attached() bool {
	return s != nil && s.c != nil && !s.closed
}

// Headroom reports the free space left in the buffer.
func (s *Sink) Headroom() int {
	return len(s.buf) - s.used
}

// EnsureHeadroom guarantees at least MinBufSpace free bytes, expanding the
// buffer if needed. Returns false if expansion failed (out of memory) —
// callers must abort the scan in that case.
func (s *Sink) EnsureHeadroom() bool {
	for s.Headroom() < MinBufSpace {
		if !s.expand() {
			return false
		}
	}
	return true
}

// expand doubles the buffer via reallocation.
func (s *Sink) expand() bool {
	newBuf := make([]byte, len(s.buf)*2)
	copy(newBuf, s.buf[:s.used])
	s.buf = newBuf
	return true
}

// Append writes data into the buffer. Callers must have called
// EnsureHeadroom first; Append never expands on its own.
func (s *Sink) Append(data []byte) {
	s.used += copy(s.buf[s.used:], data)
}

// Flush performs one bounded attempt at draining the buffer to the
// socket: a 1-second write-readiness wait, one write, partial writes are
// retained for the next call. A hangup, hard error, or peer close closes
// the sink.
func (s *Sink) Flush() FlushStatus {
	if s.closed || s.c == nil {
		return FlushClosed
	}
	if s.used == 0 {
		return FlushOK
	}

	if err := s.c.NetConn.SetWriteDeadline(time.Now().Add(1 * time.Second)); err != nil {
		s.close()
		return FlushClosed
	}

	n, err := s.c.NetConn.Write(s.buf[:s.used])
	if n > 0 {
		copy(s.buf, s.buf[n:s.used])
		s.used -= n
	}
	if err == nil {
		if s.used == 0 {
			return FlushOK
		}
		return FlushRetry // partial write; resume next call
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FlushRetry
	}

	// Hangup, reset, or any other hard error: the connection is gone.
	s.close()
	return FlushClosed
}

// close tears the sink down after an I/O failure: the connection is
// handed back to the server as side-thread-closed and the buffer is
// freed. Subsequent operations are no-ops.
func (s *Sink) close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.server != nil && s.c != nil {
		s.server.SidethreadConnClose(s.c)
	}
	s.buf = nil
	s.c = nil
}

// Release returns the connection to the server for worker-thread
// redispatch after a successful crawl completion, and frees the buffer.
func (s *Sink) Release() {
	if s.closed || s.c == nil {
		return
	}
	if s.server != nil {
		s.server.RedispatchConn(s.c)
	}
	s.buf = nil
	s.c = nil
	s.closed = true
}
