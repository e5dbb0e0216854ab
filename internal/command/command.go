// Package command implements the lru_crawler text-protocol surface:
// parsing "lru_crawler crawl|metadump|mgdump <slabs> [remaining]" lines
// into Controller.Start calls, and rendering the result back onto the
// wire. Memcached's own proto_text.c dispatch for this command isn't in
// the retrieval pack, so this is built straight from the grammar the
// distilled spec already pins down.
package command

import (
	"errors"
	"strconv"
	"strings"

	"github.com/dolfly/memcached/internal/conn"
	"github.com/dolfly/memcached/internal/lru"
	"github.com/dolfly/memcached/internal/slab"
)

// ErrMalformed is returned for any line that doesn't match the
// lru_crawler grammar.
var ErrMalformed = errors.New("command: malformed lru_crawler command")

// Dispatch parses one lru_crawler command line (no trailing CRLF) and
// starts the corresponding crawl on ctrl. c is the client connection to
// attach as the crawl's sink; it may be nil for crawl types that never
// need one (AUTOEXPIRE, EXPIRED).
func Dispatch(ctrl *lru.Controller, line string, c *conn.Conn) (lru.Result, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "lru_crawler" {
		return lru.Error, ErrMalformed
	}

	var crawlType lru.CrawlType
	switch fields[1] {
	case "crawl":
		crawlType = lru.Expired
	case "metadump":
		crawlType = lru.Metadump
	case "mgdump":
		crawlType = lru.Mgdump
	default:
		return lru.Error, ErrMalformed
	}

	classIDs, err := parseSlabs(fields[2], crawlType)
	if err != nil {
		return lru.BadClass, err
	}

	remaining := slab.CapRemaining
	if len(fields) >= 4 {
		n, perr := strconv.ParseUint(fields[3], 10, 64)
		if perr != nil {
			return lru.Error, ErrMalformed
		}
		remaining = n
	}

	res := ctrl.Start(lru.StartArgs{
		ClassIDs:  classIDs,
		Remaining: remaining,
		Type:      crawlType,
		Conn:      c,
	})
	return res, nil
}

// parseSlabs implements the <slabs> grammar: "all", "hash", or a
// comma-separated list of numeric base class ids (1..MaxClasses-1), each
// expanded into its four sub-LRUs. "hash" is only valid ahead of a dump
// mode — it asks for a hash-table walk instead of a per-class scan.
func parseSlabs(spec string, crawlType lru.CrawlType) ([]uint16, error) {
	switch spec {
	case "all":
		ids := make([]uint16, 0, slab.MaxClasses*4)
		for base := 1; base < slab.MaxClasses; base++ {
			ids = append(ids, slab.Expand(uint8(base))...)
		}
		return ids, nil
	case "hash":
		if crawlType != lru.Metadump && crawlType != lru.Mgdump {
			return nil, ErrMalformed
		}
		return nil, nil
	}

	parts := strings.Split(spec, ",")
	ids := make([]uint16, 0, len(parts)*4)
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n >= slab.MaxClasses {
			return nil, ErrMalformed
		}
		ids = append(ids, slab.Expand(uint8(n))...)
	}
	if len(ids) == 0 {
		return nil, ErrMalformed
	}
	return ids, nil
}

// FormatResult renders a Result as the command's first response line.
func FormatResult(r lru.Result) string {
	return r.String() + "\r\n"
}
