package lru

import (
	"encoding/base64"
	"net/url"
	"strconv"
)

// itoa (with i64toa/u64toa), uriEncodeKey, and b64EncodeKey are the three formatting hooks spec.md
// §6 lists as external requirements (integer-to-decimal formatter, URI
// encoder, base64 encoder). The corpus has no ecosystem library that
// beats the standard library at any of these — see DESIGN.md.

func itoa(n int) string {
	return strconv.Itoa(n)
}

func i64toa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func u64toa(n uint64) string {
	return strconv.FormatUint(n, 10)
}

// uriEncodeKey percent-encodes a key for the metadump "key=" field, the
// same escaping net/url.QueryEscape already implements.
func uriEncodeKey(key string) string {
	return url.QueryEscape(key)
}

// b64EncodeKey base64-encodes a binary key for the keydump "mg" line.
func b64EncodeKey(key string) string {
	return base64.StdEncoding.EncodeToString([]byte(key))
}
