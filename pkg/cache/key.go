package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// keyPrefix namespaces all cache keys in Redis.
const keyPrefix = "canvas:resp:"

// Key identifies a cached response by its full request URL, query
// string included. Pagination next-page URLs are opaque, so the URL is
// the only stable identity a page has.
type Key struct {
	URL string
}

// String generates the Redis key. URLs can exceed comfortable Redis key
// sizes, so the URL is hashed.
func (k Key) String() string {
	sum := sha256.Sum256([]byte(k.URL))
	return keyPrefix + hex.EncodeToString(sum[:])
}
