// Package xid generates prefixed entity ids such as
// "shift-01756700000123456789-a1b2c3d4e5f6a7b8". The timestamp is
// zero-padded to a fixed width, so ids with the same prefix sort
// lexicographically in creation order; settlement allocation uses sale
// ids as the tie-break for same-timestamp sales.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns "<prefix>-<padded unix nanos>-<8 random bytes, hex>".
// If the random source fails the id is still unique enough for a
// single process: the nanosecond timestamp alone.
func New(prefix string) string {
	now := time.Now().UTC().UnixNano()
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%020d", prefix, now)
	}
	return fmt.Sprintf("%s-%020d-%s", prefix, now, hex.EncodeToString(buf))
}
