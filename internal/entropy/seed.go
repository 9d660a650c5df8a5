// Package entropy draws seeds for runs that do not fix one.
// Uses crypto/rand, falling back to the clock when it is unavailable.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"time"
)

// MaxSeed bounds drawn seeds. Seeds below 1<<40 survive a JSON round trip
// exactly, so stored experiments can be replayed.
const MaxSeed = 1 << 40

// Seed returns a seed in [1, MaxSeed].
func Seed() int64 {
	return int64(cryptoUint64()%MaxSeed) + 1
}

func cryptoUint64() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		slog.Debug("crypto/rand failed, seeding from clock", "error", err)
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(buf[:])
}
