// Package icao recovers the 24-bit ICAO address of a short Mode S reply from
// its AP (address/parity) field, trying each member of a refreshed candidate
// set. The candidate set uses a TTL cache the way Regentag-go1090's
// mode_s/decoder.go keeps a recently-seen icao_cache, grounded on
// github.com/patrickmn/go-cache instead of a hand-rolled map+mutex.
package icao

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"go1090/internal/bits"
	"go1090/internal/crc"
)

// Candidates holds the current set of ICAO addresses eligible for short-frame
// recovery, refreshed periodically by the tracker (§4.5).
type Candidates struct {
	cache *gocache.Cache
}

// NewCandidates creates an empty candidate set whose entries expire after ttl
// unless refreshed.
func NewCandidates(ttl time.Duration) *Candidates {
	return &Candidates{cache: gocache.New(ttl, ttl/2)}
}

// Add inserts or refreshes an ICAO address in the candidate set.
func (c *Candidates) Add(addr uint32) {
	c.cache.Set(key(addr), addr, gocache.DefaultExpiration)
}

// Replace swaps the candidate set contents for addrs, each re-armed with the
// cache's default TTL. Used by the tracker's periodic refresh.
func (c *Candidates) Replace(addrs []uint32) {
	c.cache.Flush()
	for _, a := range addrs {
		c.Add(a)
	}
}

// Contains reports whether addr is currently a live candidate.
func (c *Candidates) Contains(addr uint32) bool {
	_, ok := c.cache.Get(key(addr))
	return ok
}

func key(addr uint32) string {
	return string([]byte{byte(addr >> 16), byte(addr >> 8), byte(addr)})
}

// Recover reverse-engineers the ICAO address of a 56-bit short reply: the
// 24-bit AP field equals CRC(data[0:32]) XOR ICAO, so the candidate address
// is recovered directly and checked for membership in the candidate set.
func Recover(data []byte, candidates *Candidates) (uint32, bool) {
	parity := crc.Compute(data, 32)
	ap := uint32(bits.GetBits(data, 32, 56))
	addr := parity ^ ap
	if candidates.Contains(addr) {
		return addr, true
	}
	return 0, false
}
