// Package cpr resolves Compact Position Reporting even/odd frame pairs into
// WGS-84 coordinates. Structurally grounded in the teacher's
// internal/adsb/cpr.go (mutex-protected per-ICAO frame cache, NL-zone
// matching), but implements the global-decode-only algorithm and the
// closed-form NL(lat) formula this system's spec calls for instead of the
// teacher's lookup table and single-frame fallback.
package cpr

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go1090/internal/bits"
)

// Frame is one CPR-encoded position report.
type Frame struct {
	LatCPR   uint32
	LonCPR   uint32
	Received time.Time
}

// Resolver caches the most recent even/odd frame per ICAO and resolves pairs
// into global positions.
type Resolver struct {
	mu     sync.Mutex
	even   map[uint32]Frame
	odd    map[uint32]Frame
	logger *logrus.Logger
}

// NewResolver creates an empty CPR resolver.
func NewResolver(logger *logrus.Logger) *Resolver {
	return &Resolver{
		even:   make(map[uint32]Frame),
		odd:    make(map[uint32]Frame),
		logger: logger,
	}
}

// Update records a new CPR frame for icao and attempts a global decode if a
// fresh counterpart frame is cached. oddFlag is 0 for even, 1 for odd.
func (r *Resolver) Update(icao uint32, oddFlag int, latCPR, lonCPR uint32, at time.Time) (lat, lon float64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := Frame{LatCPR: latCPR, LonCPR: lonCPR, Received: at}
	if oddFlag == 0 {
		r.even[icao] = f
	} else {
		r.odd[icao] = f
	}

	ef, hasEven := r.even[icao]
	of, hasOdd := r.odd[icao]
	if !hasEven || !hasOdd {
		return 0, 0, false
	}
	if at.Sub(ef.Received) > bits.CPRFrameMaxAgeSec*time.Second ||
		at.Sub(of.Received) > bits.CPRFrameMaxAgeSec*time.Second {
		return 0, 0, false
	}

	latestIsOdd := of.Received.After(ef.Received) || of.Received.Equal(ef.Received)
	return globalDecode(ef, of, latestIsOdd)
}

func globalDecode(ef, of Frame, latestIsOdd bool) (lat, lon float64, ok bool) {
	latE := float64(ef.LatCPR) / float64(bits.CPRLatMax)
	latO := float64(of.LatCPR) / float64(bits.CPRLatMax)

	j := math.Floor(59*latE - 60*latO + 0.5)

	latEven := bits.CPRDLatEven * (cprMod(j, 60) + latE)
	latOdd := bits.CPRDLatOdd * (cprMod(j, 59) + latO)
	if latEven >= 270 {
		latEven -= 360
	}
	if latOdd >= 270 {
		latOdd -= 360
	}

	nlEven := NL(latEven)
	nlOdd := NL(latOdd)
	if nlEven != nlOdd {
		return 0, 0, false
	}

	var finalLat float64
	var lonCPR float64
	var nl int
	if latestIsOdd {
		finalLat = latOdd
		lonCPR = float64(of.LonCPR) / float64(bits.CPRLonMax)
		nl = nlOdd
	} else {
		finalLat = latEven
		lonCPR = float64(ef.LonCPR) / float64(bits.CPRLonMax)
		nl = nlEven
	}

	ni := nl - 1
	if ni < 1 {
		ni = 1
	}
	lonE := float64(ef.LonCPR) / float64(bits.CPRLonMax)
	lonO := float64(of.LonCPR) / float64(bits.CPRLonMax)
	m := math.Floor(lonE*float64(nl-1)-lonO*float64(nl)+0.5)
	m = cprMod(m, float64(ni))

	lon := (360.0 / float64(ni)) * (m + lonCPR)
	if lon > 180 {
		lon -= 360
	}

	return round6(finalLat), round6(lon), true
}

func cprMod(a, b float64) float64 {
	r := math.Mod(a, b)
	if r < 0 {
		r += b
	}
	return r
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// NL returns the number of longitude zones for latitude lat (§4.3).
func NL(lat float64) int {
	abs := math.Abs(lat)
	if abs >= 87 {
		return 1
	}
	nz := float64(bits.CPRZones)
	cosTerm := math.Cos(math.Pi / (2 * nz))
	denom := math.Pow(math.Cos(math.Pi*abs/180), 2)
	arg := 1 - (1-cosTerm)/denom
	nl := math.Floor(2 * math.Pi / math.Acos(arg))
	if nl < 1 {
		nl = 1
	}
	if nl > 59 {
		nl = 59
	}
	return int(nl)
}
