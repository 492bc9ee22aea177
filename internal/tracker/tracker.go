// Package tracker merges decoded messages into per-aircraft state,
// resolves CPR position pairs, enforces range/expiry policy, and fans
// update events out to subscribers. Grounded in the other_examples
// skywatch tracker (mutex-guarded map, Subscribe/broadcast via bounded
// channels, cleanupStale sweep) adapted to the teacher's logging/locking
// idiom and this system's message.Message/cpr.Resolver types.
package tracker

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go1090/internal/bits"
	"go1090/internal/cpr"
	"go1090/internal/icao"
	"go1090/internal/message"
)

// PositionFix is one entry in an aircraft's position history ring buffer.
type PositionFix struct {
	Latitude  float64
	Longitude float64
	Altitude  int
	At        time.Time
}

// EHS mirrors message.EHS for the tracked state's overlay fields.
type EHS = message.EHS

// AircraftState is the per-ICAO tracked entity (§3).
type AircraftState struct {
	ICAO uint32

	Callsign     string
	Latitude     float64
	Longitude    float64
	HasPosition  bool
	Altitude     int
	HasAltitude  bool
	GroundSpeed  float64
	Heading      float64
	HasVelocity  bool
	VerticalRate int
	Squawk       string
	HasSquawk    bool

	SignalStrength float64
	hasSignal      bool

	LastSeen time.Time
	Messages uint64

	PositionHistory []PositionFix

	EHS    EHS
	HasEHS bool

	lastHistorySave time.Time
}

// Snapshot is the externally-visible copy of an AircraftState, excluding
// internal CPR frame slots (§6).
type Snapshot struct {
	ICAO           uint32
	Callsign       string
	Latitude       float64
	Longitude      float64
	HasPosition    bool
	Altitude       int
	HasAltitude    bool
	GroundSpeed    float64
	Heading        float64
	HasVelocity    bool
	VerticalRate   int
	Squawk         string
	HasSquawk      bool
	SignalStrength float64
	LastSeen       time.Time
	Messages       uint64
	EHS            EHS
	HasEHS         bool
	DistanceNM     float64
	HasDistance    bool
}

func (a *AircraftState) snapshot() Snapshot {
	return Snapshot{
		ICAO:           a.ICAO,
		Callsign:       a.Callsign,
		Latitude:       a.Latitude,
		Longitude:      a.Longitude,
		HasPosition:    a.HasPosition,
		Altitude:       a.Altitude,
		HasAltitude:    a.HasAltitude,
		GroundSpeed:    a.GroundSpeed,
		Heading:        a.Heading,
		HasVelocity:    a.HasVelocity,
		VerticalRate:   a.VerticalRate,
		Squawk:         a.Squawk,
		HasSquawk:      a.HasSquawk,
		SignalStrength: a.SignalStrength,
		LastSeen:       a.LastSeen,
		Messages:       a.Messages,
		EHS:            a.EHS,
		HasEHS:         a.HasEHS,
	}
}

// HistorySink is implemented by the persistence layer; the tracker never
// blocks on it (§7 persistence error handling).
type HistorySink interface {
	SaveAircraft(icao uint32, callsign string, at time.Time) error
	SaveSighting(s Snapshot, at time.Time) error
	RecentICAOs(hours int) ([]uint32, error)
}

// Options configures a Tracker.
type Options struct {
	Logger        *logrus.Logger
	History       HistorySink
	ReceiverLat   float64
	ReceiverLon   float64
	HasReceiver   bool
	MaxRangeNM    float64
	ShowOnlyICAO  uint32
	HasShowOnly   bool
	SubscriberCap int
}

// Tracker owns the aircraft map and serializes all mutation under one lock.
type Tracker struct {
	mu       sync.RWMutex
	aircraft map[uint32]*AircraftState

	cpr        *cpr.Resolver
	candidates *icao.Candidates

	logger  *logrus.Logger
	history HistorySink

	receiverLat  float64
	receiverLon  float64
	hasReceiver  bool
	maxRangeNM   float64
	showOnly     uint32
	hasShowOnly  bool

	subMu       sync.Mutex
	subscribers map[chan Snapshot]struct{}
	subCap      int

	fullSubMu       sync.Mutex
	fullSubscribers map[chan []Snapshot]struct{}
}

const (
	defaultSubscriberCap = 100
)

// New constructs an empty Tracker.
func New(opts Options) *Tracker {
	subCap := opts.SubscriberCap
	if subCap <= 0 {
		subCap = defaultSubscriberCap
	}
	return &Tracker{
		aircraft:    make(map[uint32]*AircraftState),
		cpr:         cpr.NewResolver(opts.Logger),
		candidates:  icao.NewCandidates(bits.ICAOCandidateHours * time.Hour),
		logger:      opts.Logger,
		history:     opts.History,
		receiverLat: opts.ReceiverLat,
		receiverLon: opts.ReceiverLon,
		hasReceiver: opts.HasReceiver,
		maxRangeNM:  opts.MaxRangeNM,
		showOnly:    opts.ShowOnlyICAO,
		hasShowOnly: opts.HasShowOnly,
		subscribers:     make(map[chan Snapshot]struct{}),
		subCap:          subCap,
		fullSubscribers: make(map[chan []Snapshot]struct{}),
	}
}

// Candidates exposes the ICAO-recovery candidate set so the decoder can be
// driven with it.
func (t *Tracker) Candidates() *icao.Candidates { return t.candidates }

// Subscribe registers a new bounded event channel.
func (t *Tracker) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, t.subCap)
	t.subMu.Lock()
	t.subscribers[ch] = struct{}{}
	t.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a previously-registered channel.
func (t *Tracker) Unsubscribe(ch chan Snapshot) {
	t.subMu.Lock()
	if _, ok := t.subscribers[ch]; ok {
		delete(t.subscribers, ch)
		close(ch)
	}
	t.subMu.Unlock()
}

// SubscribeFull registers a new bounded channel receiving periodic
// full-aircraft-list events (§5 periodic broadcaster thread, §6 periodic
// full-list event), distinct from the per-update events Subscribe delivers.
func (t *Tracker) SubscribeFull() chan []Snapshot {
	ch := make(chan []Snapshot, 1)
	t.fullSubMu.Lock()
	t.fullSubscribers[ch] = struct{}{}
	t.fullSubMu.Unlock()
	return ch
}

// UnsubscribeFull removes and closes a previously-registered full-list
// channel.
func (t *Tracker) UnsubscribeFull(ch chan []Snapshot) {
	t.fullSubMu.Lock()
	if _, ok := t.fullSubscribers[ch]; ok {
		delete(t.fullSubscribers, ch)
		close(ch)
	}
	t.fullSubMu.Unlock()
}

func (t *Tracker) broadcastFull(snaps []Snapshot) {
	t.fullSubMu.Lock()
	defer t.fullSubMu.Unlock()
	for ch := range t.fullSubscribers {
		select {
		case ch <- snaps:
		default:
			// Drop-oldest, same as broadcast: a 1-deep channel only ever
			// needs the freshest full list.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snaps:
			default:
			}
		}
	}
}

// BroadcastSnapshot computes the current full aircraft list and publishes
// it to every full-list subscriber (§5/§6 periodic full-list event).
func (t *Tracker) BroadcastSnapshot() []Snapshot {
	snaps := t.Snapshot()
	t.broadcastFull(snaps)
	return snaps
}

func (t *Tracker) broadcast(s Snapshot) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for ch := range t.subscribers {
		select {
		case ch <- s:
		default:
			// Drop-oldest: make room for the freshest snapshot rather
			// than stalling the tracker lock on a slow consumer (§5).
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// Update merges a decoded message into the tracked state (§4.5).
func (t *Tracker) Update(msg *message.Message) {
	if !msg.CRCValid {
		return
	}
	if t.hasShowOnly && msg.ICAO != t.showOnly {
		return
	}

	t.mu.Lock()
	a, ok := t.aircraft[msg.ICAO]
	if !ok {
		a = &AircraftState{ICAO: msg.ICAO}
		t.aircraft[msg.ICAO] = a
	}

	a.LastSeen = msg.Timestamp
	a.Messages++
	a.SignalStrength = ema(a.SignalStrength, msg.Signal, a.hasSignal)
	a.hasSignal = true

	// Dispatch on what the decoder populated (the Has* flags) rather than
	// on Kind, since Comm-B and identity replies can carry altitude/squawk
	// plus an EHS overlay in the same frame (§4.5 step 4). The callsign has
	// no flag of its own and is taken from identification messages.
	if msg.Kind == message.KindIdentification {
		a.Callsign = msg.Callsign
	}
	if msg.HasAltitude {
		a.Altitude = msg.Altitude
		a.HasAltitude = true
	}
	if msg.HasCPR {
		if lat, lon, ok := t.cpr.Update(msg.ICAO, msg.OddFlag, msg.LatCPR, msg.LonCPR, msg.Timestamp); ok {
			accept := true
			if t.hasReceiver && t.maxRangeNM > 0 {
				dist := haversineNM(t.receiverLat, t.receiverLon, lat, lon)
				if dist > t.maxRangeNM {
					t.logger.WithFields(logrus.Fields{
						"icao": msg.ICAO, "distance_nm": dist,
					}).Debug("position rejected: out of range")
					accept = false
				}
			}
			if accept {
				a.Latitude = lat
				a.Longitude = lon
				a.HasPosition = true
				a.PositionHistory = append(a.PositionHistory, PositionFix{
					Latitude: lat, Longitude: lon, Altitude: a.Altitude, At: msg.Timestamp,
				})
				if len(a.PositionHistory) > bits.MaxPositionHistory {
					a.PositionHistory = a.PositionHistory[len(a.PositionHistory)-bits.MaxPositionHistory:]
				}
			}
		}
	}
	if msg.HasVelocity {
		a.GroundSpeed = msg.Velocity.GroundSpeed
		a.Heading = msg.Velocity.Heading
		a.VerticalRate = msg.Velocity.VerticalRate
		a.HasVelocity = true
	}
	if msg.HasSquawk {
		a.Squawk = msg.Squawk
		a.HasSquawk = true
	}
	if msg.HasEHS {
		a.EHS = msg.EHS
		a.HasEHS = true
	}

	t.candidates.Add(msg.ICAO)

	snap := a.snapshot()
	shouldSave := t.history != nil && msg.Timestamp.Sub(a.lastHistorySave) >= bits.HistorySaveIntervalSec*time.Second
	if shouldSave {
		a.lastHistorySave = msg.Timestamp
	}
	t.mu.Unlock()

	if shouldSave {
		if err := t.history.SaveAircraft(snap.ICAO, snap.Callsign, msg.Timestamp); err != nil {
			t.logger.WithError(err).Warn("failed to save aircraft record")
		}
		if err := t.history.SaveSighting(snap, msg.Timestamp); err != nil {
			t.logger.WithError(err).Warn("failed to save sighting")
		}
	}

	t.broadcast(snap)
}

func ema(old, sample float64, hasPrior bool) float64 {
	if !hasPrior {
		return sample
	}
	return round6(0.7*old + 0.3*sample)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Sweep removes aircraft that have not been updated within
// AircraftTimeoutSec, called lazily by read paths (§4.5 expiry).
func (t *Tracker) Sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, a := range t.aircraft {
		if now.Sub(a.LastSeen) > bits.AircraftTimeoutSec*time.Second {
			delete(t.aircraft, k)
		}
	}
}

// Get returns a copy of one aircraft's state.
func (t *Tracker) Get(icaoAddr uint32) (Snapshot, bool) {
	t.Sweep(time.Now())
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.aircraft[icaoAddr]
	if !ok {
		return Snapshot{}, false
	}
	s := a.snapshot()
	t.fillDistance(&s)
	return s, true
}

// Snapshot returns a copy of every tracked aircraft (§6 snapshot query).
func (t *Tracker) Snapshot() []Snapshot {
	t.Sweep(time.Now())
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Snapshot, 0, len(t.aircraft))
	for _, a := range t.aircraft {
		s := a.snapshot()
		t.fillDistance(&s)
		out = append(out, s)
	}
	return out
}

func (t *Tracker) fillDistance(s *Snapshot) {
	if !t.hasReceiver || !s.HasPosition {
		return
	}
	s.DistanceNM = haversineNM(t.receiverLat, t.receiverLon, s.Latitude, s.Longitude)
	s.HasDistance = true
}

// PositionHistory returns a copy of one aircraft's position trail.
func (t *Tracker) PositionHistory(icaoAddr uint32) ([]PositionFix, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.aircraft[icaoAddr]
	if !ok {
		return nil, false
	}
	out := make([]PositionFix, len(a.PositionHistory))
	copy(out, a.PositionHistory)
	return out, true
}

// RefreshCandidates rebuilds the ICAO-recovery candidate set from current
// tracker keys union recent history (§4.5 ICAO-recovery refresh).
func (t *Tracker) RefreshCandidates() {
	t.mu.RLock()
	addrs := make([]uint32, 0, len(t.aircraft))
	for k := range t.aircraft {
		addrs = append(addrs, k)
	}
	t.mu.RUnlock()

	if t.history != nil {
		recent, err := t.history.RecentICAOs(bits.ICAOCandidateHours)
		if err != nil {
			t.logger.WithError(err).Warn("failed to load recent icaos for candidate refresh")
		} else {
			addrs = append(addrs, recent...)
		}
	}
	t.candidates.Replace(addrs)
}

// RunCandidateRefresh periodically refreshes the ICAO candidate set until
// stop is closed.
func (t *Tracker) RunCandidateRefresh(stop <-chan struct{}) {
	ticker := time.NewTicker(bits.ICAOCandidateRefreshSec * time.Second)
	defer ticker.Stop()
	t.RefreshCandidates()
	for {
		select {
		case <-ticker.C:
			t.RefreshCandidates()
		case <-stop:
			return
		}
	}
}

func haversineNM(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	phi1, phi2 := toRad(lat1), toRad(lat2)
	dPhi := toRad(lat2 - lat1)
	dLambda := toRad(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return bits.EarthRadiusNM * c
}

// Bearing returns the initial bearing in degrees [0,360) from (lat1,lon1)
// to (lat2,lon2) (§4.6 geodesy).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	phi1, phi2 := toRad(lat1), toRad(lat2)
	dLambda := toRad(lon2 - lon1)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	brg := math.Atan2(y, x) * 180 / math.Pi
	if brg < 0 {
		brg += 360
	}
	return brg
}

// HaversineNM exposes the distance formula for the history store's
// coverage_analysis query so both packages share one implementation.
func HaversineNM(lat1, lon1, lat2, lon2 float64) float64 {
	return haversineNM(lat1, lon1, lat2, lon2)
}
