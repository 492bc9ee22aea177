// Package message holds the decoded Mode S/ADS-B message record and the
// field-extraction helpers used by Decode. Grounded in the teacher's
// internal/adsb/message.go (message struct shape) and
// internal/app/extraction.go (bit-field extraction style).
package message

import "time"

// Kind enumerates what a Message was understood to carry.
type Kind int

const (
	KindUnknown Kind = iota
	KindIdentification
	KindSurfacePosition
	KindAirbornePosition
	KindVelocity
	KindIdentityReply
	KindCommB
)

// Velocity holds the fields decoded from a TC 19 airborne velocity message.
type Velocity struct {
	GroundSpeed  float64 // knots
	Heading      float64 // degrees [0,360)
	VerticalRate int     // ft/min
	IsAirspeed   bool
	Airspeed     float64
	IsTAS        bool
}

// EHS holds optional Comm-B / Enhanced Surveillance fields (§4.2).
type EHS struct {
	BDS             string
	SelectedAltFt   int
	HasSelectedAlt  bool
	RollDeg         float64
	HasRoll         bool
	MagHeadingDeg   float64
	HasMagHeading   bool
	IndicatedAirspd float64
	HasIAS          bool
}

// Message is a decoded Mode S frame (§3).
type Message struct {
	Raw       []byte
	NumBits   int
	Timestamp time.Time
	Signal    float64

	DF   int
	CA   int
	ICAO uint32
	TC   int

	CRCValid   bool
	CRCFixed   bool
	ErrorBit   int
	ICAORecovered bool

	Kind Kind

	Callsign string
	Altitude int
	HasAltitude bool

	OddFlag int
	LatCPR  uint32
	LonCPR  uint32
	HasCPR  bool

	Velocity   Velocity
	HasVelocity bool

	Squawk   string
	HasSquawk bool

	EHS    EHS
	HasEHS bool
}

// IsLong reports whether the frame is a 112-bit extended message.
func (m *Message) IsLong() bool { return m.NumBits == 112 }
