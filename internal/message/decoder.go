package message

import (
	"math"
	"strings"
	"time"

	"go1090/internal/bits"
	"go1090/internal/crc"
	"go1090/internal/icao"
)

// Decode parses a recovered bit frame into a Message (§4.2). It never
// returns an error for malformed input — per the error-handling design,
// signal/protocol problems simply yield ok=false, alongside the partially
// filled Message (CRC flags, DF) so the caller can count them.
func Decode(raw []byte, numBits int, signal float64, ts time.Time, fixErrors, crcCheck bool, candidates *icao.Candidates) (*Message, bool) {
	m := &Message{
		Raw:       raw,
		NumBits:   numBits,
		Timestamp: ts,
		Signal:    signal,
		DF:        int(bits.GetBits(raw, 0, 5)),
		CA:        int(bits.GetBits(raw, 5, 8)),
	}

	switch numBits {
	case bits.LongFrameBits:
		if !validateLong(m, raw, fixErrors, crcCheck) {
			return m, false
		}
		m.ICAO = uint32(bits.GetBits(raw, 8, 32))
		m.TC = int(bits.GetBits(raw, 32, 37))
		decodeLongBody(m, raw)
	case bits.ShortFrameBits:
		// Short-frame AP carries ICAO XOR CRC, not a standalone CRC;
		// recovery below is the real validation gate (§9).
		m.CRCValid = true
		addr, ok := icao.Recover(raw, candidates)
		if !ok {
			return m, false
		}
		m.ICAO = addr
		m.ICAORecovered = true
		decodeShortBody(m, raw)
	default:
		return m, false
	}

	return m, true
}

func validateLong(m *Message, raw []byte, fixErrors, crcCheck bool) bool {
	if !crcCheck {
		m.CRCValid = true
		return true
	}
	if crc.Valid112(raw) {
		m.CRCValid = true
		return true
	}
	if !fixErrors {
		return false
	}
	p, fixed := crc.CorrectSingleBit(raw)
	if !fixed {
		return false
	}
	m.CRCValid = true
	m.CRCFixed = true
	m.ErrorBit = p
	return true
}

func decodeLongBody(m *Message, raw []byte) {
	switch m.DF {
	case 17, 18:
		decodeExtendedSquitter(m, raw)
	case 20:
		decodeAltitudeField(m, raw)
		decodeCommB(m, raw)
	case 21:
		decodeSquawkField(m, raw)
		decodeCommB(m, raw)
	}
}

func decodeShortBody(m *Message, raw []byte) {
	switch m.DF {
	case 4:
		decodeAltitudeField(m, raw)
	case 5:
		decodeSquawkField(m, raw)
	}
}

func decodeExtendedSquitter(m *Message, raw []byte) {
	switch {
	case m.TC >= 1 && m.TC <= 4:
		m.Kind = KindIdentification
		m.Callsign = decodeCallsign(raw)
	case m.TC >= 5 && m.TC <= 8:
		m.Kind = KindSurfacePosition
		decodePositionFields(m, raw)
	case (m.TC >= 9 && m.TC <= 18) || (m.TC >= 20 && m.TC <= 22):
		m.Kind = KindAirbornePosition
		decodeBaroAltitude(m, raw)
		decodePositionFields(m, raw)
	case m.TC == 19:
		m.Kind = KindVelocity
		decodeVelocity(m, raw)
	}
}

// decodeCallsign reads 8 six-bit characters from ME[8..56) (raw bits
// [40..88)) — the ME header's leading 8 bits are TC (5) + category (3).
func decodeCallsign(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < 8; i++ {
		first := 40 + i*6
		c := bits.GetBits(raw, first, first+6)
		sb.WriteByte(bits.ADSBCharset[c])
	}
	return strings.TrimRight(sb.String(), "# ")
}

// decodeBaroAltitude implements the 12-bit ME[8..20) altitude field for TC
// 9-18 and 20-22: Q-bit (index 7 within the field) selects 25ft or
// Gillham-100ft encoding (§4.2).
func decodeBaroAltitude(m *Message, raw []byte) {
	field := bits.GetBits(raw, 40, 52) // ME bits [8..20) == raw bits [40..52)
	if (field>>4)&1 == 1 {
		n := ((field & 0xFE0) >> 1) | (field & 0xF)
		m.Altitude = int(n)*25 - 1000
	} else {
		m.Altitude = int(field)*100 - 1300
	}
	m.HasAltitude = true
}

// decodeAC13 decodes the 13-bit DF4/20 AC altitude field starting at
// firstBit: Q-bit (index 8 within the field) selects 25ft or Gillham-100ft
// encoding; the 25ft value is the field with its M (index 6) and Q bits
// removed.
func decodeAC13(raw []byte, firstBit int) int {
	field := bits.GetBits(raw, firstBit, firstBit+13)
	qBit := (field >> 4) & 1
	if qBit == 1 {
		n := ((field & 0x1F80) >> 2) | ((field & 0x0020) >> 1) | (field & 0x000F)
		return int(n)*25 - 1000
	}
	return int(field)*100 - 1300
}

func decodePositionFields(m *Message, raw []byte) {
	m.OddFlag = bits.GetBit(raw, 53)
	m.LatCPR = uint32(bits.GetBits(raw, 54, 71))
	m.LonCPR = uint32(bits.GetBits(raw, 71, 88))
	m.HasCPR = true
}

func decodeVelocity(m *Message, raw []byte) {
	subtype := int(bits.GetBits(raw, 37, 40)) // ME bits [5..8)
	v := Velocity{}
	switch subtype {
	case 1, 2:
		ewSign := bits.GetBit(raw, 45)
		ewMag := int(bits.GetBits(raw, 46, 56)) // 10 bits after sign
		nsSign := bits.GetBit(raw, 56)
		nsMag := int(bits.GetBits(raw, 57, 67))

		vew := float64(ewMag - 1)
		if ewMag == 0 {
			vew = 0
		}
		if ewSign == 1 {
			vew = -vew
		}
		vns := float64(nsMag - 1)
		if nsMag == 0 {
			vns = 0
		}
		if nsSign == 1 {
			vns = -vns
		}
		if subtype == 2 {
			vew *= 4
			vns *= 4
		}
		v.GroundSpeed = math.Round(math.Hypot(vew, vns))
		heading := math.Atan2(vew, vns) * 180 / math.Pi
		if heading < 0 {
			heading += 360
		}
		v.Heading = heading
	case 3, 4:
		// Positions by analogy with subtypes 1/2 (spec gives explicit
		// offsets there only): status bit at [45], heading [46..56),
		// airspeed-type bit at [56], airspeed [57..67).
		statusBit := bits.GetBit(raw, 45)
		if statusBit == 1 {
			hdg := bits.GetBits(raw, 46, 56)
			v.Heading = float64(hdg) * 360.0 / 1024.0
		}
		asT := bits.GetBit(raw, 56)
		as := bits.GetBits(raw, 57, 67)
		v.IsAirspeed = true
		v.IsTAS = asT == 1
		v.Airspeed = float64(as)
	}

	vrSign := bits.GetBit(raw, 68)
	vrMag := int(bits.GetBits(raw, 69, 78))
	vr := (vrMag - 1) * 64
	if vrMag == 0 {
		vr = 0
	}
	if vrSign == 1 {
		vr = -vr
	}
	v.VerticalRate = vr

	m.Velocity = v
	m.HasVelocity = true
}

// idField layout: C1 A1 C2 A2 C4 A4 X B1 D1 B2 D2 B4 D4 (§4.2).
func squawkFromIDField(id []int) string {
	c1, a1, c2, a2, c4, a4 := id[0], id[1], id[2], id[3], id[4], id[5]
	b1, d1, b2, d2, b4, d4 := id[7], id[8], id[9], id[10], id[11], id[12]

	a := 4*a4 + 2*a2 + a1
	b := 4*b4 + 2*b2 + b1
	c := 4*c4 + 2*c2 + c1
	d := 4*d4 + 2*d2 + d1

	digits := [4]int{a, b, c, d}
	var sb strings.Builder
	for _, v := range digits {
		sb.WriteByte(byte('0' + v))
	}
	return sb.String()
}

func decodeAltitudeField(m *Message, raw []byte) {
	m.Altitude = decodeAC13(raw, 19) // 13-bit AC field, raw bits [19..32)
	m.HasAltitude = true
}

func decodeSquawkField(m *Message, raw []byte) {
	id := make([]int, 13)
	for i := 0; i < 13; i++ {
		id[i] = bits.GetBit(raw, 19+i)
	}
	m.Squawk = squawkFromIDField(id)
	m.HasSquawk = true
}

func decodeCommB(m *Message, raw []byte) {
	// BDS candidates are tried in order; the first whose range checks
	// pass wins (§4.2).
	mb := func(first, last int) uint64 { return bits.GetBits(raw, 32+first, 32+last) }

	status0 := bits.GetBit(raw, 32)
	if status0 == 1 || bits.GetBit(raw, 32+13) == 1 {
		if status0 == 1 {
			alt := int(mb(1, 13)) * 16
			if alt >= 0 && alt <= 50000 {
				m.EHS.BDS = "4,0"
				m.EHS.HasSelectedAlt = true
				m.EHS.SelectedAltFt = alt
				m.HasEHS = true
				return
			}
		}
	}

	if bits.GetBit(raw, 32) == 1 || bits.GetBit(raw, 32+11) == 1 {
		signBit := bits.GetBit(raw, 32+1)
		mag := int(mb(2, 11))
		roll := float64(mag) * 45.0 / 256.0
		if signBit == 1 {
			roll = -roll
		}
		if math.Abs(roll) <= 90 {
			m.EHS.BDS = "5,0"
			m.EHS.HasRoll = true
			m.EHS.RollDeg = roll
			m.HasEHS = true
			return
		}
	}

	if bits.GetBit(raw, 32) == 1 || bits.GetBit(raw, 32+12) == 1 {
		hdg := float64(mb(1, 12)) * 90.0 / 512.0
		if hdg >= 0 && hdg <= 360 {
			ias := float64(mb(13, 23))
			if ias <= 500 {
				m.EHS.BDS = "6,0"
				m.EHS.HasMagHeading = true
				m.EHS.MagHeadingDeg = hdg
				m.EHS.HasIAS = true
				m.EHS.IndicatedAirspd = ias
				m.HasEHS = true
			}
		}
	}
}
