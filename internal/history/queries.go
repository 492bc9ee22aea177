package history

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"go1090/internal/tracker"
)

// RecentICAOs returns ICAOs last seen within the past `hours` (§4.6), used
// by the tracker to seed ICAO-recovery candidates.
func (s *Store) RecentICAOs(hours int) ([]uint32, error) {
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	rows, err := s.db.Query(`SELECT icao FROM aircraft WHERE last_seen > ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uint32
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, err
		}
		var addr uint32
		if _, err := fmt.Sscanf(hex, "%X", &addr); err != nil {
			continue
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

// PositionBucket is one row of the positions(hours, limit) aggregate.
type PositionBucket struct {
	Lat, Lon float64
	Count    int
}

// Positions returns rounded-lat/lon position buckets ordered by count desc,
// limited to `limit` rows (§4.6).
func (s *Store) Positions(hours, limit int) ([]PositionBucket, error) {
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	rows, err := s.db.Query(`
		SELECT ROUND(latitude, 2), ROUND(longitude, 2), COUNT(*) AS c
		FROM sightings
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL AND seen_at > ?
		GROUP BY ROUND(latitude, 2), ROUND(longitude, 2)
		ORDER BY c DESC
		LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PositionBucket
	for rows.Next() {
		var b PositionBucket
		if err := rows.Scan(&b.Lat, &b.Lon, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Sighting is one row of the sightings table (§4.6).
type Sighting struct {
	ICAO           uint32
	Callsign       string
	Latitude       sql.NullFloat64
	Longitude      sql.NullFloat64
	Altitude       sql.NullInt64
	Speed          sql.NullFloat64
	Heading        sql.NullFloat64
	Squawk         sql.NullString
	SignalStrength sql.NullFloat64
	SeenAt         time.Time
}

// AircraftHistory returns the latest N sightings for icao, newest first.
func (s *Store) AircraftHistory(addr uint32, limit int) ([]Sighting, error) {
	rows, err := s.db.Query(`
		SELECT icao, callsign, latitude, longitude, altitude, speed, heading, squawk, signal_strength, seen_at
		FROM sightings WHERE icao = ? ORDER BY seen_at DESC LIMIT ?`, icaoHex(addr), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var hex string
		var sgt Sighting
		if err := rows.Scan(&hex, &sgt.Callsign, &sgt.Latitude, &sgt.Longitude, &sgt.Altitude,
			&sgt.Speed, &sgt.Heading, &sgt.Squawk, &sgt.SignalStrength, &sgt.SeenAt); err != nil {
			return nil, err
		}
		fmt.Sscanf(hex, "%X", &sgt.ICAO)
		out = append(out, sgt)
	}
	return out, rows.Err()
}

// AltitudeBand is one of the five fixed bands used by coverage_analysis.
type AltitudeBand struct {
	Label      string
	MinFt      int
	MaxFt      int // -1 means unbounded
	Count      int
	MaxRangeNM float64
}

// SectorStats is the per-45-degree-sector breakdown of coverage_analysis.
type SectorStats struct {
	Sector     int // 0 = North, wraps clockwise
	Count      int
	MaxRangeNM float64
}

// CoverageReport is the full coverage_analysis aggregate (§4.6).
type CoverageReport struct {
	MaxRangeNM    float64
	AvgRangeNM    float64
	TopRecords    []Sighting
	Sectors       [8]SectorStats
	AltitudeBands []AltitudeBand
	RangeHistogram [30]int // bucket i = [i*10, (i+1)*10) nm; bucket 29 absorbs >=290nm
}

var altitudeBandDefs = []AltitudeBand{
	{Label: "0-10000", MinFt: 0, MaxFt: 10000},
	{Label: "10000-20000", MinFt: 10000, MaxFt: 20000},
	{Label: "20000-30000", MinFt: 20000, MaxFt: 30000},
	{Label: "30000-40000", MinFt: 30000, MaxFt: 40000},
	{Label: "40000+", MinFt: 40000, MaxFt: -1},
}

// CoverageAnalysis projects every non-null-position sighting in the last
// `hours` hours to (distance, bearing, altitude, signal) from (rxLat, rxLon)
// and aggregates per §4.6.
func (s *Store) CoverageAnalysis(rxLat, rxLon float64, hours int) (CoverageReport, error) {
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	rows, err := s.db.Query(`
		SELECT icao, callsign, latitude, longitude, altitude, speed, heading, squawk, signal_strength, seen_at
		FROM sightings
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL AND seen_at > ?`, cutoff)
	if err != nil {
		return CoverageReport{}, err
	}
	defer rows.Close()

	var report CoverageReport
	for i := range report.Sectors {
		report.Sectors[i].Sector = i
	}
	bands := make([]AltitudeBand, len(altitudeBandDefs))
	copy(bands, altitudeBandDefs)

	type distRow struct {
		s    Sighting
		dist float64
	}
	var all []distRow
	var sumRange float64
	var n int

	for rows.Next() {
		var hex string
		var sgt Sighting
		if err := rows.Scan(&hex, &sgt.Callsign, &sgt.Latitude, &sgt.Longitude, &sgt.Altitude,
			&sgt.Speed, &sgt.Heading, &sgt.Squawk, &sgt.SignalStrength, &sgt.SeenAt); err != nil {
			return CoverageReport{}, err
		}
		fmt.Sscanf(hex, "%X", &sgt.ICAO)

		dist := tracker.HaversineNM(rxLat, rxLon, sgt.Latitude.Float64, sgt.Longitude.Float64)
		bearing := tracker.Bearing(rxLat, rxLon, sgt.Latitude.Float64, sgt.Longitude.Float64)

		n++
		sumRange += dist
		if dist > report.MaxRangeNM {
			report.MaxRangeNM = dist
		}

		sector := sectorOf(bearing)
		report.Sectors[sector].Count++
		if dist > report.Sectors[sector].MaxRangeNM {
			report.Sectors[sector].MaxRangeNM = dist
		}

		if sgt.Altitude.Valid {
			bi := altitudeBandIndex(int(sgt.Altitude.Int64))
			bands[bi].Count++
			if dist > bands[bi].MaxRangeNM {
				bands[bi].MaxRangeNM = dist
			}
		}

		bucket := int(dist / 10)
		if bucket > 29 {
			bucket = 29
		}
		report.RangeHistogram[bucket]++

		all = append(all, distRow{s: sgt, dist: dist})
	}
	if err := rows.Err(); err != nil {
		return CoverageReport{}, err
	}

	if n > 0 {
		report.AvgRangeNM = sumRange / float64(n)
	}
	report.AltitudeBands = bands

	sort.Slice(all, func(i, j int) bool { return all[i].dist > all[j].dist })
	top := 10
	if len(all) < top {
		top = len(all)
	}
	for i := 0; i < top; i++ {
		report.TopRecords = append(report.TopRecords, all[i].s)
	}

	return report, nil
}

// sectorOf maps a bearing in [0,360) to one of 8 45-degree sectors, sector 0
// (North) spanning [337.5, 360) ∪ [0, 22.5) (§4.6).
func sectorOf(bearingDeg float64) int {
	shifted := math.Mod(bearingDeg+22.5, 360)
	if shifted < 0 {
		shifted += 360
	}
	return int(shifted / 45)
}

func altitudeBandIndex(altFt int) int {
	for i, b := range altitudeBandDefs {
		if b.MaxFt == -1 || altFt < b.MaxFt {
			if altFt >= b.MinFt {
				return i
			}
		}
	}
	return len(altitudeBandDefs) - 1
}

// BusiestHour is one row of a busiest-hours-of-day aggregate, supplementing
// §4.6's aggregate query set with the hour-of-day breakdown named in the
// domain stack.
type BusiestHour struct {
	Hour  int
	Count int
}

// BusiestHours buckets sightings by UTC hour-of-day over the trailing `days`
// days, most active first.
func (s *Store) BusiestHours(days int) ([]BusiestHour, error) {
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	rows, err := s.db.Query(`
		SELECT CAST(strftime('%H', seen_at) AS INTEGER) AS hr, COUNT(*) AS c
		FROM sightings WHERE seen_at > ?
		GROUP BY hr ORDER BY c DESC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BusiestHour
	for rows.Next() {
		var bh BusiestHour
		if err := rows.Scan(&bh.Hour, &bh.Count); err != nil {
			return nil, err
		}
		out = append(out, bh)
	}
	return out, rows.Err()
}
