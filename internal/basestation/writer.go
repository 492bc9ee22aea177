package basestation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"go1090/internal/logging"
	"go1090/internal/tracker"
)

// BaseStation message types
const (
	SEL = "SEL" // Selection Change
	ID  = "ID"  // New ID
	AIR = "AIR" // New Aircraft
	STA = "STA" // Status Change
	CLK = "CLK" // Click
	MSG = "MSG" // Transmission
)

// BaseStation transmission types
const (
	TransmissionES_ID_CAT       = 1 // Extended Squitter Aircraft ID and Category
	TransmissionES_SURFACE      = 2 // Extended Squitter Surface Position
	TransmissionES_AIRBORNE     = 3 // Extended Squitter Airborne Position
	TransmissionES_VELOCITY     = 4 // Extended Squitter Airborne Velocity
	TransmissionSURVEILLANCE    = 5 // Surveillance Alt, Squawk change
	TransmissionSURVEILLANCE_ID = 6 // Surveillance ID change
	TransmissionAIR_TO_AIR      = 7 // Air-to-Air Message
	TransmissionALL_CALL        = 8 // All Call Reply
)

// Message represents a BaseStation format message
type Message struct {
	MessageType      string
	TransmissionType int
	SessionID        int
	AircraftID       int
	HexIdent         string
	FlightID         int
	DateGenerated    time.Time
	TimeGenerated    time.Time
	DateLogged       time.Time
	TimeLogged       time.Time
	Callsign         string
	Altitude         string
	GroundSpeed      string
	Track            string
	Latitude         string
	Longitude        string
	VerticalRate     string
	Squawk           string
	Alert            string
	Emergency        string
	SPI              string
	IsOnGround       string
}

// Writer writes messages in BaseStation format
type Writer struct {
	logRotator *logging.LogRotator
	logger     *logrus.Logger
	sessionID  int
	aircraftID int
}

// NewWriter creates a new BaseStation writer
func NewWriter(logRotator *logging.LogRotator, logger *logrus.Logger) *Writer {
	return &Writer{
		logRotator: logRotator,
		logger:     logger,
		sessionID:  1,
		aircraftID: 1,
	}
}

// WriteSnapshot writes a tracker snapshot in BaseStation format. It
// consumes the tracker's already-merged aircraft state directly, so
// position and velocity fields reflect the full CPR-resolved and
// EMA-smoothed picture rather than a single frame's raw bits.
func (w *Writer) WriteSnapshot(snap tracker.Snapshot) error {
	now := time.Now().UTC()
	msg := &Message{
		MessageType:      MSG,
		TransmissionType: TransmissionSURVEILLANCE,
		SessionID:        w.sessionID,
		AircraftID:       w.aircraftID,
		FlightID:         w.aircraftID,
		HexIdent:         fmt.Sprintf("%06X", snap.ICAO),
		DateGenerated:    snap.LastSeen,
		TimeGenerated:    snap.LastSeen,
		DateLogged:       now,
		TimeLogged:       now,
		Callsign:         strings.TrimSpace(snap.Callsign),
	}

	if snap.HasPosition {
		msg.TransmissionType = TransmissionES_AIRBORNE
		msg.Latitude = fmt.Sprintf("%.6f", snap.Latitude)
		msg.Longitude = fmt.Sprintf("%.6f", snap.Longitude)
	}
	if snap.HasAltitude {
		msg.Altitude = strconv.Itoa(snap.Altitude)
	}
	if snap.HasVelocity {
		msg.TransmissionType = TransmissionES_VELOCITY
		msg.GroundSpeed = fmt.Sprintf("%.0f", snap.GroundSpeed)
		msg.Track = fmt.Sprintf("%.1f", snap.Heading)
		if snap.VerticalRate != 0 {
			msg.VerticalRate = strconv.Itoa(snap.VerticalRate)
		}
	}
	if snap.HasSquawk {
		msg.Squawk = snap.Squawk
	}
	if msg.Callsign != "" {
		msg.TransmissionType = TransmissionES_ID_CAT
	}

	csvLine := w.formatCSV(msg)
	writer, err := w.logRotator.GetWriter()
	if err != nil {
		return fmt.Errorf("failed to get log writer: %w", err)
	}
	if _, err := writer.Write([]byte(csvLine + "\n")); err != nil {
		return fmt.Errorf("failed to write to log: %w", err)
	}
	return nil
}

// formatCSV formats a BaseStation message as CSV
func (w *Writer) formatCSV(msg *Message) string {
	fields := []string{
		msg.MessageType,
		strconv.Itoa(msg.TransmissionType),
		strconv.Itoa(msg.SessionID),
		strconv.Itoa(msg.AircraftID),
		msg.HexIdent,
		strconv.Itoa(msg.FlightID),
		msg.DateGenerated.Format("2006/01/02"),
		msg.TimeGenerated.Format("15:04:05.000"),
		msg.DateLogged.Format("2006/01/02"),
		msg.TimeLogged.Format("15:04:05.000"),
		msg.Callsign,
		msg.Altitude,
		msg.GroundSpeed,
		msg.Track,
		msg.Latitude,
		msg.Longitude,
		msg.VerticalRate,
		msg.Squawk,
		msg.Alert,
		msg.Emergency,
		msg.SPI,
		msg.IsOnGround,
	}

	return strings.Join(fields, ",")
}

