package basestation

import (
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go1090/internal/logging"
	"go1090/internal/tracker"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	rotator, err := logging.NewLogRotator(t.TempDir(), false, logger)
	require.NoError(t, err)
	t.Cleanup(func() { rotator.Close() })

	return NewWriter(rotator, logger)
}

func TestWriteSnapshotIdentification(t *testing.T) {
	w := newTestWriter(t)
	err := w.WriteSnapshot(tracker.Snapshot{
		ICAO: 0x4840D6, Callsign: "KLM1023 ", LastSeen: time.Now(),
	})
	require.NoError(t, err)

	content, err := os.ReadFile(w.logRotator.GetCurrentLogFile())
	require.NoError(t, err)
	line := strings.TrimSpace(string(content))
	fields := strings.Split(line, ",")
	assert.Equal(t, "MSG", fields[0])
	assert.Equal(t, "4840D6", fields[4])
	assert.Equal(t, "KLM1023", fields[10])
}

func TestWriteSnapshotPositionAndVelocity(t *testing.T) {
	w := newTestWriter(t)
	err := w.WriteSnapshot(tracker.Snapshot{
		ICAO: 0xA05F21, LastSeen: time.Now(),
		Latitude: 52.25, Longitude: 3.91, HasPosition: true,
		Altitude: 38000, HasAltitude: true,
		GroundSpeed: 450, Heading: 182.9, HasVelocity: true,
		VerticalRate: -1000,
	})
	require.NoError(t, err)

	content, err := os.ReadFile(w.logRotator.GetCurrentLogFile())
	require.NoError(t, err)
	line := strings.TrimSpace(string(content))
	assert.Contains(t, line, "52.250000")
	assert.Contains(t, line, "38000")
	assert.Contains(t, line, "450")
}

func TestFormatCSVFieldOrder(t *testing.T) {
	w := newTestWriter(t)
	csv := w.formatCSV(&Message{
		MessageType: MSG, TransmissionType: TransmissionSURVEILLANCE,
		SessionID: 1, AircraftID: 1, HexIdent: "ABCDEF", FlightID: 1,
		DateGenerated: time.Unix(0, 0), TimeGenerated: time.Unix(0, 0),
		DateLogged: time.Unix(0, 0), TimeLogged: time.Unix(0, 0),
		Squawk: "7700",
	})
	assert.True(t, strings.HasPrefix(csv, "MSG,5,1,1,ABCDEF,1,"))
	assert.Contains(t, csv, "7700")
}
