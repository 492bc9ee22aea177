package app

// Default configuration constants (§6).
const (
	DefaultFrequency  = 1090000000 // 1090 MHz
	DefaultSampleRate = 2000000    // 2 MS/s (§4.4)
	DefaultGain       = 496        // tenths of dB; "max"
	DefaultMaxRangeNM = 300
	DefaultHistoryDB  = "go1090_history.db"
)

// Config holds application configuration (§6 Configuration table).
type Config struct {
	DeviceIndex int
	Frequency   uint32
	SampleRate  uint32
	GainTenths  int // tenths of a dB; 0 means auto-gain

	ReceiverLat, ReceiverLon float64
	HasReceiver              bool
	MaxRangeNM               float64

	FixErrors bool
	CRCCheck  bool

	ShowOnlyICAO uint32
	HasShowOnly  bool

	SnipLevel float64
	DumpRawTo string

	BeastSourceAddr string // "host:port" of a Beast-protocol feed; empty disables

	HistoryDB string

	LogDir       string
	LogRotateUTC bool
	Verbose      bool
	ShowVersion  bool
}
