package app

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConstants(t *testing.T) {
	assert.EqualValues(t, 1090000000, DefaultFrequency)
	assert.EqualValues(t, 2000000, DefaultSampleRate)
	assert.Equal(t, 496, DefaultGain)
	assert.Equal(t, 300.0, float64(DefaultMaxRangeNM))
}

func TestShowVersion(t *testing.T) {
	assert.NotPanics(t, func() {
		ShowVersion()
	})
}

func TestNewApplicationSetsUpLoggerLevel(t *testing.T) {
	verbose := NewApplication(Config{Verbose: true, LogDir: "./test_logs"})
	assert.NotNil(t, verbose)
	assert.Equal(t, logrus.DebugLevel, verbose.logger.GetLevel())

	quiet := NewApplication(Config{Verbose: false, LogDir: "./test_logs"})
	assert.NotNil(t, quiet)
	assert.Equal(t, logrus.InfoLevel, quiet.logger.GetLevel())
}

func TestHistorySinkNilStoreYieldsNilInterface(t *testing.T) {
	sink := historySink(nil)
	assert.Nil(t, sink)
}

func TestMain(m *testing.M) {
	code := m.Run()
	os.RemoveAll("./test_logs")
	os.Exit(code)
}
