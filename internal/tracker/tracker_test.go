package tracker

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go1090/internal/message"
)

func newTestTracker() *Tracker {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return New(Options{Logger: logger})
}

func TestUpdateCreatesAircraftAndSetsCallsign(t *testing.T) {
	tr := newTestTracker()
	msg := &message.Message{
		ICAO: 0x4840D6, CRCValid: true, Kind: message.KindIdentification,
		Callsign: "KLM1023", Timestamp: time.Now(), Signal: 0.5,
	}
	tr.Update(msg)

	snap, ok := tr.Get(0x4840D6)
	require.True(t, ok)
	assert.Equal(t, "KLM1023", snap.Callsign)
	assert.Equal(t, 0.5, snap.SignalStrength)
}

func TestEMAComputation(t *testing.T) {
	assert.Equal(t, 0.5, ema(0, 0.5, false))
	got := ema(0.5, 0.8, true)
	assert.Equal(t, round6(0.7*0.5+0.3*0.8), got)
}

func TestInvalidCRCMessageIgnored(t *testing.T) {
	tr := newTestTracker()
	tr.Update(&message.Message{ICAO: 0x1, CRCValid: false})
	_, ok := tr.Get(0x1)
	assert.False(t, ok)
}

func TestShowOnlyFilter(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	tr := New(Options{Logger: logger, ShowOnlyICAO: 0xAAAAAA, HasShowOnly: true})

	tr.Update(&message.Message{ICAO: 0xBBBBBB, CRCValid: true, Timestamp: time.Now()})
	_, ok := tr.Get(0xBBBBBB)
	assert.False(t, ok)

	tr.Update(&message.Message{ICAO: 0xAAAAAA, CRCValid: true, Timestamp: time.Now()})
	_, ok = tr.Get(0xAAAAAA)
	assert.True(t, ok)
}

func TestSweepExpiresStaleAircraft(t *testing.T) {
	tr := newTestTracker()
	old := time.Now().Add(-2 * time.Minute)
	tr.Update(&message.Message{ICAO: 0x1, CRCValid: true, Timestamp: old})

	tr.Sweep(time.Now())
	_, ok := tr.Get(0x1)
	assert.False(t, ok)
}

func TestPositionHistoryCapAndEviction(t *testing.T) {
	tr := newTestTracker()
	base := time.Now()
	for i := 0; i < 150; i++ {
		tr.Update(&message.Message{
			ICAO: 0x2, CRCValid: true, Timestamp: base.Add(time.Duration(i) * time.Second),
			HasCPR: true, OddFlag: i % 2, LatCPR: uint32(50000 + i), LonCPR: uint32(60000 + i),
		})
	}
	hist, ok := tr.PositionHistory(0x2)
	require.True(t, ok)
	assert.LessOrEqual(t, len(hist), 100)

	// Updates 1..149 each resolve a fix; the oldest 49 are evicted and
	// 50..149 remain in arrival order.
	require.Len(t, hist, 100)
	assert.True(t, hist[0].At.Equal(base.Add(50*time.Second)))
	assert.True(t, hist[len(hist)-1].At.Equal(base.Add(149*time.Second)))
}

func TestSubscribeBroadcastsUpdates(t *testing.T) {
	tr := newTestTracker()
	ch := tr.Subscribe()
	defer tr.Unsubscribe(ch)

	tr.Update(&message.Message{ICAO: 0x3, CRCValid: true, Timestamp: time.Now(), Kind: message.KindIdentification, Callsign: "TEST123"})

	select {
	case snap := <-ch:
		assert.Equal(t, uint32(0x3), snap.ICAO)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast snapshot")
	}
}

func TestSubscribeFullDeliversSnapshotList(t *testing.T) {
	tr := newTestTracker()
	ch := tr.SubscribeFull()
	defer tr.UnsubscribeFull(ch)

	tr.Update(&message.Message{ICAO: 0x4, CRCValid: true, Timestamp: time.Now()})
	snaps := tr.BroadcastSnapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, uint32(0x4), snaps[0].ICAO)

	select {
	case got := <-ch:
		require.Len(t, got, 1)
		assert.Equal(t, uint32(0x4), got[0].ICAO)
	case <-time.After(time.Second):
		t.Fatal("expected a full-list broadcast")
	}
}

func TestBroadcastFullDropsOldestWhenChannelFull(t *testing.T) {
	tr := newTestTracker()
	ch := tr.SubscribeFull()
	defer tr.UnsubscribeFull(ch)

	tr.broadcastFull([]Snapshot{{ICAO: 0x1}})
	tr.broadcastFull([]Snapshot{{ICAO: 0x2}})

	select {
	case got := <-ch:
		require.Len(t, got, 1)
		assert.Equal(t, uint32(0x2), got[0].ICAO)
	case <-time.After(time.Second):
		t.Fatal("expected the freshest full-list broadcast")
	}
}

func TestUnsubscribeFullClosesChannel(t *testing.T) {
	tr := newTestTracker()
	ch := tr.SubscribeFull()
	tr.UnsubscribeFull(ch)

	_, open := <-ch
	assert.False(t, open)
}

func TestHaversineAndBearing(t *testing.T) {
	dist := HaversineNM(0, 0, 0, 1)
	assert.InDelta(t, 60.04, dist, 1)

	brg := Bearing(0, 0, 1, 0)
	assert.InDelta(t, 0, brg, 0.5)
}
