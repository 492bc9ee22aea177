package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"go1090/internal/basestation"
	"go1090/internal/bits"
	"go1090/internal/history"
	"go1090/internal/ingest"
	"go1090/internal/logging"
	"go1090/internal/rtlsdr"
	"go1090/internal/tracker"
)

// Application wires the SDR source, demod/decode ingest pipeline, tracker
// and persistence/export sinks together, and owns their lifecycle.
// Structurally grounded in the teacher's root Application (component fields,
// NewApplication/Start/run/shutdown shape, signal handling), generalized
// from its single ADSBProcessor/CPRDecoder pair onto this system's
// ingest+tracker+history pipeline.
type Application struct {
	config     Config
	logger     *logrus.Logger
	sdr        *rtlsdr.RTLSDRDevice
	pipeline   *ingest.Pipeline
	tracker    *tracker.Tracker
	store      *history.Store
	baseStn    *basestation.Writer
	logRotator *logging.LogRotator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApplication creates a new application instance.
func NewApplication(config Config) *Application {
	ctx, cancel := context.WithCancel(context.Background())

	logger := logrus.New()
	if config.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Application{
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start initializes every component and runs until a shutdown signal
// arrives.
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}).Info("starting go1090 receiver")

	if err := app.initializeComponents(); err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	app.run()

	<-sigChan
	app.logger.Info("received shutdown signal")
	app.shutdown()

	return nil
}

func (app *Application) initializeComponents() error {
	var err error

	app.sdr, err = rtlsdr.NewRTLSDRDevice(app.config.DeviceIndex)
	if err != nil {
		return fmt.Errorf("failed to initialize RTL-SDR: %w", err)
	}
	gain := app.config.GainTenths / 10
	if err := app.sdr.Configure(app.config.Frequency, app.config.SampleRate, gain); err != nil {
		return fmt.Errorf("failed to configure RTL-SDR: %w", err)
	}

	app.logRotator, err = logging.NewLogRotator(app.config.LogDir, app.config.LogRotateUTC, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize log rotator: %w", err)
	}
	app.baseStn = basestation.NewWriter(app.logRotator, app.logger)

	if app.config.HistoryDB != "" {
		app.store, err = history.Open(app.config.HistoryDB)
		if err != nil {
			return fmt.Errorf("failed to open history store: %w", err)
		}
	}

	app.tracker = tracker.New(tracker.Options{
		Logger:       app.logger,
		History:      historySink(app.store),
		ReceiverLat:  app.config.ReceiverLat,
		ReceiverLon:  app.config.ReceiverLon,
		HasReceiver:  app.config.HasReceiver,
		MaxRangeNM:   app.config.MaxRangeNM,
		ShowOnlyICAO: app.config.ShowOnlyICAO,
		HasShowOnly:  app.config.HasShowOnly,
	})

	app.pipeline, err = ingest.New(ingest.Options{
		Logger:    app.logger,
		FixErrors: app.config.FixErrors,
		CRCCheck:  app.config.CRCCheck,
		SnipLevel: app.config.SnipLevel,
		DumpRawTo: app.config.DumpRawTo,
	}, app.tracker.Candidates())
	if err != nil {
		return fmt.Errorf("failed to initialize ingest pipeline: %w", err)
	}

	return nil
}

// historySink adapts a possibly-nil *history.Store to a possibly-nil
// tracker.HistorySink without the typed-nil-interface trap: a nil *Store
// stored directly in a HistorySink interface would be non-nil to the
// tracker's `t.history != nil` checks.
func historySink(s *history.Store) tracker.HistorySink {
	if s == nil {
		return nil
	}
	return s
}

func (app *Application) run() {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.logRotator.Start(app.ctx)
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.pipeline.Run(app.ctx, app.sdr); err != nil {
			app.logger.WithError(err).Error("ingest pipeline stopped")
		}
	}()

	if app.config.BeastSourceAddr != "" {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.runBeastSource()
		}()
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.consumeMessages()
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.sweepLoop()
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.tracker.RunCandidateRefresh(app.ctx.Done())
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.broadcastLoop()
	}()

	app.logger.Info("all components started")
}

// consumeMessages feeds decoded messages into the tracker and exports each
// updated snapshot in BaseStation format (§4.5 steps 1-7).
func (app *Application) consumeMessages() {
	for {
		select {
		case <-app.ctx.Done():
			return
		case msg, ok := <-app.pipeline.Messages:
			if !ok {
				return
			}
			app.tracker.Update(msg)
			if snap, ok := app.tracker.Get(msg.ICAO); ok {
				if err := app.baseStn.WriteSnapshot(snap); err != nil {
					app.logger.WithError(err).Debug("failed to write BaseStation record")
				}
			}
		}
	}
}

// runBeastSource dials the configured Beast-protocol feed and decodes it
// alongside the RF pipeline, redialing on disconnect until ctx is
// cancelled (§6 supplemented feature: Beast protocol ingest).
func (app *Application) runBeastSource() {
	for {
		select {
		case <-app.ctx.Done():
			return
		default:
		}

		conn, err := net.Dial("tcp", app.config.BeastSourceAddr)
		if err != nil {
			app.logger.WithError(err).WithField("addr", app.config.BeastSourceAddr).
				Warn("failed to dial beast source, retrying")
			select {
			case <-app.ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

		err = app.pipeline.RunBeast(app.ctx, conn)
		conn.Close()
		if err != nil {
			app.logger.WithError(err).Warn("beast source connection ended")
		}

		select {
		case <-app.ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// sweepLoop periodically expires stale aircraft (§4.5).
func (app *Application) sweepLoop() {
	ticker := time.NewTicker(time.Duration(bits.AircraftTimeoutSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			app.tracker.Sweep(time.Now())
		}
	}
}

// broadcastLoop publishes a full snapshot to subscribers every
// WEBSOCKET_BROADCAST_SEC, per §5's periodic broadcaster thread and §6's
// periodic full-list event. It subscribes to the tracker's full-list
// channel itself and drains it, standing in for the websocket/HTTP consumer
// that §1's Non-goals put out of scope — a real consumer wires in the same
// way via tracker.SubscribeFull.
func (app *Application) broadcastLoop() {
	fullCh := app.tracker.SubscribeFull()
	defer app.tracker.UnsubscribeFull(fullCh)

	ticker := time.NewTicker(time.Duration(bits.WebsocketBroadcastSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			app.tracker.BroadcastSnapshot()
		case snaps := <-fullCh:
			app.logger.WithField("aircraft", len(snaps)).Debug("periodic snapshot broadcast")
		}
	}
}

func (app *Application) shutdown() {
	app.logger.Info("shutting down application")
	app.cancel()

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		app.logger.Info("all goroutines finished")
	case <-time.After(5 * time.Second):
		app.logger.Warn("shutdown timeout, forcing exit")
	}

	if app.sdr != nil {
		app.sdr.Close()
	}
	if app.pipeline != nil {
		app.pipeline.Close()
	}
	if app.logRotator != nil {
		app.logRotator.Close()
	}
	if app.store != nil {
		app.store.Close()
	}

	app.logger.Info("shutdown completed")
}
