package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"go1090/internal/app"
)

func main() {
	var config app.Config
	var gainFlag string
	var receiverLat, receiverLon float64
	var showOnlyHex string

	rootCmd := &cobra.Command{
		Use:   "go1090",
		Short: "1090 MHz Mode S / ADS-B receiver",
		Long: `A 1090 MHz Mode S / ADS-B receiver.

Captures I/Q samples from an RTL-SDR at 2 MS/s, demodulates Mode S frames,
validates and optionally corrects their CRC, decodes ADS-B and Comm-B
fields, resolves CPR positions, tracks aircraft state, and persists
sightings for later aggregate queries.

Example usage:
  go1090 --frequency 1090000000 --gain max --receiver-lat 52.31 --receiver-lon 4.76`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.ShowVersion {
				app.ShowVersion()
				return nil
			}

			gainTenths, err := parseGain(gainFlag)
			if err != nil {
				return err
			}
			config.GainTenths = gainTenths

			hasLat := cmd.Flags().Changed("receiver-lat")
			hasLon := cmd.Flags().Changed("receiver-lon")
			if hasLat != hasLon {
				return fmt.Errorf("--receiver-lat and --receiver-lon must be supplied together")
			}
			if hasLat && hasLon {
				config.ReceiverLat = receiverLat
				config.ReceiverLon = receiverLon
				config.HasReceiver = true
			}

			if showOnlyHex != "" {
				addr, err := strconv.ParseUint(strings.TrimPrefix(showOnlyHex, "0x"), 16, 32)
				if err != nil {
					return fmt.Errorf("invalid --show-only ICAO %q: %w", showOnlyHex, err)
				}
				config.ShowOnlyICAO = uint32(addr)
				config.HasShowOnly = true
			}

			application := app.NewApplication(config)
			return application.Start()
		},
	}

	flags := rootCmd.Flags()
	flags.IntVarP(&config.DeviceIndex, "device", "d", 0, "RTL-SDR device index")
	flags.Uint32VarP(&config.Frequency, "frequency", "f", app.DefaultFrequency, "Tuner frequency (Hz)")
	flags.Uint32VarP(&config.SampleRate, "sample-rate", "s", app.DefaultSampleRate, "Sample rate (Hz)")
	flags.StringVarP(&gainFlag, "gain", "g", "max", `Gain: "max" or a decibel value`)

	flags.Float64Var(&receiverLat, "receiver-lat", 0, "Receiver latitude anchor (requires --receiver-lon)")
	flags.Float64Var(&receiverLon, "receiver-lon", 0, "Receiver longitude anchor (requires --receiver-lat)")
	flags.Float64Var(&config.MaxRangeNM, "max-range-nm", app.DefaultMaxRangeNM, "Discard positions beyond this range from the receiver anchor")

	flags.BoolVar(&config.FixErrors, "fix-errors", true, "Enable single-bit CRC correction")
	flags.BoolVar(&config.CRCCheck, "crc-check", true, "Enable CRC validation (disabling accepts all frames)")
	flags.StringVar(&showOnlyHex, "show-only", "", "Track only this ICAO hex address")
	flags.Float64Var(&config.SnipLevel, "snip-level", 0, "Drop magnitude samples below this threshold before demodulation")
	flags.StringVar(&config.DumpRawTo, "dump-raw", "", "Write raw I/Q samples to this path for replay")
	flags.StringVar(&config.BeastSourceAddr, "beast-source", "", "host:port of a Beast-protocol feed to ingest alongside the RTL-SDR")

	flags.StringVar(&config.HistoryDB, "history-db", app.DefaultHistoryDB, "SQLite history database path")

	flags.StringVarP(&config.LogDir, "log-dir", "l", "./logs", "BaseStation log directory")
	flags.BoolVarP(&config.LogRotateUTC, "utc", "u", true, "Use UTC for log rotation")
	flags.BoolVarP(&config.Verbose, "verbose", "v", false, "Verbose logging")
	flags.BoolVar(&config.ShowVersion, "version", false, "Show version information")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseGain converts the --gain flag ("max" or a decibel string) into
// tenths of a dB (§6).
func parseGain(raw string) (int, error) {
	if strings.EqualFold(raw, "max") {
		return 496, nil
	}
	db, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid --gain %q: %w", raw, err)
	}
	return int(db * 10), nil
}
