// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/peterbourgon/ff/v3"

	"github.com/kernwatch/kernwatch/counterstore"
	"github.com/kernwatch/kernwatch/internal/controller"
	"github.com/kernwatch/kernwatch/relay"
)

const (
	// Default values for CLI flags
	defaultArgSampleInterval  = 10 * time.Millisecond
	defaultArgReportInterval  = 1 * time.Second
	defaultArgMonitorInterval = 5 * time.Second
	defaultClockSyncInterval  = 3 * time.Minute
	defaultArgMaxCPUs         = counterstore.MaxCPUs
	defaultArgMaxCgroups      = counterstore.MaxCgroups
	defaultArgRelayCapacity   = relay.DefaultCapacity
	defaultArgProbes          = "all"
)

// Help strings for command line arguments
var (
	clockSyncIntervalHelp = "Set the sync interval with the realtime clock. " +
		"If zero, monotonic-realtime clock sync will be performed once, " +
		"on agent startup, but not periodically."
	copyrightHelp       = "Show copyright and short license text."
	maxCPUsHelp         = "Maximum number of CPU cores tracked per system-wide counter family."
	maxCgroupsHelp      = "Maximum number of concurrently tracked cgroups."
	monitorIntervalHelp = "Set the agent self-monitoring interval."
	probesHelp          = "Comma-separated list of probes to enable, or 'all'."
	relayCapacityHelp = fmt.Sprintf("Capacity of the metadata relay ring, "+
		"rounded up to a power of two. Max is %d.", relay.MaxCapacity)
	reportIntervalHelp = "Set the sampler's reporting interval."
	sampleIntervalHelp = "Set the producer collection interval."
	verboseModeHelp    = "Enable verbose logging and debugging capabilities."
	versionHelp        = "Show version."
)

func parseArgs() (*controller.Config, error) {
	var args controller.Config

	fs := flag.NewFlagSet("kernwatch", flag.ExitOnError)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.DurationVar(&args.ClockSyncInterval, "clock-sync-interval",
		defaultClockSyncInterval, clockSyncIntervalHelp)

	fs.BoolVar(&args.Copyright, "copyright", false, copyrightHelp)

	fs.UintVar(&args.MaxCPUs, "max-cpus", defaultArgMaxCPUs, maxCPUsHelp)
	fs.UintVar(&args.MaxCgroups, "max-cgroups", defaultArgMaxCgroups,
		maxCgroupsHelp)

	fs.DurationVar(&args.MonitorInterval, "monitor-interval",
		defaultArgMonitorInterval, monitorIntervalHelp)

	fs.StringVar(&args.Probes, "probes", defaultArgProbes, probesHelp)

	fs.UintVar(&args.RelayCapacity, "relay-capacity", defaultArgRelayCapacity,
		relayCapacityHelp)

	fs.DurationVar(&args.ReportInterval, "report-interval",
		defaultArgReportInterval, reportIntervalHelp)
	fs.DurationVar(&args.SampleInterval, "sample-interval",
		defaultArgSampleInterval, sampleIntervalHelp)

	fs.BoolVar(&args.VerboseMode, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&args.VerboseMode, "verbose", false, verboseModeHelp)
	fs.BoolVar(&args.Version, "version", false, versionHelp)

	fs.Usage = func() {
		fs.PrintDefaults()
	}

	args.Fs = fs

	return &args, ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("KERNWATCH"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		// This will ignore configuration file (only) options that the
		// current agent does not recognize.
		ff.WithIgnoreUndefined(true),
		ff.WithAllowMissingConfigFile(true),
	)
}
