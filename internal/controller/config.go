// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "github.com/kernwatch/kernwatch/internal/controller"

import (
	"flag"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kernwatch/kernwatch/probes"
	"github.com/kernwatch/kernwatch/relay"
)

// Config holds the agent configuration after flag and environment
// parsing.
type Config struct {
	ClockSyncInterval time.Duration
	Copyright         bool
	MaxCPUs           uint
	MaxCgroups        uint
	MonitorInterval   time.Duration
	Probes            string
	RelayCapacity     uint
	ReportInterval    time.Duration
	SampleInterval    time.Duration
	VerboseMode       bool
	Version           bool

	Fs *flag.FlagSet
}

// Dump visits all flag sets, and dumps them all to debug
// Used for verbose mode logging.
func (cfg *Config) Dump() {
	log.Debug("Config:")
	cfg.Fs.VisitAll(func(f *flag.Flag) {
		log.Debugf("%s: %v", f.Name, f.Value)
	})
}

// Validate runs validations on the provided configuration, and returns
// errors if invalid values were provided.
func (cfg *Config) Validate() error {
	if cfg.MaxCPUs == 0 {
		return fmt.Errorf("invalid max-cpus %d", cfg.MaxCPUs)
	}
	if cfg.MaxCgroups == 0 {
		return fmt.Errorf("invalid max-cgroups %d", cfg.MaxCgroups)
	}
	if cfg.RelayCapacity == 0 || cfg.RelayCapacity > relay.MaxCapacity {
		return fmt.Errorf("relay-capacity %d out of range [1..%d]",
			cfg.RelayCapacity, relay.MaxCapacity)
	}
	if cfg.SampleInterval <= 0 {
		return fmt.Errorf("invalid sample-interval %v", cfg.SampleInterval)
	}
	if cfg.ReportInterval < cfg.SampleInterval {
		return fmt.Errorf("report-interval %v must not be below sample-interval %v",
			cfg.ReportInterval, cfg.SampleInterval)
	}
	if cfg.MonitorInterval <= 0 {
		return fmt.Errorf("invalid monitor-interval %v", cfg.MonitorInterval)
	}
	if _, err := cfg.selectedProbes(); err != nil {
		return err
	}
	return nil
}

// selectedProbes resolves the probes flag against the catalog.
func (cfg *Config) selectedProbes() ([]probes.Probe, error) {
	if strings.TrimSpace(cfg.Probes) == "all" {
		return probes.Catalog, nil
	}
	var selected []probes.Probe
	for _, name := range strings.Split(cfg.Probes, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p, ok := probes.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown probe %q", name)
		}
		selected = append(selected, p)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no probes selected")
	}
	return selected, nil
}
