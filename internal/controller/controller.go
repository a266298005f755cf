// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "github.com/kernwatch/kernwatch/internal/controller"

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kernwatch/kernwatch/cgroups"
	"github.com/kernwatch/kernwatch/counterstore"
	"github.com/kernwatch/kernwatch/metrics/agentmetrics"
	"github.com/kernwatch/kernwatch/probes"
	"github.com/kernwatch/kernwatch/probes/cpuperf"
	"github.com/kernwatch/kernwatch/relay"
	"github.com/kernwatch/kernwatch/sampler"
	"github.com/kernwatch/kernwatch/sampler/otelsink"
	"github.com/kernwatch/kernwatch/times"
)

// Controller is an instance that runs, manages and stops the agent.
type Controller struct {
	config *Config

	ring      *relay.Ring[cgroups.Record]
	table     *cgroups.NameTable
	registry  *cgroups.Registry
	sampler   *sampler.Sampler
	instances []*probes.Instance
	perf      *cpuperf.Producer

	stopSampler      func()
	stopAgentMetrics func()
}

// New creates a new controller. The controller owns the shared substrate
// the producers publish into, so there should only ever be one running.
func New(cfg *Config) *Controller {
	return &Controller{config: cfg}
}

// Registry exposes the cgroup registry so producers outside the built-in
// set can attribute their observations.
func (c *Controller) Registry() *cgroups.Registry {
	return c.registry
}

// TriggerPoll requests an immediate sampler poll.
func (c *Controller) TriggerPoll() {
	if c.sampler != nil {
		c.sampler.TriggerPoll()
	}
}

// Start starts the controller
// The controller should only be started once.
func (c *Controller) Start(ctx context.Context) error {
	if c.config == nil {
		return fmt.Errorf("no configuration provided")
	}
	if err := c.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runID := uuid.New()
	log.Infof("Agent run ID: %s", runID)

	intervals := times.New(c.config.SampleInterval, c.config.ReportInterval,
		c.config.MonitorInterval)

	// Start periodic synchronization with the realtime clock
	times.StartRealtimeSync(ctx, c.config.ClockSyncInterval)

	ring, err := relay.New[cgroups.Record](uint32(c.config.RelayCapacity))
	if err != nil {
		return fmt.Errorf("failed to create relay: %w", err)
	}
	c.ring = ring
	c.table = cgroups.NewNameTable(int(c.config.MaxCgroups))
	c.registry = cgroups.NewRegistry(int(c.config.MaxCgroups), ring)

	selected, err := c.config.selectedProbes()
	if err != nil {
		return err
	}

	sink := otelsink.New()
	smplr, err := sampler.New(ring, c.table, sink)
	if err != nil {
		return fmt.Errorf("failed to create sampler: %w", err)
	}
	smplr.SetRegistry(c.registry)
	c.sampler = smplr

	for _, p := range selected {
		inst, err := probes.Instantiate(p, int(c.config.MaxCPUs),
			int(c.config.MaxCgroups))
		if err != nil {
			return fmt.Errorf("failed to instantiate probe %s: %w", p.Name, err)
		}
		c.wireInstance(inst)
		c.instances = append(c.instances, inst)
		log.Debugf("Instantiated probe %s", p.Name)
	}
	log.Infof("Instantiated %d probes", len(c.instances))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stop, err := agentmetrics.Start(gctx, intervals.MonitorInterval())
		if err != nil {
			return fmt.Errorf("failed to start agent metrics: %w", err)
		}
		c.stopAgentMetrics = stop
		return nil
	})
	g.Go(func() error {
		return c.startPerfProducer(gctx, intervals)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.stopSampler = smplr.Start(ctx, intervals.ReportInterval())
	log.Info("Started sampler")

	return nil
}

// wireInstance attaches one probe instance's stores to the sampler and,
// for per-cgroup stores, to the registry's generation resets.
func (c *Controller) wireInstance(inst *probes.Instance) {
	if inst.Counters != nil {
		c.sampler.AddCounterStore(inst.Counters)
	}
	if inst.CgroupCounters != nil {
		c.sampler.AddCgroupCounterStore(inst.CgroupCounters)
		c.registry.AddResetter(inst.CgroupCounters)
	}
	for _, hist := range inst.Histograms {
		c.sampler.AddHistogramStore(hist)
	}
}

// startPerfProducer starts the hardware counter producer if the cpu_perf
// probe is selected. A host without a usable PMU only loses this probe.
func (c *Controller) startPerfProducer(ctx context.Context,
	intervals *times.Times) error {
	var store *counterstore.Store
	for _, inst := range c.instances {
		if inst.Probe.Name == "cpu_perf" {
			store = inst.Counters
			break
		}
	}
	if store == nil {
		return nil
	}
	producer, err := cpuperf.New(store)
	if err != nil {
		log.Warnf("Hardware counter producer unavailable: %v", err)
		return nil
	}
	producer.Start(ctx, intervals.SampleInterval())
	c.perf = producer
	log.Info("Started hardware counter producer")
	return nil
}

// Shutdown stops the controller
func (c *Controller) Shutdown() {
	log.Info("Stop processing ...")
	if c.stopSampler != nil {
		c.stopSampler()
	}
	if c.stopAgentMetrics != nil {
		c.stopAgentMetrics()
	}
	if c.perf != nil {
		c.perf.Close()
	}
}
