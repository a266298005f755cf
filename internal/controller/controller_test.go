// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestControllerStart(t *testing.T) {
	for _, tt := range []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "with a nil config",
			wantErr: true,
		},
		{
			name:    "with an empty config",
			config:  &Config{},
			wantErr: true,
		},
		{
			name: "with an unknown probe",
			config: &Config{
				MaxCPUs:         4,
				MaxCgroups:      8,
				RelayCapacity:   16,
				SampleInterval:  10 * time.Millisecond,
				ReportInterval:  20 * time.Millisecond,
				MonitorInterval: time.Second,
				Probes:          "cpu_usage,definitely_not_a_probe",
			},
			wantErr: true,
		},
		{
			name: "with a minimal valid config",
			config: &Config{
				MaxCPUs:         4,
				MaxCgroups:      8,
				RelayCapacity:   16,
				SampleInterval:  10 * time.Millisecond,
				ReportInterval:  20 * time.Millisecond,
				MonitorInterval: time.Second,
				Probes:          "cpu_usage,scheduler_runqueue",
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ctlr := New(tt.config)
			err := ctlr.Start(ctx)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			ctlr.TriggerPoll()
			ctlr.Shutdown()
		})
	}
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		return Config{
			MaxCPUs:         1024,
			MaxCgroups:      4096,
			RelayCapacity:   4096,
			SampleInterval:  10 * time.Millisecond,
			ReportInterval:  time.Second,
			MonitorInterval: 5 * time.Second,
			Probes:          "all",
		}
	}

	tests := map[string]struct {
		mutate  func(*Config)
		wantErr bool
	}{
		"defaults":                {mutate: func(*Config) {}},
		"zero cpus":               {mutate: func(c *Config) { c.MaxCPUs = 0 }, wantErr: true},
		"zero cgroups":            {mutate: func(c *Config) { c.MaxCgroups = 0 }, wantErr: true},
		"zero relay":              {mutate: func(c *Config) { c.RelayCapacity = 0 }, wantErr: true},
		"oversized relay":         {mutate: func(c *Config) { c.RelayCapacity = 1 << 30 }, wantErr: true},
		"report below sample":     {mutate: func(c *Config) { c.ReportInterval = time.Millisecond }, wantErr: true},
		"empty probe list":        {mutate: func(c *Config) { c.Probes = " , " }, wantErr: true},
		"explicit probe names ok": {mutate: func(c *Config) { c.Probes = "tcp_traffic,blockio_latency" }},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
