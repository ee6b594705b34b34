// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nishisan-dev/keydb/internal/events"
	"github.com/nishisan-dev/keydb/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// diagnostics is the listener's periodic metrics sampler: process
// metrics via gopsutil plus the storage engine's own StatsSnapshot,
// sampled on a ticker or an optional cron schedule.
type diagnostics struct {
	logger           *slog.Logger
	engine           store.Engine
	events           *events.Store
	connectionsInUse func() int

	interval time.Duration
	schedule string
}

// run samples on a cron schedule when one is configured, otherwise on a
// plain ticker, until shutdownCh is closed.
func (d *diagnostics) run(shutdownCh <-chan struct{}) {
	if d.schedule != "" {
		d.runCron(shutdownCh)
		return
	}
	d.runTicker(shutdownCh)
}

func (d *diagnostics) runTicker(shutdownCh <-chan struct{}) {
	interval := d.interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdownCh:
			return
		case <-ticker.C:
			d.sample()
		}
	}
}

func (d *diagnostics) runCron(shutdownCh <-chan struct{}) {
	c := cron.New()
	if _, err := c.AddFunc(d.schedule, d.sample); err != nil {
		d.logger.Error("invalid diagnostics cron schedule", "schedule", d.schedule, "error", err)
		<-shutdownCh
		return
	}
	c.Start()
	<-shutdownCh
	<-c.Stop().Done()
}

func (d *diagnostics) sample() {
	var cpuPercent, memPercent, load1 float64

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuPercent = pct[0]
	} else {
		d.logger.Debug("diagnostics: collecting cpu stats", "error", err)
	}
	if v, err := mem.VirtualMemory(); err == nil {
		memPercent = v.UsedPercent
	} else {
		d.logger.Debug("diagnostics: collecting memory stats", "error", err)
	}
	if l, err := load.Avg(); err == nil {
		load1 = l.Load1
	} else {
		d.logger.Debug("diagnostics: collecting load stats", "error", err)
	}

	connections := 0
	if d.connectionsInUse != nil {
		connections = d.connectionsInUse()
	}
	snap := d.engine.StatsSnapshot()

	d.logger.Info("diagnostics",
		"cpu_percent", cpuPercent,
		"memory_percent", memPercent,
		"load1", load1,
		"connections", connections,
		"backend", snap.Backend,
		"entries", snap.Entries,
	)

	if d.events != nil {
		d.events.Push(events.EventEntry{
			Level: "info",
			Type:  "diagnostics",
			Message: fmt.Sprintf(
				"cpu=%.1f%% mem=%.1f%% load1=%.2f connections=%d backend=%s entries=%d",
				cpuPercent, memPercent, load1, connections, snap.Backend, snap.Entries,
			),
		})
	}
}
