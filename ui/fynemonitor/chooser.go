// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fynemonitor

import (
	"github.com/gomlx/criterion"
	"github.com/gomlx/criterion/ui/commandline"
)

// EpochMonitor is the epoch-by-epoch display shared by the GUI window and
// the terminal monitor.
type EpochMonitor interface {
	StartEpoch(epoch, numBatches int)
	OnBatch(batchIndex int)
	EndEpoch()
}

// MonitorOrTerminal returns a GUI monitor window when a display is
// available, and otherwise a terminal progress bar for the criterion.
func MonitorOrTerminal(name string, crit *criterion.Criterion) EpochMonitor {
	if App != nil {
		return NewWindow(name, crit)
	}
	return commandline.NewMonitor(crit)
}
