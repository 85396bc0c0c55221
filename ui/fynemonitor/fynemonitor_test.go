// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fynemonitor

import (
	"testing"

	"github.com/gomlx/criterion/ui/commandline"
	"github.com/stretchr/testify/require"
)

var (
	_ EpochMonitor = (*Window)(nil)
	_ EpochMonitor = (*commandline.Monitor)(nil)
)

func TestNilWindow(t *testing.T) {
	var win *Window
	win.StartEpoch(1, 10)
	win.OnBatch(0)
	win.EndEpoch()
	win.Done()
	win.Close()
	require.False(t, win.Cancelled())
}

func TestRunMainWithoutDisplay(t *testing.T) {
	t.Setenv("DISPLAY", "")
	require.False(t, HasWindows())
	ran := false
	RunMain(func() { ran = true })
	require.True(t, ran)
	require.Nil(t, App)
	require.Nil(t, NewWindow("test", nil))
}

func TestMonitorOrTerminal(t *testing.T) {
	t.Setenv("DISPLAY", "")
	mon := MonitorOrTerminal("test", nil)
	_, ok := mon.(*commandline.Monitor)
	require.True(t, ok)
}
