// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline displays criterion training progress on the
// terminal: a per-epoch batch progress bar plus a small table with the
// running mean of every objective column, redrawn in place. Under a GoNB
// notebook the table is skipped and only the bar is shown, since the
// cursor movements used to redraw it are not supported there.
package commandline

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/criterion"
	"github.com/gomlx/gomlx/ui/notebooks"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
var ProgressbarStyle = progressbar.ThemeASCII

// RefreshPeriod is the minimum time between stats table redraws.
var RefreshPeriod = 200 * time.Millisecond

var (
	labelStyle       = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	valueStyle       = lipgloss.NewStyle().Padding(0, 1)
	tableBorderColor = "#705090"
)

// Monitor renders the progress of one criterion's training run. Create it
// with NewMonitor and drive it with StartEpoch, OnBatch and EndEpoch.
type Monitor struct {
	crit       *criterion.Criterion
	inNotebook bool

	out        *termenv.Output
	statsTable *lgtable.Table
	statsStyle lipgloss.Style

	bar        *progressbar.ProgressBar
	numBatches int
	pending    int
	firstDraw  bool
	lastDraw   time.Time
}

// NewMonitor creates a monitor displaying the given criterion's running
// means on os.Stdout.
func NewMonitor(crit *criterion.Criterion) *Monitor {
	m := &Monitor{
		crit:       crit,
		inNotebook: notebooks.IsNotebook(),
	}
	if !m.inNotebook {
		m.out = termenv.NewOutput(os.Stdout)
		m.statsStyle = lipgloss.NewStyle().PaddingLeft(6)
		m.statsTable = lgtable.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
			StyleFunc(func(row, col int) lipgloss.Style {
				if col == 0 {
					return labelStyle
				}
				return valueStyle
			})
	}
	return m
}

// StartEpoch begins the display of one epoch of numBatches batches. Call
// it right after Criterion.StartRow.
func (m *Monitor) StartEpoch(epoch, numBatches int) {
	m.numBatches = numBatches
	m.pending = 0
	m.firstDraw = true
	m.lastDraw = time.Time{}
	m.bar = progressbar.NewOptions(numBatches,
		progressbar.OptionSetDescription(fmt.Sprintf("[bold]epoch %d[reset]", epoch)),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("batches"),
		progressbar.OptionSetTheme(ProgressbarStyle),
	)
}

// OnBatch advances the display after the given batch was combined. The
// stats table is redrawn at most every RefreshPeriod, and always on the
// last batch of the epoch.
func (m *Monitor) OnBatch(batchIndex int) {
	m.pending++
	last := batchIndex == m.numBatches-1
	if !last && time.Since(m.lastDraw) < RefreshPeriod {
		return
	}
	m.lastDraw = time.Now()

	means := m.crit.RunningMeans(batchIndex)
	if m.inNotebook || means == nil {
		_ = m.bar.Add(m.pending)
		m.pending = 0
		return
	}
	labels := m.crit.Labels()
	m.statsTable.Data(lgtable.NewStringData())
	for i, label := range labels {
		m.statsTable.Row(label, fmt.Sprintf("%.4f", means[i]))
	}

	// One frame is the bordered stats table plus the progress bar line.
	// The cursor backs up over the previous frame and overwrites it.
	m.out.HideCursor()
	if !m.firstDraw {
		m.out.CursorPrevLine(len(labels) + 3)
	}
	m.firstDraw = false
	fmt.Println(m.statsStyle.Render(m.statsTable.String()))
	_ = m.bar.Add(m.pending)
	m.pending = 0
	fmt.Println()
	m.out.ShowCursor()
}

// EndEpoch finishes the epoch's display, leaving its final frame on
// screen. Call it after Criterion.EndRow.
func (m *Monitor) EndEpoch() {
	if m.bar != nil && !m.bar.IsFinished() {
		_ = m.bar.Finish()
	}
	if m.out != nil {
		m.out.ShowCursor()
	}
	fmt.Println()
}
