// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fynemonitor shows a live training-monitor window for a
// criterion: a per-epoch progress bar and the running mean of every
// objective column, the GUI counterpart of ui/commandline.
//
// Fyne insists on owning the program's main goroutine, so wrap your main
// function:
//
//	func main() {
//		fynemonitor.RunMain(mainContinue)
//	}
//
//	func mainContinue() {
//		// usual main() code, creating the window with NewWindow.
//	}
//
// Without a graphical display RunMain just calls the function directly and
// NewWindow returns nil, which every method accepts.
package fynemonitor

import (
	"fmt"
	"os"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
	"github.com/gomlx/criterion"
	"github.com/gomlx/gomlx/types/xsync"
)

// App holds the current Fyne App singleton, created by RunMain when a
// display is available.
var App fyne.App

var (
	numWindowsOpened   int
	muNumWindowsOpened sync.Mutex
	condNumWindowsOpen = sync.NewCond(&muNumWindowsOpened)
)

// HasWindows checks if the environment has a graphical display available
// by verifying the DISPLAY environment variable.
func HasWindows() bool {
	return os.Getenv("DISPLAY") != ""
}

// RunMain executes main on a separate goroutine, reserving the current one
// for the Fyne event loop. Without a display it simply calls main.
func RunMain(main func()) {
	if !HasWindows() {
		main()
		return
	}
	done := xsync.NewLatch()
	go func() {
		main()
		done.Trigger()
		WaitForWindows()
	}()
	App = app.New()
	App.Run()
	condNumWindowsOpen.L.Lock()
	numWindowsOpened = 0
	condNumWindowsOpen.Broadcast()
	condNumWindowsOpen.L.Unlock()
	done.Wait()
}

// WaitForWindows blocks until every monitor window was closed by the user.
func WaitForWindows() {
	condNumWindowsOpen.L.Lock()
	defer condNumWindowsOpen.L.Unlock()
	for numWindowsOpened > 0 {
		condNumWindowsOpen.Wait()
	}
}

// Window is the training-monitor window of one criterion. All methods are
// safe on a nil receiver, so code can run unchanged without a display.
type Window struct {
	Name string

	Win          fyne.Window
	ProgressBar  *widget.ProgressBar
	EpochText    *widget.Label
	SpeedText    *widget.Label
	MeansForm    *widget.Form
	CancelButton *widget.Button

	crit            *criterion.Criterion
	updateFrequency time.Duration
	lastUpdate      time.Time

	epoch      int
	numBatches int

	speedFromTime  time.Time
	speedFromBatch int

	muCancel  sync.Mutex
	cancelled bool
}

// NewWindow opens a monitor window for the criterion. It returns nil when
// no display is available.
func NewWindow(name string, crit *criterion.Criterion) *Window {
	if App == nil {
		return nil
	}
	muNumWindowsOpened.Lock()
	defer muNumWindowsOpened.Unlock()

	win := &Window{
		Name:            name,
		crit:            crit,
		updateFrequency: time.Second / 5,

		ProgressBar: widget.NewProgressBar(),
		EpochText:   widget.NewLabel("Waiting for the first epoch"),
		SpeedText:   widget.NewLabel("(compiling)"),
	}
	win.CancelButton = widget.NewButton("Cancel", func() {
		win.muCancel.Lock()
		win.cancelled = true
		win.muCancel.Unlock()
		win.Close()
	})

	items := make([]*widget.FormItem, 0, len(crit.Labels()))
	for _, label := range crit.Labels() {
		items = append(items, widget.NewFormItem(label, widget.NewRichTextWithText(" - ")))
	}
	win.MeansForm = widget.NewForm(items...)

	win.EpochText.Alignment = fyne.TextAlignCenter
	win.EpochText.TextStyle = fyne.TextStyle{Bold: true}
	win.EpochText.Importance = widget.HighImportance
	bottomBar := container.NewBorder(nil, nil, nil, win.SpeedText, win.ProgressBar)
	buttonStrip := container.NewHBox(layout.NewSpacer(), win.CancelButton)
	mainVBox := container.NewVBox(win.EpochText, win.MeansForm, bottomBar, buttonStrip)

	w := App.NewWindow(win.Name)
	w.SetContent(mainVBox)
	w.Resize(fyne.NewSize(480, 20))
	w.Show()
	win.Win = w
	numWindowsOpened++
	return win
}

// Close closes the window and wakes up WaitForWindows when it was the last
// one.
func (win *Window) Close() {
	if win == nil {
		return
	}
	condNumWindowsOpen.L.Lock()
	win.Win.Close()
	numWindowsOpened--
	if numWindowsOpened <= 0 {
		condNumWindowsOpen.Broadcast()
	}
	condNumWindowsOpen.L.Unlock()
}

// Cancelled reports whether the user clicked Cancel. Callers check it once
// per batch and stop training when set.
func (win *Window) Cancelled() bool {
	if win == nil {
		return false
	}
	win.muCancel.Lock()
	defer win.muCancel.Unlock()
	return win.cancelled
}

// StartEpoch resets the display for one epoch of numBatches batches.
func (win *Window) StartEpoch(epoch, numBatches int) {
	if win == nil {
		return
	}
	win.epoch = epoch
	win.numBatches = numBatches
	win.speedFromTime = time.Now()
	win.speedFromBatch = 0
	win.EpochText.SetText(fmt.Sprintf("Epoch %d (%d batches)", epoch, numBatches))
	win.ProgressBar.SetValue(0)
}

// OnBatch refreshes the display after the given batch was combined,
// throttled to a few updates per second.
func (win *Window) OnBatch(batchIndex int) {
	if win == nil {
		return
	}
	last := batchIndex == win.numBatches-1
	if !last && time.Since(win.lastUpdate) < win.updateFrequency {
		return
	}
	win.lastUpdate = time.Now()
	win.ProgressBar.SetValue(float64(batchIndex+1) / float64(win.numBatches))

	means := win.crit.RunningMeans(batchIndex)
	for i, item := range win.MeansForm.Items {
		if means == nil {
			break
		}
		item.Widget.(*widget.RichText).ParseMarkdown(fmt.Sprintf("%.4f", means[i]))
	}

	elapsed := time.Since(win.speedFromTime)
	if batches := batchIndex - win.speedFromBatch; elapsed > 10*time.Second || batches >= 100 {
		speed := float64(batches) / elapsed.Seconds()
		if speed > 1 {
			win.SpeedText.SetText(fmt.Sprintf("%.1f batches/s", speed))
		} else {
			win.SpeedText.SetText(fmt.Sprintf("%.1f batches/min", speed*60))
		}
		win.speedFromTime = time.Now()
		win.speedFromBatch = batchIndex
	}
}

// EndEpoch completes the epoch's progress bar.
func (win *Window) EndEpoch() {
	if win == nil {
		return
	}
	win.ProgressBar.SetValue(1)
}

// Done marks the run finished, leaving the window open for inspection
// until the user closes it.
func (win *Window) Done() {
	if win == nil {
		return
	}
	win.ProgressBar.SetValue(1)
	win.SpeedText.SetText("done")
	win.CancelButton.SetText("Close")
	win.Win.Show()
}
