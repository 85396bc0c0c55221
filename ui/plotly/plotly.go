// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package plotly renders criterion loss curves as interactive plotly
// figures: inline when running under a GoNB notebook, or as a standalone
// HTML report anywhere else.
//
// The advantage over the static curve files is interactivity, it displays
// values on mouse hover. The report embeds the plotly JavaScript from its
// CDN, so the file is self-contained but needs a network connection to
// render.
package plotly

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	grob "github.com/MetalBlueberry/go-plotly/generated/v2.34.0/graph_objects"
	ptypes "github.com/MetalBlueberry/go-plotly/pkg/types"
	"github.com/gomlx/criterion"
	"github.com/janpfeifer/gonb/gonbui"
	"github.com/janpfeifer/gonb/gonbui/dom"
	gonbplotly "github.com/janpfeifer/gonb/gonbui/plotly"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// PlotlySrc is the script address the HTML report loads plotly from. It
// matches the generated API version in use.
var PlotlySrc = "https://cdn.plot.ly/plotly-2.34.0.min.js"

// Figure builds one figure with the curve of every objective column, one
// point per completed epoch.
func Figure(report *criterion.Report) *grob.Fig {
	fig := &grob.Fig{
		Layout: &grob.Layout{
			Title: &grob.LayoutTitle{
				Text: ptypes.S(fmt.Sprintf("Training objective: %s", report.Objective)),
			},
			Xaxis: &grob.LayoutXaxis{
				Showgrid: ptypes.B(true),
			},
			Yaxis: &grob.LayoutYaxis{
				Showgrid: ptypes.B(true),
			},
			Legend: &grob.LayoutLegend{},
		},
	}
	epochs := make([]float64, report.NumEpochs())
	for i := range epochs {
		epochs[i] = float64(i + 1)
	}
	for col, label := range report.Labels {
		fig.Data = append(fig.Data, &grob.Scatter{
			Name: ptypes.S(label),
			Line: &grob.ScatterLine{
				Shape: grob.ScatterLineShapeLinear,
			},
			Mode: "lines+markers",
			X:    ptypes.DataArray(epochs),
			Y:    ptypes.DataArray(report.Column(col)),
		})
	}
	return fig
}

// Display plots the report inline in the current notebook cell. Outside a
// notebook it is a no-op.
func Display(report *criterion.Report) error {
	if !gonbui.IsNotebook {
		return nil
	}
	gonbui.DisplayHtmlf("<p><b>Objective: %s</b></p>\n", report.Objective)
	return gonbplotly.DisplayFig(Figure(report))
}

// WriteHTML writes a self-contained HTML report of the curves to w.
func WriteHTML(report *criterion.Report, w io.Writer) error {
	encoded, err := json.Marshal(Figure(report))
	if err != nil {
		return errors.Wrap(err, "encoding figure")
	}
	_, err = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"/><script src=%q></script></head>
<body>
<div id="criterion_report"></div>
<script>
	var fig = %s;
	Plotly.newPlot("criterion_report", fig.data, fig.layout);
</script>
</body>
</html>
`, PlotlySrc, encoded)
	return errors.Wrap(err, "writing HTML report")
}

// SaveHTML writes the HTML report to filePath, replacing any previous one.
func SaveHTML(report *criterion.Report, filePath string) error {
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "creating %q", filePath)
	}
	if err := WriteHTML(report, f); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "closing %q", filePath)
}

// Live keeps an in-place notebook plot that Update redraws, for watching
// the curves evolve during training. Outside a notebook every method is a
// no-op.
type Live struct {
	gonbId string
}

// NewLive reserves the notebook output block the live plot draws into.
func NewLive() *Live {
	if !gonbui.IsNotebook {
		return &Live{}
	}
	l := &Live{gonbId: "criterion_live_" + gonbui.UniqueId()}
	gonbui.UpdateHTML(l.gonbId, "")
	return l
}

// Update redraws the live plot with the report. Reports with fewer than
// two epochs are skipped, there is no curve to show yet.
func (l *Live) Update(report *criterion.Report) {
	if l.gonbId == "" || report.NumEpochs() < 2 {
		return
	}
	elementId := gonbui.UniqueId()
	gonbui.UpdateHTML(l.gonbId, fmt.Sprintf("<div id=%q></div>", elementId))
	dom.Append(elementId, fmt.Sprintf("<p><b>Objective: %s</b></p>\n", report.Objective))
	if err := gonbplotly.AppendFig(elementId, Figure(report)); err != nil {
		klog.Errorf("Failed to plot: %+v", err)
	}
}

// Done clears the live plot area and draws the final version.
func (l *Live) Done(report *criterion.Report) {
	if l.gonbId == "" {
		return
	}
	gonbui.UpdateHTML(l.gonbId, "")
	if err := Display(report); err != nil {
		klog.Errorf("Failed to plot: %+v", err)
	}
}
