// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plotly

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	grob "github.com/MetalBlueberry/go-plotly/generated/v2.34.0/graph_objects"
	"github.com/gomlx/criterion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReport() *criterion.Report {
	return &criterion.Report{
		Objective: "1*MSE + 0.5*L1",
		Labels:    []string{"MSE", "L1", "Total"},
		Weights:   []float64{1, 0.5, 0},
		History: [][]float64{
			{2, 1, 2.5},
			{1, 0.5, 1.25},
		},
	}
}

func TestFigure(t *testing.T) {
	fig := Figure(testReport())
	require.Len(t, fig.Data, 3)
	scatter, ok := fig.Data[0].(*grob.Scatter)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, scatter.X.Value().([]float64))
	assert.Equal(t, []float64{2, 1}, scatter.Y.Value().([]float64))
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(testReport(), &buf))
	html := buf.String()
	for _, want := range []string{PlotlySrc, "Plotly.newPlot", "MSE", "1*MSE + 0.5*L1"} {
		assert.Contains(t, html, want)
	}
}

func TestSaveHTML(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, SaveHTML(testReport(), filePath))
	content, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Plotly.newPlot")
}
