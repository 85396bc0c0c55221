// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package criterion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	c := mseL1Criterion()
	c.history.setRows([][]float64{{1.5, 0.5, 2}, {1.25, 0.25, 1.75}})

	report := c.Report()
	assert.Equal(t, "1*MSE + 0.5*L1", report.Objective)
	assert.Equal(t, []string{"MSE", "L1", "Total"}, report.Labels)
	assert.Equal(t, []float64{1, 0.5, 0}, report.Weights)
	require.Equal(t, 2, report.NumEpochs())
	assert.Equal(t, []float64{1.5, 1.25}, report.Column(0))
	assert.Equal(t, []float64{2, 1.75}, report.Column(2))

	// The row still being accumulated stays out of the report.
	c.StartRow()
	observe(t, c, 4, 2, 5)
	assert.Equal(t, 2, c.Report().NumEpochs())
}

func TestRunningMeans(t *testing.T) {
	c := mseL1Criterion()
	assert.Nil(t, c.RunningMeans(0))

	c.StartRow()
	observe(t, c, 1, 2, 3)
	observe(t, c, 3, 4, 5)
	assert.Equal(t, []float64{2, 3, 4}, c.RunningMeans(1))
}
