// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package criterion

// Report is a point-in-time copy of the objective's training history,
// detached from the live Criterion so display code can hold on to it,
// ship it to another goroutine or render it after training ended.
type Report struct {
	// Objective is the parsed objective rendered back to its
	// "<weight>*<kind>" form.
	Objective string

	// Labels holds one column label per objective term, in column order.
	Labels []string

	// Weights holds the corresponding term weights. Synthetic readout
	// columns report weight 0 or 1 as they were registered.
	Weights []float64

	// History holds the completed epochs, one row of per-term means per
	// epoch, columns aligned with Labels.
	History [][]float64
}

// Report snapshots the completed history rows together with the objective
// metadata. The row still being accumulated, if any, is not included; use
// RunningMeans for it.
func (c *Criterion) Report() *Report {
	labels := make([]string, len(c.terms))
	weights := make([]float64, len(c.terms))
	for i, term := range c.terms {
		labels[i] = term.Label
		weights[i] = term.Weight
	}
	numCompleted := c.history.NumRows()
	if c.history.hasOpenRow() {
		numCompleted--
	}
	history := make([][]float64, numCompleted)
	for i := range history {
		history[i] = c.history.Row(i)
	}
	return &Report{
		Objective: c.String(),
		Labels:    labels,
		Weights:   weights,
		History:   history,
	}
}

// NumEpochs returns the number of completed epochs in the report.
func (r *Report) NumEpochs() int { return len(r.History) }

// Column returns the curve of the term at the given column, one value per
// completed epoch.
func (r *Report) Column(col int) []float64 {
	curve := make([]float64, len(r.History))
	for i, row := range r.History {
		curve[i] = row[col]
	}
	return curve
}

// RunningMeans returns the per-term means of the row currently being
// accumulated, given the index of the last batch folded in. It returns nil
// if no row is open. Columns align with the term order.
func (c *Criterion) RunningMeans(batchIndex int) []float64 {
	if !c.history.hasOpenRow() {
		return nil
	}
	row := c.history.last()
	means := make([]float64, len(row))
	for i, sum := range row {
		means[i] = sum / float64(batchIndex+1)
	}
	return means
}
