// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package criterion

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

// History is the per-epoch record of every objective column: one row per
// epoch, one column per term, fixed width. During an epoch the open row
// accumulates per-batch sums; closing it converts them to per-batch means.
//
// Mutation happens through the owning Criterion (StartRow, Combine,
// EndRow); History itself only exposes read access.
type History struct {
	numColumns int
	rows       [][]float64
	openRow    bool
}

func newHistory(numColumns int) *History {
	return &History{numColumns: numColumns}
}

// NumRows returns the number of rows, the open one included.
func (h *History) NumRows() int { return len(h.rows) }

// NumColumns returns the fixed row width.
func (h *History) NumColumns() int { return h.numColumns }

// Row returns a copy of row i.
func (h *History) Row(i int) []float64 {
	return append([]float64{}, h.rows[i]...)
}

// Column returns a copy of column j across all rows.
func (h *History) Column(j int) []float64 {
	values := make([]float64, len(h.rows))
	for i, row := range h.rows {
		values[i] = row[j]
	}
	return values
}

func (h *History) hasOpenRow() bool { return h.openRow }

func (h *History) last() []float64 { return h.rows[len(h.rows)-1] }

func (h *History) startRow() {
	h.rows = append(h.rows, make([]float64, h.numColumns))
	h.openRow = true
}

func (h *History) accumulate(column int, value float64) {
	h.last()[column] += value
}

func (h *History) endRow(batchCount int) error {
	if !h.openRow {
		return errors.New("no open history row to close")
	}
	if batchCount <= 0 {
		return errors.Errorf("batch count must be positive, got %d", batchCount)
	}
	row := h.last()
	for i := range row {
		row[i] /= float64(batchCount)
	}
	h.openRow = false
	return nil
}

// setRows replaces the whole matrix, used when restoring from disk.
func (h *History) setRows(rows [][]float64) {
	h.rows = rows
	h.openRow = false
}

// StartRow opens the history row of a new epoch, zero in every column. Call
// it once per epoch, before the first batch.
func (c *Criterion) StartRow() {
	c.history.startRow()
}

// EndRow closes the current epoch's row, converting the accumulated batch
// sums into per-batch means. Call it once per epoch, after the last batch.
func (c *Criterion) EndRow(batchCount int) error {
	return c.history.endRow(batchCount)
}

// FormatRow renders the running means of the open row after batchIndex+1
// batches, like "[L1: 0.0421][DIS: 0.6931]". It is meant for per-batch
// progress displays.
func (c *Criterion) FormatRow(batchIndex int) string {
	row := c.history.last()
	var b strings.Builder
	for i, term := range c.terms {
		fmt.Fprintf(&b, "[%s: %.4f]", term.Label, row[i]/float64(batchIndex+1))
	}
	return b.String()
}

var (
	historyHeaderStyle = lipgloss.NewStyle().Reverse(true).
				Padding(0, 1, 0, 1).Align(lipgloss.Center)
	historyOddRowStyle = lipgloss.NewStyle().Faint(false).
				PaddingLeft(1).PaddingRight(1).Align(lipgloss.Right)
	historyEvenRowStyle = lipgloss.NewStyle().Faint(true).
				PaddingLeft(1).PaddingRight(1).Align(lipgloss.Right)
)

// HistoryTable renders the history as a terminal table, one row per epoch
// and one column per term.
func (c *Criterion) HistoryTable() string {
	table := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row < 0 {
				return historyHeaderStyle
			}
			if row%2 == 0 {
				return historyOddRowStyle
			}
			return historyEvenRowStyle
		})
	table.Headers(append([]string{"Epoch"}, c.Labels()...)...)
	for i := 0; i < c.history.NumRows(); i++ {
		cells := make([]string, 0, len(c.terms)+1)
		cells = append(cells, strconv.Itoa(i+1))
		for _, value := range c.history.rows[i] {
			cells = append(cells, fmt.Sprintf("%.4f", value))
		}
		table.Row(cells...)
	}
	return table.Render()
}

// HistoryDataFrame exports the history as a dataframe with an "Epoch"
// column followed by one float column per term.
func (c *Criterion) HistoryDataFrame() dataframe.DataFrame {
	numRows := c.history.NumRows()
	epochs := make([]int, numRows)
	for i := range epochs {
		epochs[i] = i + 1
	}
	columns := make([]series.Series, 0, len(c.terms)+1)
	columns = append(columns, series.New(epochs, series.Int, "Epoch"))
	for j, term := range c.terms {
		columns = append(columns, series.New(c.history.Column(j), series.Float, term.Label))
	}
	return dataframe.New(columns...)
}

// WriteHistoryCSV writes the history to w in CSV form, through
// HistoryDataFrame.
func (c *Criterion) WriteHistoryCSV(w io.Writer) error {
	if err := c.HistoryDataFrame().WriteCSV(w); err != nil {
		return errors.Wrap(err, "writing history CSV")
	}
	return nil
}

// ReadHistoryCSV replaces the history with the rows read from w's CSV form,
// as written by WriteHistoryCSV. Columns are matched positionally, the
// leading "Epoch" column is dropped.
func (c *Criterion) ReadHistoryCSV(r io.Reader) error {
	df := dataframe.ReadCSV(r)
	if df.Err != nil {
		return errors.Wrap(df.Err, "reading history CSV")
	}
	if df.Ncol() != len(c.terms)+1 {
		return errors.Errorf("history CSV has %d columns, objective needs %d (epoch plus one per term)",
			df.Ncol(), len(c.terms)+1)
	}
	records := df.Records()[1:] // Drop the header row.
	rows := make([][]float64, len(records))
	for i, record := range records {
		row := make([]float64, len(c.terms))
		for j, cell := range record[1:] {
			value, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return errors.Wrapf(err, "history CSV row %d, column %d", i+1, j+1)
			}
			row[j] = value
		}
		rows[i] = row
	}
	c.history.setRows(rows)
	return nil
}
