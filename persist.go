// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package criterion

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/criterion/internal/tensorutil"
	"github.com/gomlx/criterion/schedule"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/pkg/support/xslices"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Artifact names written by Save into its directory.
const (
	// StateFileName holds the learned state of the term sub-modules:
	// discriminator weights and batch statistics, perceptual weights.
	StateFileName = "loss.bin"

	// LogFileName holds the history matrix, one serialized tensor.
	LogFileName = "loss_log.bin"
)

// persistableVariable selects which variables under the criterion scope go
// into the state artifact: the terms' parameters and buffers. Optimizer
// bookkeeping and schedule counters are rebuilt on load instead.
func persistableVariable(relScope, name string) bool {
	if name == optimizers.GlobalStepVariableName || strings.HasPrefix(name, "#") {
		return false
	}
	for _, segment := range strings.Split(relScope, context.ScopeSeparator) {
		switch segment {
		case schedule.Scope, optimizers.Scope, optimizers.AdamDefaultScope:
			return false
		}
	}
	return true
}

// persistableVariables collects the variables to save, keyed by their
// scope-relative parameter name, so artifacts restore under any scope.
func (c *Criterion) persistableVariables() map[string]*context.Variable {
	prefix := c.ctx.Scope()
	prefixWithSep := prefix
	if prefixWithSep != context.RootScope {
		prefixWithSep += context.ScopeSeparator
	}
	selected := make(map[string]*context.Variable)
	for v := range c.ctx.IterVariables() {
		if v.Scope() != prefix && !strings.HasPrefix(v.Scope(), prefixWithSep) {
			continue
		}
		relScope := strings.TrimPrefix(strings.TrimPrefix(v.Scope(), prefix), context.ScopeSeparator)
		if !persistableVariable(relScope, v.Name()) {
			continue
		}
		relName := v.Name()
		if relScope != "" {
			relName = relScope + context.ScopeSeparator + v.Name()
		}
		selected[relName] = v
	}
	return selected
}

// Save writes the criterion state to dir as two artifacts: StateFileName
// with the learned term state and LogFileName with the history matrix.
// Existing artifacts are replaced. Call it at epoch boundaries, after
// EndRow.
func (c *Criterion) Save(dir string) error {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return errors.Wrapf(err, "creating %q", dir)
	}
	if err := c.saveTermState(filepath.Join(dir, StateFileName)); err != nil {
		return err
	}
	return c.saveHistory(filepath.Join(dir, LogFileName))
}

func (c *Criterion) saveTermState(filePath string) error {
	variables := c.persistableVariables()
	names := xslices.SortedKeys(variables)

	tmpPath := filePath + "." + uuid.NewString()
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "creating %q", tmpPath)
	}
	enc := gob.NewEncoder(f)
	err = enc.Encode(len(names))
	for _, name := range names {
		if err != nil {
			break
		}
		if err = enc.Encode(name); err != nil {
			continue
		}
		var value *tensors.Tensor
		value, err = variables[name].Value()
		if err != nil {
			err = errors.WithMessagef(err, "reading variable %q", name)
			continue
		}
		err = value.GobSerialize(enc)
	}
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return errors.WithMessagef(err, "writing term state to %q", filePath)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "closing %q", tmpPath)
	}
	return errors.Wrapf(os.Rename(tmpPath, filePath), "replacing %q", filePath)
}

func (c *Criterion) saveHistory(filePath string) error {
	h := c.history
	flat := make([]float64, 0, h.NumRows()*h.NumColumns())
	for _, row := range h.rows {
		flat = append(flat, row...)
	}
	matrix := tensorutil.Float64sToTensor(flat, h.NumRows(), h.NumColumns())

	tmpPath := filePath + "." + uuid.NewString()
	if err := matrix.Save(tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WithMessagef(err, "writing history to %q", filePath)
	}
	return errors.Wrapf(os.Rename(tmpPath, filePath), "replacing %q", filePath)
}

// Load restores the two artifacts written by Save from dir into a freshly
// built criterion with the same objective. Tensors deserialize host-side,
// so state saved on any device restores on CPU-only hosts.
//
// Term variables that already exist get their values replaced immediately;
// the rest are staged on a context loader and materialize when the terms
// build them, exactly as the original creation would. After restoring the
// history, the learning-rate schedule of every adversarial term is advanced
// once per recorded epoch; schedule counters themselves are never
// serialized.
//
// Missing or corrupt artifacts are returned as errors, nothing is restored
// silently.
func (c *Criterion) Load(dir string) error {
	if err := c.loadTermState(filepath.Join(dir, StateFileName)); err != nil {
		return err
	}
	if err := c.loadHistory(filepath.Join(dir, LogFileName)); err != nil {
		return err
	}
	epochs := c.history.NumRows()
	for _, adv := range c.advTerms {
		for i := 0; i < epochs; i++ {
			adv.Step()
		}
	}
	return nil
}

func (c *Criterion) loadTermState(filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errors.Wrapf(err, "opening term state %q", filePath)
	}
	defer func() { _ = f.Close() }()

	dec := gob.NewDecoder(f)
	var count int
	if err := dec.Decode(&count); err != nil {
		return errors.Wrapf(err, "reading term state %q", filePath)
	}
	staged := make(map[string]*tensors.Tensor, count)
	for i := 0; i < count; i++ {
		var relName string
		if err := dec.Decode(&relName); err != nil {
			return errors.Wrapf(err, "reading term state %q, entry %d", filePath, i)
		}
		value, err := tensors.GobDeserialize(dec)
		if err != nil {
			return errors.Wrapf(err, "reading term state %q, variable %q", filePath, relName)
		}
		staged[relName] = value
	}

	prefix := c.ctx.Scope()
	for relName, value := range staged {
		scope, name := splitRelativeName(prefix, relName)
		v := c.ctx.InspectVariableIfLoaded(scope, name)
		if v == nil {
			continue
		}
		if err := v.SetValue(value); err != nil {
			return errors.WithMessagef(err, "restoring variable %q", relName)
		}
		delete(staged, relName)
	}
	if len(staged) > 0 {
		c.ctx.SetLoader(&termStateLoader{
			prefix: prefix,
			staged: staged,
			next:   c.ctx.Loader(),
		})
	}
	return nil
}

func (c *Criterion) loadHistory(filePath string) error {
	matrix, err := tensors.Load(filePath)
	if err != nil {
		return errors.Wrapf(err, "opening history %q", filePath)
	}
	flat, numRows, numColumns := tensorutil.TensorToFloat64s(matrix)
	if numColumns != len(c.terms) {
		return errors.Errorf("history %q has %d columns, objective has %d terms",
			filePath, numColumns, len(c.terms))
	}
	rows := make([][]float64, numRows)
	for i := range rows {
		rows[i] = flat[i*numColumns : (i+1)*numColumns]
	}
	c.history.setRows(rows)
	return nil
}

// splitRelativeName resolves a scope-relative parameter name back to the
// absolute scope and variable name under the given prefix.
func splitRelativeName(prefix, relName string) (scope, name string) {
	scope = prefix
	name = relName
	if idx := strings.LastIndex(relName, context.ScopeSeparator); idx >= 0 {
		relScope := relName[:idx]
		name = relName[idx+1:]
		if prefix == context.RootScope {
			scope = context.RootScope + relScope
		} else {
			scope = prefix + context.ScopeSeparator + relScope
		}
	}
	return
}

// termStateLoader hands staged values to the context as term variables get
// created, deferring to any previously attached loader for the rest.
type termStateLoader struct {
	prefix string
	staged map[string]*tensors.Tensor
	next   context.Loader
}

// LoadVariable implements context.Loader.
func (l *termStateLoader) LoadVariable(ctx *context.Context, scope, name string) (*tensors.Tensor, bool) {
	if relName, ok := l.relativeName(scope, name); ok {
		if value, found := l.staged[relName]; found {
			delete(l.staged, relName)
			return value, true
		}
	}
	if l.next != nil {
		return l.next.LoadVariable(ctx, scope, name)
	}
	return nil, false
}

// DeleteVariable implements context.Loader.
func (l *termStateLoader) DeleteVariable(ctx *context.Context, scope, name string) error {
	if relName, ok := l.relativeName(scope, name); ok {
		delete(l.staged, relName)
	}
	if l.next != nil {
		return l.next.DeleteVariable(ctx, scope, name)
	}
	return nil
}

func (l *termStateLoader) relativeName(scope, name string) (string, bool) {
	if scope == l.prefix {
		return name, true
	}
	prefixWithSep := l.prefix
	if prefixWithSep != context.RootScope {
		prefixWithSep += context.ScopeSeparator
	}
	if !strings.HasPrefix(scope, prefixWithSep) {
		return "", false
	}
	return strings.TrimPrefix(scope, prefixWithSep) + context.ScopeSeparator + name, true
}
