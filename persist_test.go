// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package criterion

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/criterion/adversarial"
	"github.com/gomlx/criterion/internal/tensorutil"
	"github.com/gomlx/criterion/schedule"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The state artifact must carry the discriminator and its tracked loss,
// never optimizer slots or schedule counters.
func TestPersistableSelection(t *testing.T) {
	crit, err := Build(backend, context.New().In("criterion"), "1*GAN").Done()
	require.NoError(t, err)
	crit.StartRow()
	_, err = crit.Combine(ganBatch(0.25), ganBatch(0.75))
	require.NoError(t, err)

	variables := crit.persistableVariables()
	require.Contains(t, variables, "000_GAN/tracked_loss")
	disPrefix := "000_GAN/" + adversarial.DiscriminatorScope + "/"
	numDis := 0
	for name := range variables {
		if strings.HasPrefix(name, disPrefix) {
			numDis++
		}
		assert.NotContains(t, name, optimizers.AdamDefaultScope)
		assert.NotContains(t, name, schedule.Scope)
		assert.NotContains(t, name, optimizers.Scope+context.ScopeSeparator)
	}
	require.NotZero(t, numDis)
}

func TestSaveLoadHistory(t *testing.T) {
	crit, err := Build(backend, context.New().In("criterion"), "1*MSE+0.5*L1").Done()
	require.NoError(t, err)
	crit.StartRow()
	_, err = crit.Combine(batchAPredicted, batchATarget)
	require.NoError(t, err)
	_, err = crit.Combine(batchBPredicted, batchBTarget)
	require.NoError(t, err)
	require.NoError(t, crit.EndRow(2))

	dir := t.TempDir()
	require.NoError(t, crit.Save(dir))

	restored, err := Build(backend, context.New().In("criterion"), "1*MSE+0.5*L1").Done()
	require.NoError(t, err)
	require.NoError(t, restored.Load(dir))
	require.Equal(t, 1, restored.History().NumRows())
	assert.Equal(t, crit.History().Row(0), restored.History().Row(0))
}

func TestSaveLoadAdversarial(t *testing.T) {
	fake, real := ganBatch(0.25), ganBatch(0.75)

	crit1Ctx := context.New()
	crit1, err := Build(backend, crit1Ctx.In("criterion"), "1*GAN").Done()
	require.NoError(t, err)
	crit1.StartRow()
	_, err = crit1.Combine(fake, real)
	require.NoError(t, err)
	require.NoError(t, crit1.EndRow(1))
	crit1.Step()

	dir := t.TempDir()
	require.NoError(t, crit1.Save(dir))
	for _, name := range []string{StateFileName, LogFileName} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoErrorf(t, err, "artifact %s", name)
	}
	want, err := crit1.combineExec.Exec(fake, real)
	require.NoError(t, err)

	crit2Ctx := context.New()
	crit2, err := Build(backend, crit2Ctx.In("criterion"), "1*GAN").Done()
	require.NoError(t, err)
	require.NoError(t, crit2.Load(dir))

	require.Equal(t, 1, crit2.History().NumRows())
	assert.Equal(t, crit1.History().Row(0), crit2.History().Row(0))

	// One recorded epoch replays into one schedule advance.
	assert.Equal(t, 1, schedule.Epoch(crit2Ctx.In("criterion").In("000_GAN")))

	// The restored discriminator must score exactly like the saved one;
	// its weights materialize from the staged state during the first
	// graph build.
	got, err := crit2.combineExec.Exec(fake, real)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDeltaf(t, tensorutil.ScalarFloat64(want[i]),
			tensorutil.ScalarFloat64(got[i]), 1e-6, "column %d", i)
	}
	assert.InDelta(t, crit1.Terms()[0].Adversarial().DiscriminatorLoss(),
		tensorutil.ScalarFloat64(got[1]), 1e-9)
}

func TestLoadErrors(t *testing.T) {
	crit, err := Build(backend, context.New().In("criterion"), "1*MSE+0.5*L1").Done()
	require.NoError(t, err)
	require.Error(t, crit.Load(t.TempDir()), "empty directory")

	// Artifacts from a narrower objective don't fit a wider one.
	narrow, err := Build(backend, context.New().In("criterion"), "1*MSE").Done()
	require.NoError(t, err)
	narrow.StartRow()
	_, err = narrow.Combine(batchAPredicted, batchATarget)
	require.NoError(t, err)
	require.NoError(t, narrow.EndRow(1))
	dir := t.TempDir()
	require.NoError(t, narrow.Save(dir))

	err = crit.Load(dir)
	require.ErrorContains(t, err, "columns")
}
