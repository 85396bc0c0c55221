// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package preview

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// batch builds a [batchSize, size, size, 3] image tensor filled with value.
func batch(batchSize, size int, value float32) *tensors.Tensor {
	data := make([]float32, batchSize*size*size*3)
	for i := range data {
		data[i] = value
	}
	return tensors.FromFlatDataAndDimensions(data, batchSize, size, size, 3)
}

func TestComposite(t *testing.T) {
	cfg := New().Gap(2)
	// Degraded at half resolution, upscaled into its tile.
	composite, err := cfg.Composite(batch(2, 2, 64), batch(2, 4, 128), batch(2, 4, 255))
	require.NoError(t, err)
	bounds := composite.Bounds()
	assert.Equal(t, 3*4+2*2, bounds.Dx())
	assert.Equal(t, 2*4+2, bounds.Dy())

	_, err = cfg.Composite(batch(1, 2, 64), batch(2, 4, 128), batch(2, 4, 255))
	require.ErrorContains(t, err, "batch sizes differ")
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path, err := New().Save(dir, 7, batch(1, 2, 64), batch(1, 4, 128), batch(1, 4, 255))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "preview_0007.png"), path)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())

	// Saving the same epoch again replaces the file.
	_, err = New().Save(dir, 7, batch(1, 2, 64), batch(1, 4, 128), batch(1, 4, 255))
	require.NoError(t, err)

	jpgPath, err := New().Format("jpg").Save(dir, 7, batch(1, 2, 64), batch(1, 4, 128), batch(1, 4, 255))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "preview_0007.jpg"), jpgPath)

	_, err = New().Format("webp").Save(dir, 7, batch(1, 2, 64), batch(1, 4, 128), batch(1, 4, 255))
	require.Error(t, err)
}
