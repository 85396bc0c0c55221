// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package perceptual_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/criterion/perceptual"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/simplego"
)

var backend = backends.MustNew()

func TestStageFromSuffix(t *testing.T) {
	got, err := perceptual.StageFromSuffix("22")
	require.NoError(t, err)
	assert.Equal(t, perceptual.Stage22, got)

	got, err = perceptual.StageFromSuffix("54")
	require.NoError(t, err)
	assert.Equal(t, perceptual.Stage54, got)

	_, err = perceptual.StageFromSuffix("33")
	require.Error(t, err)
	_, err = perceptual.StageFromSuffix("")
	require.Error(t, err)
}

func TestConfigErrors(t *testing.T) {
	ctx := context.New()
	_, err := perceptual.New(ctx, perceptual.Stage(33)).Done()
	require.Error(t, err)
	_, err = perceptual.New(ctx, perceptual.Stage22).ColorRange(0).Done()
	require.Error(t, err)
}

// writeStubWeights fills baseDir with small deterministic weights laid out
// like the unpacked VGG19 files, enough for the Stage22 stack.
func writeStubWeights(t *testing.T, baseDir string) {
	layers := []struct {
		name    string
		in, out int
	}{
		{"block1_conv1", 3, 64},
		{"block1_conv2", 64, 64},
		{"block2_conv1", 64, 128},
		{"block2_conv2", 128, 128},
	}
	for _, layer := range layers {
		dir := filepath.Join(baseDir, perceptual.UnpackedWeightsName, layer.name, layer.name)
		require.NoError(t, os.MkdirAll(dir, 0755))
		kernel := make([]float32, 3*3*layer.in*layer.out)
		for i := range kernel {
			kernel[i] = 0.05 * float32(math.Sin(float64(i)))
		}
		require.NoError(t, tensors.FromFlatDataAndDimensions(kernel, 3, 3, layer.in, layer.out).
			Save(filepath.Join(dir, "kernel:0")))
		bias := make([]float32, layer.out)
		for i := range bias {
			bias[i] = 0.01 * float32(math.Cos(float64(i)))
		}
		require.NoError(t, tensors.FromFlatDataAndDimensions(bias, layer.out).
			Save(filepath.Join(dir, "bias:0")))
	}
}

func imageBatch(center float64) *tensors.Tensor {
	data := make([]float32, 2*16*16*3)
	for i := range data {
		data[i] = float32(center + 0.1*math.Sin(float64(i)))
	}
	return tensors.FromFlatDataAndDimensions(data, 2, 16, 16, 3)
}

func TestStage22Loss(t *testing.T) {
	baseDir := t.TempDir()
	writeStubWeights(t, baseDir)
	ctx := context.New()
	p, err := perceptual.New(ctx, perceptual.Stage22).BaseDir(baseDir).Done()
	require.NoError(t, err)
	assert.Equal(t, perceptual.Stage22, p.Stage())

	exec, err := context.NewExec(backend, ctx,
		func(ctx *context.Context, predicted, target *Node) (*Node, *Node, *Node) {
			loss := p.BuildLossGraph(predicted, target)
			grads := Gradient(loss, predicted, target)
			return loss, ReduceAllSum(Abs(grads[0])), ReduceAllSum(Abs(grads[1]))
		})
	require.NoError(t, err)

	lossT, gradPredictedT, gradTargetT, err := exec.Exec3(imageBatch(0.3), imageBatch(0.7))
	require.NoError(t, err)
	require.True(t, lossT.Shape().IsScalar())
	require.Greater(t, float64(tensors.ToScalar[float32](lossT)), 0.0)
	assert.NotZero(t, tensors.ToScalar[float32](gradPredictedT),
		"predicted image receives no gradient")
	assert.Zero(t, tensors.ToScalar[float32](gradTargetT),
		"target branch must be detached")

	// Identical images have identical features.
	lossT, _, _, err = exec.Exec3(imageBatch(0.4), imageBatch(0.4))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, float64(tensors.ToScalar[float32](lossT)), 1e-6)
}
