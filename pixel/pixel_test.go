// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pixel

import (
	"math"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

var backend = backends.MustNew()

// 1x2x2x1 images (batch, height, width, channel), diffs are (1, 0, 0, -2).
var (
	testPredicted = tensors.FromFlatDataAndDimensions([]float32{0, 1, 2, 3}, 1, 2, 2, 1)
	testTarget    = tensors.FromFlatDataAndDimensions([]float32{1, 1, 2, 5}, 1, 2, 2, 1)
)

func evalLoss(t *testing.T, lossFn func(predicted, target *Node) *Node) float64 {
	got := must.M1(ExecOnce(backend, lossFn, testPredicted, testTarget))
	return float64(tensors.ToScalar[float32](got))
}

func TestMeanSquaredError(t *testing.T) {
	require.InDelta(t, (1.0+0+0+4)/4, evalLoss(t, MeanSquaredError), 1e-6)
}

func TestMeanAbsoluteError(t *testing.T) {
	require.InDelta(t, (1.0+0+0+2)/4, evalLoss(t, MeanAbsoluteError), 1e-6)
}

func TestCharbonnier(t *testing.T) {
	eps2 := CharbonnierEpsilon * CharbonnierEpsilon
	want := (math.Sqrt(1+eps2) + math.Sqrt(eps2) + math.Sqrt(eps2) + math.Sqrt(4+eps2)) / 4
	require.InDelta(t, want, evalLoss(t, Charbonnier), 1e-5)
}

func TestWeightedMeanSquaredError(t *testing.T) {
	// Weights are |target| / mean(|target|), mean is 9/4.
	mean := 9.0 / 4.0
	want := (1.0/mean*1 + 0 + 0 + 5.0/mean*4) / 4
	require.InDelta(t, want, evalLoss(t, WeightedMeanSquaredError), 1e-4)
}

func TestGradientL2(t *testing.T) {
	// Vertical diffs: predicted (2, 2) vs target (1, 4) -> mean 2.5.
	// Horizontal diffs: predicted (1, 1) vs target (0, 3) -> mean 2.5.
	got := evalLoss(t, func(predicted, target *Node) *Node {
		return GradientL2(predicted, target, images.ChannelsLast)
	})
	require.InDelta(t, 5.0, got, 1e-6)
}

func TestShapeMismatch(t *testing.T) {
	short := tensors.FromFlatDataAndDimensions([]float32{1, 2}, 1, 2, 1, 1)
	err := exceptions.TryCatch[error](func() {
		out, err := ExecOnce(backend, MeanSquaredError, testPredicted, short)
		if err != nil {
			panic(err)
		}
		_ = out
	})
	require.Error(t, err)
}
