// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package pixel implements pixel-space reconstruction losses for
// image-restoration objectives: mean squared and mean absolute error, the
// Charbonnier penalty, intensity-weighted squared error and the squared
// error of finite-difference image gradients.
//
// All functions are graph building: they take the restored and the reference
// image batches as [*Node] of identical shapes and return a scalar node.
package pixel

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gopjrt/dtypes"
)

// CharbonnierEpsilon is the smoothing constant of the Charbonnier penalty.
const CharbonnierEpsilon = 1e-3

// MeanSquaredError returns the mean squared error between predicted and
// target, reduced over all axes.
func MeanSquaredError(predicted, target *Node) *Node {
	assertSameShape(predicted, target)
	return ReduceAllMean(Square(Sub(predicted, target)))
}

// MeanAbsoluteError returns the mean absolute error between predicted and
// target, reduced over all axes.
func MeanAbsoluteError(predicted, target *Node) *Node {
	assertSameShape(predicted, target)
	return ReduceAllMean(Abs(Sub(predicted, target)))
}

// Charbonnier returns the mean Charbonnier penalty, a differentiable-at-zero
// variant of the absolute error: sqrt(diff² + ε²), ε=[CharbonnierEpsilon].
func Charbonnier(predicted, target *Node) *Node {
	assertSameShape(predicted, target)
	diff := Sub(predicted, target)
	return ReduceAllMean(Sqrt(AddScalar(Square(diff), CharbonnierEpsilon*CharbonnierEpsilon)))
}

// WeightedMeanSquaredError returns the squared error weighted per pixel by
// the relative intensity of the target, emphasizing errors on bright
// regions. The weights are |target| divided by its mean and carry no
// gradient.
func WeightedMeanSquaredError(predicted, target *Node) *Node {
	assertSameShape(predicted, target)
	intensity := Abs(target)
	weights := Div(intensity, AddScalar(ReduceAllMean(intensity), epsilonFor(predicted)))
	weights = StopGradient(weights)
	return ReduceAllMean(Mul(weights, Square(Sub(predicted, target))))
}

// GradientL2 returns the mean squared error between the finite-difference
// spatial gradients of predicted and target, summed over the horizontal and
// vertical directions. Inputs must be batched images, rank 4, with channels
// placed according to channelsConfig.
func GradientL2(predicted, target *Node, channelsConfig images.ChannelsAxisConfig) *Node {
	assertSameShape(predicted, target)
	if predicted.Rank() != 4 {
		Panicf("GradientL2 requires batched images of rank 4, got shape %s", predicted.Shape())
	}
	var loss *Node
	for _, axis := range images.GetSpatialAxes(predicted, channelsConfig) {
		term := ReduceAllMean(Square(Sub(
			spatialDiff(predicted, axis), spatialDiff(target, axis))))
		if loss == nil {
			loss = term
		} else {
			loss = Add(loss, term)
		}
	}
	return loss
}

// spatialDiff is the forward finite difference of x along the given axis,
// one element shorter than the input there.
func spatialDiff(x *Node, axis int) *Node {
	dim := x.Shape().Dim(axis)
	if dim < 2 {
		Panicf("cannot take spatial differences along axis %d of shape %s", axis, x.Shape())
	}
	specsHi := fullRanges(x.Rank())
	specsLo := fullRanges(x.Rank())
	specsHi[axis] = AxisRange(1, dim)
	specsLo[axis] = AxisRange(0, dim-1)
	return Sub(Slice(x, specsHi...), Slice(x, specsLo...))
}

func fullRanges(rank int) []SliceAxisSpec {
	specs := make([]SliceAxisSpec, rank)
	for i := range specs {
		specs[i] = AxisRange()
	}
	return specs
}

func assertSameShape(predicted, target *Node) {
	if !predicted.Shape().Equal(target.Shape()) {
		Panicf("predicted and target must have the same shape, got %s and %s",
			predicted.Shape(), target.Shape())
	}
}

// Epsilon values used to keep divisions away from zero, per dtype.
const (
	Epsilon16 = 1e-4
	Epsilon32 = 1e-7
	Epsilon64 = 1e-8
)

func epsilonFor(x *Node) float64 {
	switch x.DType() {
	case dtypes.Float16:
		return Epsilon16
	case dtypes.Float32:
		return Epsilon32
	default:
		return Epsilon64
	}
}
