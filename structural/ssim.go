// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package structural implements structural-similarity losses (SSIM and its
// multi-scale variant) for image-restoration objectives.
//
// Both losses return 1 - similarity, so that lower is better and a perfect
// reconstruction scores 0, making them composable with the pixel losses.
package structural

import (
	"math"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
)

const (
	// WindowSize is the side of the gaussian comparison window.
	WindowSize = 11

	// WindowSigma is the standard deviation of the gaussian window.
	WindowSigma = 1.5

	k1 = 0.01
	k2 = 0.03
)

// MultiScaleWeights are the per-scale exponents of the multi-scale SSIM,
// from the original Wang et al. publication.
var MultiScaleWeights = []float64{0.0448, 0.2856, 0.3001, 0.2363, 0.1333}

// SSIM returns 1 minus the mean structural similarity index between
// predicted and target, both batched images of rank 4 with matching shapes.
// dynamicRange is the value range of the pixels (255 for 8-bit images, 1
// for normalized ones).
func SSIM(predicted, target *Node, dynamicRange float64, channelsConfig images.ChannelsAxisConfig) *Node {
	validateImagePair(predicted, target)
	luminance, contrastStructure := ssimComponents(predicted, target, dynamicRange, channelsConfig)
	return OneMinus(ReduceAllMean(Mul(luminance, contrastStructure)))
}

// MultiScaleSSIM returns 1 minus the multi-scale structural similarity
// index: the contrast-structure term is measured over len(MultiScaleWeights)
// dyadic scales and the luminance term at the coarsest one, combined as a
// weighted geometric mean. Spatial dimensions must survive the repeated
// halving, at least WindowSize x 2^(scales-1).
func MultiScaleSSIM(predicted, target *Node, dynamicRange float64, channelsConfig images.ChannelsAxisConfig) *Node {
	validateImagePair(predicted, target)
	scales := len(MultiScaleWeights)
	var index *Node
	for level := 0; level < scales; level++ {
		luminance, contrastStructure := ssimComponents(predicted, target, dynamicRange, channelsConfig)
		term := ReduceAllMean(contrastStructure)
		if level == scales-1 {
			term = Mul(ReduceAllMean(luminance), term)
		}
		// Negative similarities would poison the fractional powers.
		term = MaxScalar(term, 1e-6)
		term = PowScalar(term, MultiScaleWeights[level])
		if index == nil {
			index = term
		} else {
			index = Mul(index, term)
		}
		if level < scales-1 {
			predicted = halveImage(predicted, channelsConfig)
			target = halveImage(target, channelsConfig)
		}
	}
	return OneMinus(index)
}

// ssimComponents returns the SSIM luminance map and the contrast-structure
// map over the valid positions of the gaussian window.
func ssimComponents(x, y *Node, dynamicRange float64, channelsConfig images.ChannelsAxisConfig) (luminance, contrastStructure *Node) {
	c1 := k1 * dynamicRange * k1 * dynamicRange
	c2 := k2 * dynamicRange * k2 * dynamicRange
	channelsAxis := images.GetChannelsAxis(x, channelsConfig)
	channels := x.Shape().Dim(channelsAxis)
	kernel := gaussianWindow(x, channelsConfig)

	blur := func(in *Node) *Node {
		return blurChannels(in, kernel, channelsAxis, channels, channelsConfig)
	}
	muX, muY := blur(x), blur(y)
	muXX, muYY, muXY := Mul(muX, muX), Mul(muY, muY), Mul(muX, muY)
	sigmaX := Sub(blur(Mul(x, x)), muXX)
	sigmaY := Sub(blur(Mul(y, y)), muYY)
	sigmaXY := Sub(blur(Mul(x, y)), muXY)

	luminance = Div(
		AddScalar(MulScalar(muXY, 2), c1),
		AddScalar(Add(muXX, muYY), c1))
	contrastStructure = Div(
		AddScalar(MulScalar(sigmaXY, 2), c2),
		AddScalar(Add(sigmaX, sigmaY), c2))
	return
}

// blurChannels convolves every channel separately with the shared
// single-channel window and concatenates the results back. Grouped
// convolutions have no backward pass yet, so they can't serve here.
func blurChannels(in, kernel *Node, channelsAxis, channels int, channelsConfig images.ChannelsAxisConfig) *Node {
	convolve := func(single *Node) *Node {
		return Convolve(single, kernel).ChannelsAxis(channelsConfig).NoPadding().Done()
	}
	if channels == 1 {
		return convolve(in)
	}
	specs := make([]SliceAxisSpec, in.Rank())
	for i := range specs {
		specs[i] = AxisRange()
	}
	blurred := make([]*Node, channels)
	for c := range blurred {
		specs[channelsAxis] = AxisElem(c)
		blurred[c] = convolve(Slice(in, specs...))
	}
	return Concatenate(blurred, channelsAxis)
}

// gaussianWindow builds the single-channel gaussian convolution kernel
// matching the input's dtype and channels-axis layout.
func gaussianWindow(x *Node, channelsConfig images.ChannelsAxisConfig) *Node {
	window := make([]float64, WindowSize)
	var sum float64
	for i := range window {
		d := float64(i) - float64(WindowSize-1)/2
		window[i] = math.Exp(-d * d / (2 * WindowSigma * WindowSigma))
		sum += window[i]
	}
	for i := range window {
		window[i] /= sum
	}

	flat := make([]float64, 0, WindowSize*WindowSize)
	for i := 0; i < WindowSize; i++ {
		for j := 0; j < WindowSize; j++ {
			flat = append(flat, window[i]*window[j])
		}
	}
	var dims []int
	switch channelsConfig {
	case images.ChannelsLast:
		dims = []int{WindowSize, WindowSize, 1, 1}
	case images.ChannelsFirst:
		dims = []int{1, 1, WindowSize, WindowSize}
	default:
		Panicf("invalid ChannelsAxisConfig %v", channelsConfig)
	}
	kernel := Const(x.Graph(), tensors.FromFlatDataAndDimensions(flat, dims...))
	return ConvertDType(kernel, x.DType())
}

func halveImage(x *Node, channelsConfig images.ChannelsAxisConfig) *Node {
	return MeanPool(x).ChannelsAxis(channelsConfig).Window(2).Strides(2).NoPadding().Done()
}

func validateImagePair(predicted, target *Node) {
	if predicted.Rank() != 4 {
		Panicf("structural losses require batched images of rank 4, got shape %s", predicted.Shape())
	}
	if !predicted.Shape().Equal(target.Shape()) {
		Panicf("predicted and target must have the same shape, got %s and %s",
			predicted.Shape(), target.Shape())
	}
}
