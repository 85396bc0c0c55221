// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package adversarial

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"
)

const (
	// DiscriminatorBaseChannels is the number of feature channels of the
	// first convolution. Channels double every other block up to 8x.
	DiscriminatorBaseChannels = 64

	// DiscriminatorDepth is the number of convolution blocks after the stem.
	DiscriminatorDepth = 7

	// NegativeSlope of the leaky-relu activations.
	NegativeSlope = 0.2
)

// DiscriminatorGraph builds the critic that scores whether a batch of
// images looks restored or real. It returns one unnormalized logit per
// image, shaped [batchSize, 1].
//
// The feature extractor is a stack of 3x3 convolutions with batch
// normalization and leaky-relu, halving the spatial resolution every other
// block while doubling channels, followed by a two-layer fully connected
// head. The head dimensions are fixed by the first image shape seen, so a
// given discriminator must always score images of the same size.
func DiscriminatorGraph(ctx *context.Context, image *Node, channelsConfig images.ChannelsAxisConfig) *Node {
	batchSize := image.Shape().Dim(0)
	channelsAxis := images.GetChannelsAxis(image, channelsConfig)
	logits := image

	layerIdx := 0
	nextCtx := func(name string) *context.Context {
		newCtx := ctx.Inf("%03d_%s", layerIdx, name)
		layerIdx++
		return newCtx
	}
	convBlock := func(features, strides int) {
		logits = layers.Convolution(nextCtx("conv"), logits).
			Channels(features).KernelSize(3).Strides(strides).PadSame().
			UseBias(false).ChannelsAxis(channelsConfig).Done()
		logits = batchnorm.New(nextCtx("norm"), logits, channelsAxis).
			Momentum(0.9).Epsilon(1e-5).Done()
		logits = activations.LeakyReluWithAlpha(logits, NegativeSlope)
	}

	features := DiscriminatorBaseChannels
	convBlock(features, 1)
	for i := 0; i < DiscriminatorDepth; i++ {
		strides := 2
		if i%2 == 1 {
			strides = 1
			features *= 2
		}
		convBlock(features, strides)
	}

	logits = Reshape(logits, batchSize, -1)
	logits = layers.Dense(nextCtx("dense"), logits, true, 1024)
	logits = activations.LeakyReluWithAlpha(logits, NegativeSlope)
	logits = layers.Dense(nextCtx("dense"), logits, true, 1)
	logits.AssertDims(batchSize, 1)
	return logits
}
