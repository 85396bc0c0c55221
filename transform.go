// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package criterion

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
)

// lumaWeights are the Rec. 601 coefficients of the intensity projection.
var lumaWeights = []float64{0.299, 0.587, 0.114}

// intensityGraph projects a 3-channel image batch onto its single luma
// channel, as a fixed 1x1 convolution.
func intensityGraph(image *Node, channelsConfig images.ChannelsAxisConfig) *Node {
	g := image.Graph()
	kernel := ConvertDType(Const(g, lumaWeights), image.DType())
	if channelsConfig == images.ChannelsFirst {
		kernel = Reshape(kernel, 3, 1, 1, 1)
	} else {
		kernel = Reshape(kernel, 1, 1, 3, 1)
	}
	return Convolve(image, kernel).ChannelsAxis(channelsConfig).NoPadding().Done()
}

// preprocessGraph applies the configured input transforms to one image
// batch: dtype conversion, intensity projection and range normalization, in
// that order. Every term sees the transformed batches.
func (c *Criterion) preprocessGraph(image *Node) *Node {
	if image.DType() != c.dtype {
		image = ConvertDType(image, c.dtype)
	}
	if c.intensity {
		image = intensityGraph(image, c.channelsConfig)
	}
	if c.normalize {
		image = DivScalar(image, c.colorRange)
	}
	return image
}
