// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package structural

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

var backend = backends.MustNew()

// patternImage builds a deterministic [1, size, size, 1] image with values
// in [0, 1).
func patternImage(size int, phase float64) *tensors.Tensor {
	data := make([]float32, size*size)
	for i := range data {
		data[i] = float32(0.5 + 0.5*math.Sin(phase+float64(i)*0.37))
	}
	return tensors.FromFlatDataAndDimensions(data, 1, size, size, 1)
}

// constantImage builds a [1, size, size, 1] image filled with value.
func constantImage(size int, value float32) *tensors.Tensor {
	data := make([]float32, size*size)
	for i := range data {
		data[i] = value
	}
	return tensors.FromFlatDataAndDimensions(data, 1, size, size, 1)
}

func TestSSIMIdentical(t *testing.T) {
	img := patternImage(32, 0)
	got := must.M1(ExecOnce(backend, func(x, y *Node) *Node {
		return SSIM(x, y, 1.0, images.ChannelsLast)
	}, img, img))
	require.InDelta(t, 0.0, float64(tensors.ToScalar[float32](got)), 1e-4)
}

func TestSSIMConstantImages(t *testing.T) {
	// For constant inputs the variances vanish: the contrast-structure term
	// is exactly 1 and the luminance term is (2*mx*my+c1)/(mx²+my²+c1).
	x := constantImage(16, 0.5)
	y := constantImage(16, 0.25)
	c1 := 0.01 * 0.01
	luminance := (2*0.5*0.25 + c1) / (0.5*0.5 + 0.25*0.25 + c1)
	got := must.M1(ExecOnce(backend, func(x, y *Node) *Node {
		return SSIM(x, y, 1.0, images.ChannelsLast)
	}, x, y))
	require.InDelta(t, 1-luminance, float64(tensors.ToScalar[float32](got)), 1e-4)
}

func TestSSIMDistinct(t *testing.T) {
	x := patternImage(32, 0)
	y := patternImage(32, 1.3)
	got := must.M1(ExecOnce(backend, func(x, y *Node) *Node {
		return SSIM(x, y, 1.0, images.ChannelsLast)
	}, x, y))
	loss := float64(tensors.ToScalar[float32](got))
	require.Greater(t, loss, 0.01)
	require.Less(t, loss, 2.0)
}

func TestMultiScaleSSIMIdentical(t *testing.T) {
	img := patternImage(176, 0.7)
	got := must.M1(ExecOnce(backend, func(x, y *Node) *Node {
		return MultiScaleSSIM(x, y, 1.0, images.ChannelsLast)
	}, img, img))
	require.InDelta(t, 0.0, float64(tensors.ToScalar[float32](got)), 1e-3)
}

func TestSSIMChannelsFirst(t *testing.T) {
	// Same data viewed as [1, 1, size, size] must give the same loss.
	size := 32
	last := patternImage(size, 0)
	first := tensors.FromFlatDataAndDimensions(
		tensors.MustCopyFlatData[float32](last), 1, 1, size, size)
	target := patternImage(size, 2.1)
	targetFirst := tensors.FromFlatDataAndDimensions(
		tensors.MustCopyFlatData[float32](target), 1, 1, size, size)

	wantT := must.M1(ExecOnce(backend, func(x, y *Node) *Node {
		return SSIM(x, y, 1.0, images.ChannelsLast)
	}, last, target))
	gotT := must.M1(ExecOnce(backend, func(x, y *Node) *Node {
		return SSIM(x, y, 1.0, images.ChannelsFirst)
	}, first, targetFirst))
	require.InDelta(t,
		float64(tensors.ToScalar[float32](wantT)),
		float64(tensors.ToScalar[float32](gotT)), 1e-5)
}
