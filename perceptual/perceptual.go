// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package perceptual compares restored and reference images in the feature
// space of a VGG19 network pretrained on ImageNet.
//
// Both images run through the convolutional stack up to a chosen stage and
// the loss is the mean squared difference of the two feature maps. Following
// the super-resolution literature, Stage22 (second convolution of block 2,
// before its activation) is sensitive to texture, while Stage54 (fourth
// convolution of block 5) compares higher-level structure.
//
// The pretrained weights are downloaded and unpacked once, one tensor per
// file, and are never trained: gradients flow through them only to the
// restored image.
package perceptual

import (
	"fmt"
	"strings"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/pkg/errors"
)

// Stage selects where in the VGG19 stack the compared features are taken,
// identified as <block><conv>. Features are taken before the convolution's
// activation.
type Stage int

const (
	// Stage22 takes the features of the second convolution of block 2.
	Stage22 Stage = 22

	// Stage54 takes the features of the fourth convolution of block 5.
	Stage54 Stage = 54
)

// StageFromSuffix resolves a stage from the suffix of an objective kind,
// like the "22" of "VGG22".
func StageFromSuffix(suffix string) (Stage, error) {
	switch {
	case strings.Contains(suffix, "22"):
		return Stage22, nil
	case strings.Contains(suffix, "54"):
		return Stage54, nil
	}
	return 0, errors.Errorf("unknown VGG feature stage %q, available stages are 22 and 54", suffix)
}

// ImageNet channel statistics the network was trained with.
var (
	imagenetMean = []float64{0.485, 0.456, 0.406}
	imagenetStd  = []float64{0.229, 0.224, 0.225}
)

// convsPerBlock of the VGG19 convolutional stack.
var convsPerBlock = [5]int{2, 2, 4, 4, 4}

// DefaultBaseDir is where the pretrained weights are downloaded to when no
// other directory is configured.
const DefaultBaseDir = "~/.cache/gomlx/vgg19"

// Config of a perceptual term, created with New.
type Config struct {
	ctx            *context.Context
	stage          Stage
	baseDir        string
	checksum       string
	colorRange     float64
	channelsConfig images.ChannelsAxisConfig
}

// New creates the configuration of a perceptual term under the given context
// scope. The network weights are created under it on the first graph build.
func New(ctx *context.Context, stage Stage) *Config {
	return &Config{
		ctx:            ctx,
		stage:          stage,
		baseDir:        DefaultBaseDir,
		colorRange:     1,
		channelsConfig: images.ChannelsLast,
	}
}

// BaseDir sets the directory holding the downloaded weights. Defaults to
// DefaultBaseDir.
func (cfg *Config) BaseDir(dir string) *Config {
	cfg.baseDir = dir
	return cfg
}

// Checksum pins the downloaded weights file to the given sha256. Without it
// the download is not validated.
func (cfg *Config) Checksum(sha256 string) *Config {
	cfg.checksum = sha256
	return cfg
}

// ColorRange sets the maximum channel value of the compared images, usually
// 1 or 255. Defaults to 1.
func (cfg *Config) ColorRange(maxValue float64) *Config {
	cfg.colorRange = maxValue
	return cfg
}

// ChannelsAxis sets the image layout. Defaults to images.ChannelsLast.
func (cfg *Config) ChannelsAxis(channelsConfig images.ChannelsAxisConfig) *Config {
	cfg.channelsConfig = channelsConfig
	return cfg
}

// Done downloads the weights if they are not cached yet and builds the
// perceptual term.
func (cfg *Config) Done() (*Perceptual, error) {
	if cfg.stage != Stage22 && cfg.stage != Stage54 {
		return nil, errors.Errorf("unknown VGG feature stage %d, available stages are 22 and 54", cfg.stage)
	}
	if cfg.colorRange <= 0 {
		return nil, errors.Errorf("color range must be positive, got %g", cfg.colorRange)
	}
	if err := DownloadAndUnpackWeights(cfg.baseDir, cfg.checksum); err != nil {
		return nil, errors.WithMessage(err, "fetching VGG19 weights")
	}
	return &Perceptual{
		ctx:            cfg.ctx,
		stage:          cfg.stage,
		baseDir:        cfg.baseDir,
		colorRange:     cfg.colorRange,
		channelsConfig: cfg.channelsConfig,
	}, nil
}

// Perceptual scores image pairs by the distance of their VGG19 features.
type Perceptual struct {
	ctx            *context.Context
	stage          Stage
	baseDir        string
	colorRange     float64
	channelsConfig images.ChannelsAxisConfig
}

// Stage returns the configured feature stage.
func (p *Perceptual) Stage() Stage { return p.stage }

// BuildLossGraph returns the mean squared difference between the VGG19
// features of the two images. The target branch is detached, so gradients
// reach the predicted image only.
func (p *Perceptual) BuildLossGraph(predicted, target *Node) *Node {
	ctx := p.ctx.Checked(false).In("vgg19")
	fPredicted := p.featuresGraph(ctx, predicted)
	fTarget := StopGradient(p.featuresGraph(ctx, StopGradient(target)))
	return ReduceAllMean(Square(Sub(fPredicted, fTarget)))
}

// featuresGraph runs image through the pretrained stack up to the configured
// stage.
func (p *Perceptual) featuresGraph(ctx *context.Context, image *Node) *Node {
	if p.channelsConfig == images.ChannelsFirst {
		image = TransposeAllDims(image, 0, 2, 3, 1)
	}
	x := p.normalizeGraph(image)
	stopBlock, stopConv := int(p.stage)/10, int(p.stage)%10
	for block := 1; block <= stopBlock; block++ {
		for conv := 1; conv <= convsPerBlock[block-1]; conv++ {
			name := fmt.Sprintf("block%d_conv%d", block, conv)
			x = convGraph(ctx.In(name), x, p.baseDir, name)
			if block == stopBlock && conv == stopConv {
				return x
			}
			x = activations.Relu(x)
		}
		x = MaxPool(x).Window(2).Strides(2).NoPadding().Done()
	}
	return x
}

// normalizeGraph shifts the image to the distribution the network was
// trained on: scaled to [0, 1] by the color range, then standardized per
// channel.
func (p *Perceptual) normalizeGraph(image *Node) *Node {
	g := image.Graph()
	dtype := image.DType()
	mean := InsertAxes(ConvertDType(Const(g, imagenetMean), dtype), 0, 0, 0)
	std := InsertAxes(ConvertDType(Const(g, imagenetStd), dtype), 0, 0, 0)
	return Div(
		Sub(image, MulScalar(mean, p.colorRange)),
		MulScalar(std, p.colorRange))
}

// convGraph applies one pretrained 3×3 convolution, creating its kernel and
// bias variables from the unpacked weight files on first use.
func convGraph(ctx *context.Context, x *Node, baseDir, layerName string) *Node {
	g := x.Graph()
	kernel := pretrainedWeight(ctx, g, baseDir, layerName, "kernel")
	bias := pretrainedWeight(ctx, g, baseDir, layerName, "bias")
	x = Convolve(x, ConvertDType(kernel, x.DType())).PadSame().Done()
	return Add(x, InsertAxes(ConvertDType(bias, x.DType()), 0, 0, 0))
}

// pretrainedWeight returns the weight as a graph node, loading it from the
// unpacked weights directory the first time it is used.
func pretrainedWeight(ctx *context.Context, g *Graph, baseDir, layerName, weightName string) *Node {
	v := ctx.GetVariable(weightName)
	if v == nil {
		filePath := PathToTensor(baseDir, fmt.Sprintf("%s/%s/%s:0", layerName, layerName, weightName))
		value, err := tensors.Load(filePath)
		if err != nil {
			Panicf("reading pretrained VGG19 weight %q: %+v", filePath, err)
		}
		v = ctx.VariableWithValue(weightName, value).SetTrainable(false)
	}
	return v.ValueGraph(g)
}
