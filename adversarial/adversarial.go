// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package adversarial implements the adversarial objective of image
// restoration models: a convolutional discriminator trained side by side
// with the model being optimized, plus the generator-side loss that scores
// restored images against it.
//
// The discriminator has its own Adam optimizer and learning-rate schedule
// and is updated on detached batches, outside the caller's training graph.
// Its weights are kept non-trainable between updates so the caller's
// optimizer never touches them.
package adversarial

import (
	"fmt"
	"strings"

	"github.com/gomlx/criterion/internal/tensorutil"
	"github.com/gomlx/criterion/schedule"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
)

// Variant selects the adversarial formulation.
type Variant int

const (
	// Standard is the original two-sided binary cross-entropy objective.
	Standard Variant = iota

	// Relativistic scores each image against the average score of the
	// opposite class (RGAN).
	Relativistic

	// Wasserstein trains the discriminator as a critic, with weight
	// clipping (WGAN).
	Wasserstein

	// WassersteinGP is the Wasserstein critic regularized by a gradient
	// penalty instead of weight clipping (WGAN-GP).
	WassersteinGP
)

// String returns the variant as the objective kind that selects it.
func (v Variant) String() string {
	switch v {
	case Standard:
		return "GAN"
	case Relativistic:
		return "RGAN"
	case Wasserstein:
		return "WGAN"
	case WassersteinGP:
		return "WGAN_GP"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// VariantFromKind maps an objective kind such as "GAN", "WGAN", "WGAN_GP"
// or "RGAN" to its adversarial variant.
func VariantFromKind(kind string) (Variant, error) {
	switch {
	case strings.Contains(kind, "WGAN"):
		if strings.Contains(kind, "GP") {
			return WassersteinGP, nil
		}
		return Wasserstein, nil
	case kind == "RGAN":
		return Relativistic, nil
	case kind == "GAN":
		return Standard, nil
	}
	return Standard, errors.Errorf("unknown adversarial kind %q", kind)
}

const (
	// DefaultLearningRate of the discriminator optimizer.
	DefaultLearningRate = 1e-4

	// WassersteinGPLearningRate replaces DefaultLearningRate for WGAN-GP,
	// together with Adam betas of (0, 0.9).
	WassersteinGPLearningRate = 1e-5

	// GradientPenaltyWeight scales the WGAN-GP regularizer.
	GradientPenaltyWeight = 10.0

	// WeightClipValue bounds every critic weight after a WGAN update.
	WeightClipValue = 1.0

	// DiscriminatorScope is the context scope holding the critic weights.
	DiscriminatorScope = "discriminator"

	adamEpsilon = 1e-8
)

// Config of an adversarial objective, created with New.
type Config struct {
	ctx            *context.Context
	backend        backends.Backend
	variant        Variant
	channelsConfig images.ChannelsAxisConfig
	disSteps       int
	learningRate   float64
	gamma          float64
	milestones     []int
}

// New creates the configuration of an adversarial objective under the given
// context scope. The scope must be dedicated to this objective: the
// discriminator weights, its optimizer schedule and epoch counter all live
// under it.
func New(ctx *context.Context, backend backends.Backend, variant Variant) *Config {
	cfg := &Config{
		ctx:            ctx,
		backend:        backend,
		variant:        variant,
		channelsConfig: images.ChannelsLast,
		disSteps:       1,
		learningRate:   DefaultLearningRate,
		gamma:          schedule.DefaultGamma,
	}
	if variant == WassersteinGP {
		cfg.learningRate = WassersteinGPLearningRate
	}
	return cfg
}

// DiscriminatorSteps sets how many discriminator updates run per training
// batch. Defaults to 1.
func (cfg *Config) DiscriminatorSteps(steps int) *Config {
	cfg.disSteps = steps
	return cfg
}

// LearningRate sets the base learning rate of the discriminator optimizer.
func (cfg *Config) LearningRate(lr float64) *Config {
	cfg.learningRate = lr
	return cfg
}

// Gamma sets the learning-rate decay factor applied at each milestone.
func (cfg *Config) Gamma(gamma float64) *Config {
	cfg.gamma = gamma
	return cfg
}

// Milestones sets the epochs after which the discriminator learning rate
// decays. Without milestones the learning rate stays constant.
func (cfg *Config) Milestones(epochs ...int) *Config {
	cfg.milestones = append([]int{}, epochs...)
	return cfg
}

// ChannelsAxis sets the image layout. Defaults to images.ChannelsLast.
func (cfg *Config) ChannelsAxis(channelsConfig images.ChannelsAxisConfig) *Config {
	cfg.channelsConfig = channelsConfig
	return cfg
}

// Done builds the adversarial objective.
func (cfg *Config) Done() (*Adversarial, error) {
	if cfg.disSteps < 1 {
		return nil, errors.Errorf("discriminator steps must be >= 1, got %d", cfg.disSteps)
	}
	adam := optimizers.Adam().LearningRate(cfg.learningRate).Epsilon(adamEpsilon)
	if cfg.variant == WassersteinGP {
		adam = adam.Betas(0, 0.9)
	}
	a := &Adversarial{
		ctx:            cfg.ctx,
		variant:        cfg.variant,
		channelsConfig: cfg.channelsConfig,
		disSteps:       cfg.disSteps,
		learningRate:   cfg.learningRate,
		gamma:          cfg.gamma,
		milestones:     cfg.milestones,
		optimizer:      adam.Done(),
		trackedVar: cfg.ctx.Checked(false).
			VariableWithValue("tracked_loss", 0.0).SetTrainable(false),
	}
	var err error
	a.stepExec, err = context.NewExec(cfg.backend, cfg.ctx, a.discriminatorStepGraph)
	if err != nil {
		return nil, errors.Wrap(err, "building discriminator update")
	}
	return a, nil
}

// Adversarial holds one adversarial objective: the discriminator, its
// optimizer and schedule, and the tracked discriminator loss.
type Adversarial struct {
	ctx            *context.Context
	variant        Variant
	channelsConfig images.ChannelsAxisConfig
	disSteps       int
	learningRate   float64
	gamma          float64
	milestones     []int

	optimizer   optimizers.Interface
	stepExec    *context.Exec
	weights     []*context.Variable
	trackedLoss float64
	trackedVar  *context.Variable
}

// Variant returns the adversarial formulation in use.
func (a *Adversarial) Variant() Variant { return a.variant }

// TrainStep runs the configured number of discriminator updates on one
// detached batch and tracks the mean discriminator loss, readable with
// DiscriminatorLoss.
func (a *Adversarial) TrainStep(predicted, target *tensors.Tensor) error {
	var sum float64
	for k := 0; k < a.disSteps; k++ {
		lossT, err := a.stepExec.Exec1(predicted, target)
		if err != nil {
			return errors.Wrapf(err, "discriminator update %d of %d", k+1, a.disSteps)
		}
		sum += tensorutil.ScalarFloat64(lossT)
	}
	a.trackedLoss = sum / float64(a.disSteps)
	a.trackedVar.MustSetValue(tensors.FromScalar(a.trackedLoss))
	return nil
}

// DiscriminatorLoss returns the mean discriminator loss of the most recent
// TrainStep.
func (a *Adversarial) DiscriminatorLoss() float64 { return a.trackedLoss }

// TrackedLossGraph returns the discriminator loss recorded by the last
// TrainStep as a float64 graph value, so callers can report it alongside
// graph-computed objective columns.
func (a *Adversarial) TrackedLossGraph(g *Graph) *Node {
	return a.trackedVar.ValueGraph(g)
}

// Step advances the discriminator learning-rate schedule by one epoch.
func (a *Adversarial) Step() {
	schedule.Advance(a.ctx)
}

// BuildGeneratorLossGraph scores the live generator output with the
// discriminator and returns the loss pulling it towards the real
// distribution. It is meant to be embedded in the caller's training graph;
// the discriminator weights are left frozen so only the generator receives
// gradients.
func (a *Adversarial) BuildGeneratorLossGraph(predicted, target *Node) *Node {
	ctx := a.ctx.Checked(false)
	disCtx := ctx.In(DiscriminatorScope)
	dFake := DiscriminatorGraph(disCtx, predicted, a.channelsConfig)

	var loss *Node
	switch a.variant {
	case Relativistic:
		dReal := DiscriminatorGraph(disCtx, StopGradient(target), a.channelsConfig)
		betterReal := Sub(dReal, ReduceAndKeep(dFake, ReduceMean, 0))
		betterFake := Sub(dFake, ReduceAndKeep(dReal, ReduceMean, 0))
		loss = bcePair(betterFake, betterReal)
	case Wasserstein, WassersteinGP:
		loss = Neg(ReduceAllMean(dFake))
	default:
		loss = ReduceAllMean(losses.BinaryCrossentropyLogits(
			[]*Node{OnesLike(dFake)}, []*Node{dFake}))
	}

	if a.weights == nil {
		a.captureWeights(disCtx)
	}
	a.setWeightsTrainable(false)
	return loss
}

// discriminatorStepGraph builds one optimization step of the discriminator
// on a detached batch and returns its loss.
func (a *Adversarial) discriminatorStepGraph(ctx *context.Context, fake, real *Node) *Node {
	g := fake.Graph()
	ctx = ctx.Checked(false)
	ctx.SetTraining(g, true)
	a.setWeightsTrainable(true)

	disCtx := ctx.In(DiscriminatorScope)
	dFake := DiscriminatorGraph(disCtx, fake, a.channelsConfig)
	dReal := DiscriminatorGraph(disCtx, real, a.channelsConfig)

	var loss *Node
	switch a.variant {
	case Relativistic:
		betterReal := Sub(dReal, ReduceAndKeep(dFake, ReduceMean, 0))
		betterFake := Sub(dFake, ReduceAndKeep(dReal, ReduceMean, 0))
		loss = bcePair(betterReal, betterFake)
	case Wasserstein, WassersteinGP:
		loss = ReduceAllMean(Sub(dFake, dReal))
		if a.variant == WassersteinGP {
			loss = Add(loss, a.gradientPenalty(ctx, disCtx, fake, real))
		}
	default:
		loss = bcePair(dReal, dFake)
	}

	if a.weights == nil {
		a.captureWeights(disCtx)
	}
	schedule.New(ctx, g, loss.DType()).
		BaseLearningRate(a.learningRate).
		Gamma(a.gamma).
		Milestones(a.milestones...).
		Done()
	a.optimizer.UpdateGraph(ctx, g, loss)
	if a.variant == Wasserstein {
		for _, v := range a.weights {
			v.SetValueGraph(ClipScalar(v.ValueGraph(g), -WeightClipValue, WeightClipValue))
		}
	}
	a.setWeightsTrainable(false)
	return loss
}

// gradientPenalty implements the WGAN-GP regularizer: the norm of the
// critic's gradient at random interpolates between fake and real batches is
// pulled towards 1.
func (a *Adversarial) gradientPenalty(ctx, disCtx *context.Context, fake, real *Node) *Node {
	g := fake.Graph()
	batchSize := fake.Shape().Dim(0)
	epsilon := ctx.RandomUniform(g, shapes.Make(fake.DType(), batchSize, 1, 1, 1))
	hat := Add(Mul(fake, OneMinus(epsilon)), Mul(real, epsilon))
	dHat := DiscriminatorGraph(disCtx, hat, a.channelsConfig)
	grad := Gradient(ReduceAllSum(dHat), hat)[0]
	grad = Reshape(grad, batchSize, -1)
	norm := Sqrt(ReduceSum(Square(grad), -1))
	return MulScalar(ReduceAllMean(Square(AddScalar(norm, -1))), GradientPenaltyWeight)
}

// bcePair is the two-sided binary cross-entropy on logits: realLogits are
// pushed towards the real label, fakeLogits towards the fake one.
func bcePair(realLogits, fakeLogits *Node) *Node {
	lossReal := ReduceAllMean(losses.BinaryCrossentropyLogits(
		[]*Node{OnesLike(realLogits)}, []*Node{realLogits}))
	lossFake := ReduceAllMean(losses.BinaryCrossentropyLogits(
		[]*Node{ZerosLike(fakeLogits)}, []*Node{fakeLogits}))
	return Add(lossReal, lossFake)
}

// captureWeights records the discriminator variables that take gradient
// updates, so later graph builds can freeze and unfreeze exactly those.
func (a *Adversarial) captureWeights(disCtx *context.Context) {
	for v := range disCtx.IterVariablesInScope() {
		if v.Trainable {
			a.weights = append(a.weights, v)
		}
	}
}

func (a *Adversarial) setWeightsTrainable(trainable bool) {
	for _, v := range a.weights {
		v.SetTrainable(trainable)
	}
}
