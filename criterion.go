// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package criterion composes and tracks weighted multi-term training
// objectives for image-restoration models (super-resolution, denoising,
// deblurring).
//
// An objective is described by a compact specification of weighted terms,
// for example "1*L1+0.05*VGG54+0.1*GAN". Each term kind resolves to a loss
// implemented by one of the sub-packages: plain pixel distances (pixel),
// structural similarity (structural), pretrained feature-space distances
// (perceptual) and adversarial objectives that train their own
// discriminator internally (adversarial).
//
// The typical training loop looks like:
//
//	crit, err := criterion.Build(backend, ctx.In("criterion"), "1*L1+0.1*GAN").Done()
//	...
//	for epoch := range numEpochs {
//		crit.StartRow()
//		for batch := range numBatches {
//			predicted := ... // Model forward on the degraded batch.
//			total, err := crit.Combine(predicted, target)
//			... // Model update, e.g. a second exec embedding crit.BuildGraph.
//			fmt.Println(crit.FormatRow(batch))
//		}
//		crit.EndRow(numBatches)
//		crit.Step()
//		crit.PlotCurves(outDir)
//		crit.Save(outDir)
//	}
//
// Combine runs the internal discriminator updates, evaluates every term on
// the batch and accumulates each column of the epoch history. To
// differentiate through the objective, embed Criterion.BuildGraph in the
// training graph: the discriminators stay frozen there, so only the model
// receives gradients.
package criterion

import (
	"fmt"
	"strings"

	"github.com/gomlx/criterion/adversarial"
	"github.com/gomlx/criterion/internal/tensorutil"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config of a Criterion, created with Build.
type Config struct {
	backend   backends.Backend
	ctx       *context.Context
	objective string

	colorRange     float64
	intensity      bool
	normalize      bool
	dtype          dtypes.DType
	channelsConfig images.ChannelsAxisConfig

	vggDir      string
	vggChecksum string

	ganSteps        int
	ganLearningRate float64
	ganGamma        float64
	ganMilestones   []int
}

// Build creates the configuration of a criterion computing the given
// objective. The context scope must be dedicated to the criterion: all
// learned and tracked term state lives under it.
//
// Configure with the setter methods and call Config.Done to materialize the
// terms.
func Build(backend backends.Backend, ctx *context.Context, objective string) *Config {
	return &Config{
		backend:        backend,
		ctx:            ctx,
		objective:      objective,
		colorRange:     255,
		dtype:          dtypes.Float32,
		channelsConfig: images.ChannelsLast,
		ganSteps:       1,
	}
}

// ColorRange sets the dynamic range of the image values, typically 255 for
// 8-bit images or 1 for pre-scaled ones. Defaults to 255.
func (cfg *Config) ColorRange(colorRange float64) *Config {
	cfg.colorRange = colorRange
	return cfg
}

// Intensity enables the luma projection: both batches are reduced from 3
// color channels to a single intensity channel before any term sees them.
// Only implemented for color range 255.
func (cfg *Config) Intensity(enabled bool) *Config {
	cfg.intensity = enabled
	return cfg
}

// Normalize divides both batches by the color range before the terms, so
// they work on values in [0, 1].
func (cfg *Config) Normalize(enabled bool) *Config {
	cfg.normalize = enabled
	return cfg
}

// DType sets the precision the terms compute in. Inputs of other float
// dtypes are converted. Defaults to dtypes.Float32; the history always
// accumulates float64 on the host.
func (cfg *Config) DType(dtype dtypes.DType) *Config {
	cfg.dtype = dtype
	return cfg
}

// ChannelsAxis sets the image layout of both batches. Defaults to
// images.ChannelsLast.
func (cfg *Config) ChannelsAxis(channelsConfig images.ChannelsAxisConfig) *Config {
	cfg.channelsConfig = channelsConfig
	return cfg
}

// VGGDir sets the directory where perceptual terms download and unpack
// their pretrained weights. Defaults to the perceptual package default.
func (cfg *Config) VGGDir(dir string) *Config {
	cfg.vggDir = dir
	return cfg
}

// VGGChecksum sets the sha256 checksum to validate the downloaded
// pretrained weights against. Empty skips validation.
func (cfg *Config) VGGChecksum(checksum string) *Config {
	cfg.vggChecksum = checksum
	return cfg
}

// DiscriminatorSteps sets how many discriminator updates every adversarial
// term runs per batch. Defaults to 1.
func (cfg *Config) DiscriminatorSteps(steps int) *Config {
	cfg.ganSteps = steps
	return cfg
}

// DiscriminatorLearningRate overrides the base learning rate of the
// adversarial terms' internal optimizers.
func (cfg *Config) DiscriminatorLearningRate(lr float64) *Config {
	cfg.ganLearningRate = lr
	return cfg
}

// Gamma sets the decay factor of the adversarial terms' learning-rate
// schedules.
func (cfg *Config) Gamma(gamma float64) *Config {
	cfg.ganGamma = gamma
	return cfg
}

// Milestones sets the epochs after which the adversarial terms' learning
// rates decay. Without milestones they stay constant.
func (cfg *Config) Milestones(epochs ...int) *Config {
	cfg.ganMilestones = append([]int{}, epochs...)
	return cfg
}

// effectiveRange is the dynamic range the terms see, after the optional
// normalization rescales both batches to [0, 1].
func (cfg *Config) effectiveRange() float64 {
	if cfg.normalize {
		return 1
	}
	return cfg.colorRange
}

// Done validates the configuration, parses the objective and materializes
// its terms. On error nothing is left behind in the context scope.
func (cfg *Config) Done() (*Criterion, error) {
	if cfg.colorRange <= 0 {
		return nil, errors.Errorf("color range must be positive, got %g", cfg.colorRange)
	}
	if cfg.intensity && cfg.colorRange != 255 {
		return nil, errors.Errorf(
			"intensity projection for color range %g is not implemented, only range 255 is supported",
			cfg.colorRange)
	}
	parsed, err := parseObjective(cfg.objective)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing objective %q", cfg.objective)
	}
	terms, err := cfg.newTerms(parsed)
	if err != nil {
		cfg.cleanup()
		return nil, err
	}

	c := &Criterion{
		backend:        cfg.backend,
		ctx:            cfg.ctx,
		objective:      cfg.objective,
		terms:          terms,
		colorRange:     cfg.colorRange,
		intensity:      cfg.intensity,
		normalize:      cfg.normalize,
		dtype:          cfg.dtype,
		channelsConfig: cfg.channelsConfig,
		totalIndex:     -1,
	}
	for i, term := range c.terms {
		if !term.IsSynthetic() && term.adv != nil {
			c.advTerms = append(c.advTerms, term.adv)
		}
		if term.Label == TotalLabel {
			c.totalIndex = i
		}
	}
	if c.totalIndex < 0 {
		// Single real term: its weighted column is already the total.
		for i, term := range c.terms {
			if !term.IsSynthetic() {
				c.totalIndex = i
				break
			}
		}
	}
	c.history = newHistory(len(terms))
	c.combineExec, err = context.NewExec(cfg.backend, cfg.ctx, c.combineGraph)
	if err != nil {
		cfg.cleanup()
		return nil, errors.Wrap(err, "building objective evaluation")
	}
	c.preprocessExec, err = context.NewExec(cfg.backend, cfg.ctx, c.preprocessPairGraph)
	if err != nil {
		cfg.cleanup()
		return nil, errors.Wrap(err, "building input preprocessing")
	}
	klog.V(1).Infof("Preparing objective: %s", c)
	return c, nil
}

// cleanup drops whatever a failed construction left in the context scope.
func (cfg *Config) cleanup() {
	if err := cfg.ctx.DeleteVariablesInScope(); err != nil {
		klog.Warningf("cleaning up after failed construction: %v", err)
	}
}

// Criterion evaluates a weighted multi-term objective per batch and keeps
// the per-epoch history of every column. Create it with Build.
type Criterion struct {
	backend   backends.Backend
	ctx       *context.Context
	objective string

	terms      []*Term
	advTerms   []*adversarial.Adversarial
	totalIndex int

	colorRange     float64
	intensity      bool
	normalize      bool
	dtype          dtypes.DType
	channelsConfig images.ChannelsAxisConfig

	history *History

	combineExec    *context.Exec
	preprocessExec *context.Exec
}

// Terms returns the ordered term list, synthetic bookkeeping entries
// included. The slice is owned by the criterion, don't modify it.
func (c *Criterion) Terms() []*Term { return c.terms }

// Labels returns the column labels in term order.
func (c *Criterion) Labels() []string {
	labels := make([]string, len(c.terms))
	for i, term := range c.terms {
		labels[i] = term.Label
	}
	return labels
}

// History returns the per-epoch record of every column.
func (c *Criterion) History() *History { return c.history }

// String renders the parsed objective, real terms only.
func (c *Criterion) String() string {
	parts := make([]string, 0, len(c.terms))
	for _, term := range c.terms {
		if term.IsSynthetic() {
			continue
		}
		parts = append(parts, fmt.Sprintf("%g*%s", term.Weight, term.Label))
	}
	return strings.Join(parts, " + ")
}

// BuildGraph builds the objective on the given predicted and target nodes:
// the input transforms, every real term and the weighted sum. It returns
// the total, which callers embed in their own training graph to
// differentiate through the objective, and the per-column scalar readouts
// in term order, which can be fed back to Observe for history accumulation.
//
// Discriminators of adversarial terms are left frozen, so a caller's
// optimizer over the surrounding graph only updates the model.
func (c *Criterion) BuildGraph(predicted, target *Node) (total *Node, columns []*Node) {
	g := predicted.Graph()
	predicted = c.preprocessGraph(predicted)
	target = c.preprocessGraph(target)

	columns = make([]*Node, len(c.terms))
	for i, term := range c.terms {
		if term.IsSynthetic() {
			continue
		}
		value := MulScalar(term.Builder(predicted, target), term.Weight)
		columns[i] = value
		if total == nil {
			total = value
		} else {
			total = Add(total, value)
		}
	}
	for i, term := range c.terms {
		if !term.IsSynthetic() {
			continue
		}
		switch term.Label {
		case DiscriminatorLabel:
			columns[i] = term.adv.TrackedLossGraph(g)
		case TotalLabel:
			columns[i] = total
		}
	}
	return
}

// combineGraph is the cached per-batch evaluation behind Combine: one
// output per column, in term order.
func (c *Criterion) combineGraph(ctx *context.Context, predicted, target *Node) []*Node {
	_, columns := c.BuildGraph(predicted, target)
	return columns
}

// preprocessPairGraph applies the input transforms to both batches, for the
// host-side callers that need the transformed tensors themselves.
func (c *Criterion) preprocessPairGraph(ctx *context.Context, predicted, target *Node) []*Node {
	return []*Node{c.preprocessGraph(predicted), c.preprocessGraph(target)}
}

// TrainDiscriminators runs the per-batch discriminator updates of every
// adversarial term on the detached batch, recording each term's tracked
// discriminator loss. Combine calls it automatically; callers embedding
// BuildGraph in their own training step call it before executing that step.
// It is a no-op without adversarial terms.
func (c *Criterion) TrainDiscriminators(predicted, target *tensors.Tensor) error {
	if len(c.advTerms) == 0 {
		return nil
	}
	transformed, err := c.preprocessExec.Exec(predicted, target)
	if err != nil {
		return errors.Wrap(err, "preprocessing batches")
	}
	for _, adv := range c.advTerms {
		if err := adv.TrainStep(transformed[0], transformed[1]); err != nil {
			return errors.WithMessagef(err, "training %s discriminator", adv.Variant())
		}
	}
	return nil
}

// Combine evaluates the objective on one batch: first the internal
// discriminator updates of the adversarial terms, then every column, each
// accumulated into the open history row. It returns the total weighted
// objective; synthetic columns never contribute to it.
//
// StartRow must have opened a row before the first Combine of an epoch.
func (c *Criterion) Combine(predicted, target *tensors.Tensor) (*tensors.Tensor, error) {
	if !c.history.hasOpenRow() {
		return nil, errors.New("no open history row, call StartRow once per epoch before Combine")
	}
	if err := c.TrainDiscriminators(predicted, target); err != nil {
		return nil, err
	}
	columns, err := c.combineExec.Exec(predicted, target)
	if err != nil {
		return nil, errors.Wrap(err, "evaluating objective")
	}
	for i := range c.terms {
		c.history.accumulate(i, tensorutil.ScalarFloat64(columns[i]))
	}
	return columns[c.totalIndex], nil
}

// Observe accumulates one batch of externally computed column values into
// the open history row, in term order. It serves callers that embed
// BuildGraph in their own training step and execute it themselves.
func (c *Criterion) Observe(columns []*tensors.Tensor) error {
	if len(columns) != len(c.terms) {
		return errors.Errorf("got %d column values, objective has %d columns",
			len(columns), len(c.terms))
	}
	if !c.history.hasOpenRow() {
		return errors.New("no open history row, call StartRow once per epoch before Observe")
	}
	for i, value := range columns {
		c.history.accumulate(i, tensorutil.ScalarFloat64(value))
	}
	return nil
}

// Step advances the learning-rate schedule of every term that runs its own
// optimizer, currently the adversarial ones. Call it once per epoch.
func (c *Criterion) Step() {
	for _, adv := range c.advTerms {
		adv.Step()
	}
}
