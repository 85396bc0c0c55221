// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package schedule implements epoch-based learning-rate decay schedules for
// the optimizers that criterion terms run internally (the adversarial
// discriminator updates).
//
// Two policies are provided, both multiplying the base learning rate by
// gamma^k:
//
//   - Step: k grows by one every StepSize epochs.
//   - Multi-step: k is the number of configured milestones already passed.
//
// The current epoch is kept in a context variable and advanced explicitly
// with [Advance], once per epoch. Graph-building code created by
// [Config.Done] reads that variable on every execution and updates the
// learning-rate variable in place, so optimizers pick up the decayed value
// automatically.
package schedule

import (
	"math"
	"sort"
	"strconv"
	"strings"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

const (
	// Scope under which the schedule keeps its epoch counter.
	Scope = "lr_schedule"

	// EpochVarName is the name of the epoch counter variable.
	EpochVarName = "epoch"

	// DefaultGamma is the decay factor used when none is configured.
	DefaultGamma = 0.5
)

// Config of an epoch-decay schedule. Create it with New, configure and then
// call Config.Done inside the graph building function whose optimizer
// should see the decayed learning rate.
type Config struct {
	ctx        *context.Context
	graph      *Graph
	dtype      dtypes.DType
	baseLR     float64
	gamma      float64
	stepSize   int
	milestones []int
}

// New creates a schedule configuration bound to the given context scope and
// graph. The learning-rate variable updated at Done is the standard
// optimizers one under the same context.
func New(ctx *context.Context, graph *Graph, dtype dtypes.DType) *Config {
	return &Config{
		ctx:   ctx,
		graph: graph,
		dtype: dtype,
		gamma: DefaultGamma,
	}
}

// BaseLearningRate sets the learning rate at epoch 0. If not set, the
// context parameter "learning_rate" is used.
func (opt *Config) BaseLearningRate(lr float64) *Config {
	opt.baseLR = lr
	return opt
}

// Gamma sets the multiplicative decay factor applied at each decay point.
func (opt *Config) Gamma(gamma float64) *Config {
	opt.gamma = gamma
	return opt
}

// StepSize decays the learning rate every stepSize epochs.
func (opt *Config) StepSize(stepSize int) *Config {
	opt.stepSize = stepSize
	return opt
}

// Milestones decays the learning rate once after each given epoch. It
// overrides StepSize.
func (opt *Config) Milestones(epochs ...int) *Config {
	opt.milestones = append([]int{}, epochs...)
	sort.Ints(opt.milestones)
	return opt
}

// Done builds the graph code that computes the decayed learning rate from
// the epoch counter and stores it in the learning-rate variable. It must be
// called before the optimizer's UpdateGraph in the same graph function.
//
// It is a no-op if the graph is not in training mode, or if neither StepSize
// nor Milestones were configured.
func (opt *Config) Done() {
	ctx := opt.ctx.Checked(false)
	graph := opt.graph

	if !ctx.IsTraining(graph) || (opt.stepSize <= 0 && len(opt.milestones) == 0) {
		return
	}

	lrValue := opt.baseLR
	if lrValue == 0 {
		lrValue = context.GetParamOr(opt.ctx, optimizers.ParamLearningRate, 0.0)
		if lrValue == 0 {
			Panicf("learning rate not configured for schedule.New and also "+
				"not set in the context as parameter %q", optimizers.ParamLearningRate)
			return
		}
	}

	epoch := ConvertDType(epochVar(ctx).ValueGraph(graph), opt.dtype)
	var decays *Node
	if len(opt.milestones) > 0 {
		for _, milestone := range opt.milestones {
			passed := ConvertDType(
				GreaterOrEqual(epoch, Scalar(graph, opt.dtype, float64(milestone))),
				opt.dtype)
			if decays == nil {
				decays = passed
			} else {
				decays = Add(decays, passed)
			}
		}
	} else {
		decays = Floor(DivScalar(epoch, float64(opt.stepSize)))
	}

	lr := MulScalar(Exp(MulScalar(decays, math.Log(opt.gamma))), lrValue)
	lrVar := optimizers.LearningRateVarWithValue(ctx, opt.dtype, lrValue)
	lrVar.SetValueGraph(lr)
}

// Advance increments the epoch counter by one and returns the new value.
// Call it once per finished epoch.
func Advance(ctx *context.Context) int {
	v := epochVar(ctx)
	epoch := tensors.ToScalar[int64](v.MustValue()) + 1
	v.MustSetValue(tensors.FromScalar(epoch))
	return int(epoch)
}

// Epoch returns the current epoch counter.
func Epoch(ctx *context.Context) int {
	return int(tensors.ToScalar[int64](epochVar(ctx).MustValue()))
}

func epochVar(ctx *context.Context) *context.Variable {
	return ctx.Checked(false).In(Scope).VariableWithValue(EpochVarName, int64(0)).SetTrainable(false)
}

// ParseMilestones parses a decay specification of the form "200" or
// "200-400-600" into the list of epochs after which the learning rate is
// multiplied by gamma.
func ParseMilestones(spec string) ([]int, error) {
	parts := strings.Split(spec, "-")
	milestones := make([]int, 0, len(parts))
	for _, part := range parts {
		epoch, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid decay milestone %q in %q", part, spec)
		}
		if epoch <= 0 {
			return nil, errors.Errorf("decay milestones must be positive, got %d in %q", epoch, spec)
		}
		milestones = append(milestones, epoch)
	}
	return milestones, nil
}
