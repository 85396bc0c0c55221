// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package criterion

import (
	"fmt"
	"strings"

	"github.com/gomlx/criterion/adversarial"
	"github.com/gomlx/criterion/perceptual"
	"github.com/gomlx/criterion/pixel"
	"github.com/gomlx/criterion/structural"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/pkg/errors"
)

const (
	// DiscriminatorLabel is the synthetic column registered right after an
	// adversarial term. It reports the discriminator loss that the term
	// tracks internally, never an independent computation.
	DiscriminatorLabel = "DIS"

	// TotalLabel is the synthetic column reporting the combined weighted
	// objective. It is registered only when more than one real term is
	// configured.
	TotalLabel = "Total"
)

// TermGraphFn builds the graph value of one objective term from the
// preprocessed predicted and target image batches. The returned node is a
// scalar of the batches' dtype.
type TermGraphFn func(predicted, target *Node) *Node

// Term is one column of the objective: a weighted loss with a graph
// builder, or a synthetic bookkeeping entry ("DIS", "Total") with none.
type Term struct {
	// Label of the column: the configured kind for real terms, "DIS" or
	// "Total" for the synthetic ones.
	Label string

	// Weight multiplying the term's value in the combined objective.
	// Synthetic entries never contribute to it, whatever their weight.
	Weight float64

	// Builder of the term's graph value, nil for synthetic entries.
	Builder TermGraphFn

	adv *adversarial.Adversarial
}

// IsSynthetic reports whether the term is a bookkeeping column without a
// loss of its own.
func (t *Term) IsSynthetic() bool { return t.Builder == nil }

// Adversarial returns the adversarial objective behind the term. It is set
// both on adversarial terms and on their "DIS" readout columns, and nil for
// everything else.
func (t *Term) Adversarial() *adversarial.Adversarial { return t.adv }

// newTerms resolves the parsed objective into the ordered term list,
// instantiating the term sub-modules under numbered context scopes and
// appending the synthetic bookkeeping entries.
func (cfg *Config) newTerms(parsed []parsedTerm) ([]*Term, error) {
	terms := make([]*Term, 0, len(parsed)+2)
	numReal := 0
	for _, pt := range parsed {
		termCtx := cfg.ctx.In(fmt.Sprintf("%03d_%s", len(terms), pt.kind))
		term := &Term{Label: pt.kind, Weight: pt.weight}
		switch {
		case pt.kind == "MSE":
			term.Builder = pixel.MeanSquaredError
		case pt.kind == "L1":
			term.Builder = pixel.MeanAbsoluteError
		case pt.kind == "Charbonnier":
			term.Builder = pixel.Charbonnier
		case pt.kind == "WeightedMSE":
			term.Builder = pixel.WeightedMeanSquaredError
		case pt.kind == "GradL2":
			term.Builder = func(predicted, target *Node) *Node {
				return pixel.GradientL2(predicted, target, cfg.channelsConfig)
			}
		case pt.kind == "SSIM":
			term.Builder = func(predicted, target *Node) *Node {
				return structural.SSIM(predicted, target, cfg.effectiveRange(), cfg.channelsConfig)
			}
		case pt.kind == "MSSSIM":
			term.Builder = func(predicted, target *Node) *Node {
				return structural.MultiScaleSSIM(predicted, target, cfg.effectiveRange(), cfg.channelsConfig)
			}
		case strings.Contains(pt.kind, "VGG"):
			suffix := pt.kind[strings.Index(pt.kind, "VGG")+len("VGG"):]
			stage, err := perceptual.StageFromSuffix(suffix)
			if err != nil {
				return nil, errors.WithMessagef(err, "objective term %q", pt.kind)
			}
			pBuilder := perceptual.New(termCtx, stage).
				ColorRange(cfg.effectiveRange()).
				ChannelsAxis(cfg.channelsConfig)
			if cfg.vggDir != "" {
				pBuilder = pBuilder.BaseDir(cfg.vggDir)
			}
			if cfg.vggChecksum != "" {
				pBuilder = pBuilder.Checksum(cfg.vggChecksum)
			}
			p, err := pBuilder.Done()
			if err != nil {
				return nil, errors.WithMessagef(err, "building perceptual term %q", pt.kind)
			}
			term.Builder = p.BuildLossGraph
		case strings.Contains(pt.kind, "GAN"):
			variant, err := adversarial.VariantFromKind(pt.kind)
			if err != nil {
				return nil, errors.WithMessagef(err, "objective term %q", pt.kind)
			}
			aBuilder := adversarial.New(termCtx, cfg.backend, variant).
				DiscriminatorSteps(cfg.ganSteps).
				ChannelsAxis(cfg.channelsConfig)
			if cfg.ganLearningRate > 0 {
				aBuilder = aBuilder.LearningRate(cfg.ganLearningRate)
			}
			if cfg.ganGamma > 0 {
				aBuilder = aBuilder.Gamma(cfg.ganGamma)
			}
			if len(cfg.ganMilestones) > 0 {
				aBuilder = aBuilder.Milestones(cfg.ganMilestones...)
			}
			adv, err := aBuilder.Done()
			if err != nil {
				return nil, errors.WithMessagef(err, "building adversarial term %q", pt.kind)
			}
			term.Builder = adv.BuildGeneratorLossGraph
			term.adv = adv
		default:
			return nil, errors.Errorf("unknown loss kind %q in objective", pt.kind)
		}
		terms = append(terms, term)
		numReal++

		// The discriminator readout column rides along with its term.
		if term.adv != nil {
			terms = append(terms, &Term{
				Label:  DiscriminatorLabel,
				Weight: 1,
				adv:    term.adv,
			})
		}
	}
	if numReal > 1 {
		terms = append(terms, &Term{Label: TotalLabel})
	}
	return terms, nil
}
