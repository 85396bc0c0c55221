// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package criterion

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// parsedTerm is one "<weight>*<kind>" piece of an objective specification.
type parsedTerm struct {
	weight float64
	kind   string
}

// parseObjective splits an objective specification like "1*L1+0.05*VGG54"
// into its weighted terms, in order. Every piece must carry an explicit
// weight: a missing "*", a non-numeric weight or an empty kind fail with an
// error quoting the offending piece.
func parseObjective(objective string) ([]parsedTerm, error) {
	if strings.TrimSpace(objective) == "" {
		return nil, errors.New("empty objective specification")
	}
	pieces := strings.Split(objective, "+")
	parsed := make([]parsedTerm, 0, len(pieces))
	for _, piece := range pieces {
		weightStr, kind, found := strings.Cut(piece, "*")
		if !found {
			return nil, errors.Errorf(
				"objective term %q is not in the form \"<weight>*<kind>\"", piece)
		}
		if strings.Contains(kind, "*") {
			return nil, errors.Errorf("objective term %q has more than one \"*\"", piece)
		}
		weight, err := strconv.ParseFloat(weightStr, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad weight %q in objective term %q", weightStr, piece)
		}
		if kind == "" {
			return nil, errors.Errorf("objective term %q is missing its kind", piece)
		}
		parsed = append(parsed, parsedTerm{weight: weight, kind: kind})
	}
	return parsed, nil
}
