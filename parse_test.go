// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package criterion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjective(t *testing.T) {
	parsed, err := parseObjective("1*MSE")
	require.NoError(t, err)
	require.Equal(t, []parsedTerm{{weight: 1, kind: "MSE"}}, parsed)

	parsed, err = parseObjective("1*MSE+0.5*L1+0.05*VGG54")
	require.NoError(t, err)
	require.Equal(t, []parsedTerm{
		{weight: 1, kind: "MSE"},
		{weight: 0.5, kind: "L1"},
		{weight: 0.05, kind: "VGG54"},
	}, parsed)

	parsed, err = parseObjective("1e-2*GAN")
	require.NoError(t, err)
	require.Equal(t, []parsedTerm{{weight: 0.01, kind: "GAN"}}, parsed)
}

func TestParseObjectiveErrors(t *testing.T) {
	for name, objective := range map[string]string{
		"empty":            "",
		"blank":            "   ",
		"missing star":     "MSE",
		"second term bare": "1*MSE+L1",
		"bad weight":       "x*MSE",
		"missing kind":     "1*",
		"double star":      "1*M*SE",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseObjective(objective)
			assert.Errorf(t, err, "objective=%q", objective)
		})
	}
}
