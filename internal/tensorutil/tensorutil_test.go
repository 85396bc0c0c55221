// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensorutil

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestScalarFloat64(t *testing.T) {
	assert.Equal(t, 3.25, ScalarFloat64(tensors.FromScalar(3.25)))
	assert.Equal(t, 0.5, ScalarFloat64(tensors.FromScalar(float32(0.5))))
	assert.InDelta(t, 1.5, ScalarFloat64(tensors.FromScalar(float16.Fromfloat32(1.5))), 1e-3)

	err := exceptions.TryCatch[error](func() {
		_ = ScalarFloat64(tensors.FromScalar(int64(7)))
	})
	require.Error(t, err)
}

func TestMatrixRoundTrip(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6}
	tensor := Float64sToTensor(values, 2, 3)
	require.True(t, tensor.Shape().Equal(shapes.Make(dtypes.Float64, 2, 3)))

	back, rows, cols := TensorToFloat64s(tensor)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, values, back)

	err := exceptions.TryCatch[error](func() {
		_ = Float64sToTensor(values, 3, 3)
	})
	require.Error(t, err)
}
