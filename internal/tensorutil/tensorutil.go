// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensorutil holds small host-side tensor helpers shared by the
// criterion packages.
package tensorutil

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
)

// ScalarFloat64 reads a scalar tensor of any float dtype as a float64.
// Criteria may run in half, single or double precision, but the history
// matrix always accumulates float64 on the host.
//
// It panics (an exception) for non-scalar tensors or non-float dtypes.
func ScalarFloat64(t *tensors.Tensor) float64 {
	switch t.DType() {
	case dtypes.Float64:
		return tensors.ToScalar[float64](t)
	case dtypes.Float32:
		return float64(tensors.ToScalar[float32](t))
	case dtypes.Float16:
		return float64(tensors.ToScalar[float16.Float16](t).Float32())
	default:
		exceptions.Panicf("cannot read a scalar of dtype %s as float64", t.DType())
		return 0
	}
}

// Float64sToTensor packs a row-major matrix of float64 values into a rank-2
// tensor of the given dimensions.
func Float64sToTensor(values []float64, rows, cols int) *tensors.Tensor {
	if len(values) != rows*cols {
		exceptions.Panicf("matrix data has %d values, want %d (%d rows x %d cols)",
			len(values), rows*cols, rows, cols)
	}
	return tensors.FromFlatDataAndDimensions(values, rows, cols)
}

// TensorToFloat64s unpacks a rank-2 float64 tensor into its row-major values
// plus dimensions. The returned slice is a copy, safe to modify.
func TensorToFloat64s(t *tensors.Tensor) (values []float64, rows, cols int) {
	if t.Rank() != 2 {
		exceptions.Panicf("expected a rank-2 tensor, got shape %s", t.Shape())
	}
	if t.DType() != dtypes.Float64 {
		exceptions.Panicf("expected a float64 tensor, got dtype %s", t.DType())
	}
	return tensors.MustCopyFlatData[float64](t), t.Shape().Dim(0), t.Shape().Dim(1)
}
