// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/gomlx/criterion"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var backend = backends.MustNew()

func TestMonitor(t *testing.T) {
	crit, err := criterion.Build(backend, context.New().In("criterion"), "1*MSE+0.5*L1").Done()
	require.NoError(t, err)

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()
	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(&buf, r)
		close(done)
	}()

	oldRefresh := RefreshPeriod
	RefreshPeriod = 0
	defer func() { RefreshPeriod = oldRefresh }()

	monitor := NewMonitor(crit)
	crit.StartRow()
	monitor.StartEpoch(1, 2)
	for batch := 0; batch < 2; batch++ {
		require.NoError(t, crit.Observe([]*tensors.Tensor{
			tensors.FromScalar(2.0), tensors.FromScalar(1.0), tensors.FromScalar(2.5),
		}))
		monitor.OnBatch(batch)
	}
	require.NoError(t, crit.EndRow(2))
	monitor.EndEpoch()

	os.Stdout = oldStdout
	require.NoError(t, w.Close())
	<-done

	out := buf.String()
	for _, want := range []string{"epoch 1", "MSE", "L1", "Total", "2.0000"} {
		assert.Containsf(t, out, want, "output:\n%s", out)
	}
}
