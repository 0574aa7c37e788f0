// Copyright 2024 The Ratchet Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package colmem

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ratchetdb/hashjoin/pkg/coldata"
	"github.com/ratchetdb/hashjoin/pkg/colexecerror"
	"github.com/ratchetdb/hashjoin/pkg/util/mon"
)

func TestPerformOperationChargesGrowthToAccount(t *testing.T) {
	monitor := mon.NewBytesMonitor("test", 0)
	acc := monitor.MakeBoundAccount()
	alloc := NewAllocator(&acc)

	v := coldata.NewVec(coldata.Int64, 4)
	alloc.PerformOperation([]*coldata.Vec{v}, func() {
		v.SetInt64(0, 1)
		v.SetInt64(1, 2)
		v.SetInt64(2, 3)
	})

	require.Equal(t, int64(3*8), alloc.Used())
}

func TestPerformOperationNoOpChangesNothing(t *testing.T) {
	monitor := mon.NewBytesMonitor("test", 0)
	acc := monitor.MakeBoundAccount()
	alloc := NewAllocator(&acc)

	v := coldata.NewVec(coldata.Int64, 4)
	alloc.PerformOperation([]*coldata.Vec{v}, func() {})
	require.Equal(t, int64(0), alloc.Used())
}

func TestPerformOperationPanicsWhenBudgetExceeded(t *testing.T) {
	monitor := mon.NewBytesMonitor("test", 1)
	acc := monitor.MakeBoundAccount()
	alloc := NewAllocator(&acc)

	v := coldata.NewVec(coldata.Int64, 4)
	err := colexecerror.CatchVectorizedRuntimeError(func() {
		alloc.PerformOperation([]*coldata.Vec{v}, func() {
			v.SetInt64(0, 1)
		})
	})
	require.Error(t, err)
}
