// Copyright 2024 The Ratchet Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package colmem bridges batch allocation to the memory monitor so the sink
// driver can observe how many bytes its per-worker hash table is holding.
package colmem

import (
	"github.com/ratchetdb/hashjoin/pkg/coldata"
	"github.com/ratchetdb/hashjoin/pkg/colexecerror"
	"github.com/ratchetdb/hashjoin/pkg/util/mon"
)

// Allocator tracks the memory consumed by the batches and blocks a single
// worker's build side owns.
type Allocator struct {
	acc *mon.BoundAccount
}

// NewAllocator wraps a bound account.
func NewAllocator(acc *mon.BoundAccount) *Allocator {
	return &Allocator{acc: acc}
}

// PerformOperation runs fn, then updates the allocator's accounting based on
// approximate byte deltas across vecs. Mirrors the shape of the vectorized
// engine's allocator: callers mutate columns inside fn, and PerformOperation
// is where the resulting memory pressure is charged.
func (a *Allocator) PerformOperation(vecs []*coldata.Vec, fn func()) {
	before := estimateSize(vecs)
	fn()
	after := estimateSize(vecs)
	if delta := after - before; delta != 0 {
		if err := a.acc.Grow(delta); err != nil {
			colexecerror.InternalError(err)
		}
	}
}

// Used returns the bytes currently charged to this allocator's account.
func (a *Allocator) Used() int64 { return a.acc.Used() }

func estimateSize(vecs []*coldata.Vec) int64 {
	var total int64
	for _, v := range vecs {
		total += int64(v.Len()) * physicalWidth(v.Type())
	}
	return total
}

func physicalWidth(t coldata.T) int64 {
	switch t {
	case coldata.Bool, coldata.Int8, coldata.Uint8:
		return 1
	case coldata.Int16, coldata.Uint16:
		return 2
	case coldata.Int32, coldata.Uint32:
		return 4
	case coldata.Int64, coldata.Uint64, coldata.Float64:
		return 8
	case coldata.Bytes:
		return 16 // slice header approximation; contents accounted separately.
	default:
		return 16
	}
}
