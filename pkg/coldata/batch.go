// Copyright 2024 The Ratchet Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package coldata

// Batch is an up-to-BatchSize slice of rows across a fixed set of typed
// columns, the unit every pipeline stage operates on.
type Batch struct {
	cols []*Vec
	sel  []int
	n    int
}

// NewBatch allocates an empty Batch with one Vec per type in typs.
func NewBatch(typs []T) *Batch {
	b := &Batch{cols: make([]*Vec, len(typs))}
	for i, t := range typs {
		b.cols[i] = NewVec(t, BatchSize)
	}
	return b
}

// ColVec returns the i'th column.
func (b *Batch) ColVec(i int) *Vec { return b.cols[i] }

// ColVecs returns all columns.
func (b *Batch) ColVecs() []*Vec { return b.cols }

// Width returns the number of columns.
func (b *Batch) Width() int { return len(b.cols) }

// Length returns the number of logical rows visible through the selection
// vector (or the full column length when there is none).
func (b *Batch) Length() int { return b.n }

// SetLength sets the number of logical rows.
func (b *Batch) SetLength(n int) { b.n = n }

// Selection returns the active selection vector, or nil if every row in
// [0, Length()) is selected.
func (b *Batch) Selection() []int { return b.sel }

// SetSelection installs a selection vector.
func (b *Batch) SetSelection(sel []int) { b.sel = sel }

// Reset truncates every column to zero length and clears the selection.
func (b *Batch) Reset() {
	for _, v := range b.cols {
		*v = *NewVec(v.t, BatchSize)
	}
	b.sel = nil
	b.n = 0
}
