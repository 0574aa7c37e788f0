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

// Nulls is a bitmap recording which rows of a Vec are NULL. A nil *Nulls (or
// one with hasNulls == false) means "definitely no NULLs", which lets most
// hot loops skip validity checks entirely.
type Nulls struct {
	hasNulls bool
	bitmap   []uint64
}

// NewNulls allocates a Nulls bitmap sized for at least capacity rows, all
// initially valid (non-NULL).
func NewNulls(capacity int) *Nulls {
	return &Nulls{bitmap: make([]uint64, (capacity+63)/64)}
}

func (n *Nulls) grow(size int) {
	want := (size + 64) / 64
	for len(n.bitmap) < want {
		n.bitmap = append(n.bitmap, 0)
	}
}

// SetNull marks row i as NULL.
func (n *Nulls) SetNull(i int) {
	n.grow(i)
	n.bitmap[i/64] |= 1 << uint(i%64)
	n.hasNulls = true
}

// SetValid marks row i as non-NULL.
func (n *Nulls) SetValid(i int) {
	n.grow(i)
	n.bitmap[i/64] &^= 1 << uint(i%64)
}

// NullAt reports whether row i is NULL.
func (n *Nulls) NullAt(i int) bool {
	if n == nil || !n.hasNulls {
		return false
	}
	if i/64 >= len(n.bitmap) {
		return false
	}
	return n.bitmap[i/64]&(1<<uint(i%64)) != 0
}

// MaybeHasNulls reports whether any row has been marked NULL. It is safe to
// skip per-row validity checks when this returns false.
func (n *Nulls) MaybeHasNulls() bool {
	return n != nil && n.hasNulls
}
