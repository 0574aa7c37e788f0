// Copyright 2024 The Ratchet Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package colexecjoin

// JoinHTScanState walks every build row exactly once, in block/offset (or
// dense perfect-slot) order, yielding the ones the probe phase never
// matched. RIGHT and FULL joins use this to null-extend the remaining
// build rows once every probe chunk has been consumed; this is the SCAN_HT
// stage of the source state machine.
type JoinHTScanState struct {
	ht *JoinHashTable

	// Hashed-path cursor.
	blockIdx int
	offset   int

	// Perfect-path cursor.
	perfectIdx int
}

// NewJoinHTScanState creates a scan positioned before the first build row.
func NewJoinHTScanState(ht *JoinHashTable) *JoinHTScanState {
	return &JoinHTScanState{ht: ht}
}

// Next returns the next unmatched build row's RowRef, advancing the
// cursor, or ok=false once every row has been visited.
func (s *JoinHTScanState) Next() (ref RowRef, ok bool) {
	if s.ht.Perfect != nil {
		return s.nextPerfect()
	}
	return s.nextHashed()
}

func (s *JoinHTScanState) nextPerfect() (RowRef, bool) {
	pt := s.ht.Perfect
	for s.perfectIdx < pt.Len() {
		idx := s.perfectIdx
		s.perfectIdx++
		ref, occupied := pt.SlotAt(idx)
		if !occupied {
			continue
		}
		blk, offset := s.ht.Blocks.Row(ref)
		if blk.isMatched(offset) {
			continue
		}
		return ref, true
	}
	return NilRowRef, false
}

func (s *JoinHTScanState) nextHashed() (RowRef, bool) {
	blocks := s.ht.Blocks.Blocks
	for s.blockIdx < len(blocks) {
		blk := blocks[s.blockIdx]
		for s.offset < blk.count {
			offset := s.offset
			s.offset++
			if blk.isMatched(offset) {
				continue
			}
			return RowRef{Block: uint32(s.blockIdx), Offset: uint32(offset)}, true
		}
		s.blockIdx++
		s.offset = 0
	}
	return NilRowRef, false
}

// GatherFullOuter fills refs (up to cap(refs) entries) with the next batch
// of unmatched build rows, returning the slice truncated to how many it
// actually found. Callers loop until it returns an empty slice.
func GatherFullOuter(s *JoinHTScanState, refs []RowRef) []RowRef {
	refs = refs[:0]
	for len(refs) < cap(refs) {
		ref, ok := s.Next()
		if !ok {
			break
		}
		refs = append(refs, ref)
	}
	return refs
}
