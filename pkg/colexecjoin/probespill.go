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

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/ratchetdb/hashjoin/pkg/checkpoint"
	"github.com/ratchetdb/hashjoin/pkg/coldata"
)

// probeSpillRecord is one spilled probe chunk: its row count plus one
// ColumnGroup per key column, reusing the checkpoint package's column
// encoding so a spilled probe chunk and a checkpointed build chunk share
// one wire representation.
type probeSpillRecord struct {
	N    int
	Cols []checkpoint.ColumnGroup
}

// ProbeSpill buffers probe rows destined for a build partition that has
// not been finalized into memory yet, one file per partition, so the
// external path can finish building every partition before replaying the
// probe side against it. Each partition's file is a sequential stream of
// gob-encoded probeSpillRecord values written by a single long-lived
// encoder, since gob's type stream is only valid end-to-end within one
// Encoder/Decoder pair sharing a reader.
type ProbeSpill struct {
	dir      string
	keyTypes []coldata.T

	files    map[int]*os.File
	encoders map[int]*gob.Encoder
}

// NewProbeSpill creates a spill rooted at dir, which must already exist.
func NewProbeSpill(dir string, keyTypes []coldata.T) *ProbeSpill {
	return &ProbeSpill{
		dir:      dir,
		keyTypes: keyTypes,
		files:    make(map[int]*os.File),
		encoders: make(map[int]*gob.Encoder),
	}
}

func (ps *ProbeSpill) path(partition int) string {
	return filepath.Join(ps.dir, fmt.Sprintf("probe-%d.spill", partition))
}

func (ps *ProbeSpill) encoderFor(partition int) (*gob.Encoder, error) {
	if enc, ok := ps.encoders[partition]; ok {
		return enc, nil
	}
	f, err := os.OpenFile(ps.path(partition), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, NewError(SerializationFailure, "probe_spill", partition,
			errors.Wrap(err, "open probe spill file"))
	}
	enc := gob.NewEncoder(f)
	ps.files[partition] = f
	ps.encoders[partition] = enc
	return enc, nil
}

// Spill appends the n (optionally selected) rows of keys destined for
// partition to that partition's spill file.
func (ps *ProbeSpill) Spill(partition int, keys *coldata.Batch, n int, sel []int) error {
	enc, err := ps.encoderFor(partition)
	if err != nil {
		return err
	}
	// Materialize the selection into a dense batch so the stored record
	// doesn't need to carry the selection vector separately.
	dense := coldata.NewBatch(ps.keyTypes)
	for i := 0; i < n; i++ {
		srcIdx := i
		if sel != nil {
			srcIdx = sel[i]
		}
		for c, v := range dense.ColVecs() {
			v.AppendFrom(keys.ColVec(c), srcIdx)
		}
	}
	dense.SetLength(n)
	rec := probeSpillRecord{N: n}
	for _, v := range dense.ColVecs() {
		rec.Cols = append(rec.Cols, columnGroupFromVec(v, n))
	}
	if err := enc.Encode(rec); err != nil {
		return NewError(SerializationFailure, "probe_spill", partition,
			errors.Wrap(err, "encode probe spill record"))
	}
	return nil
}

// Close flushes and closes every open partition file. Must be called
// before any ProbeSpillReplayer opens the same files for reading.
func (ps *ProbeSpill) Close() error {
	var firstErr error
	for _, f := range ps.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ProbeSpillReplayer streams the spilled probe chunks for one partition
// back in as coldata.Batches, in the order they were spilled.
type ProbeSpillReplayer struct {
	f        *os.File
	dec      *gob.Decoder
	keyTypes []coldata.T
}

// OpenReplay opens partition's spill file for sequential replay. A missing
// file (no probe rows were ever spilled for this partition) is reported as
// ok=false rather than an error.
func OpenReplay(dir string, keyTypes []coldata.T, partition int) (replayer *ProbeSpillReplayer, ok bool, err error) {
	path := filepath.Join(dir, fmt.Sprintf("probe-%d.spill", partition))
	f, openErr := os.Open(path)
	if os.IsNotExist(openErr) {
		return nil, false, nil
	}
	if openErr != nil {
		return nil, false, NewError(SerializationFailure, "probe_spill_replay", partition,
			errors.Wrap(openErr, "open probe spill file"))
	}
	return &ProbeSpillReplayer{f: f, dec: gob.NewDecoder(f), keyTypes: keyTypes}, true, nil
}

// Next decodes the next spilled chunk, returning ok=false once the file is
// exhausted. Only io.EOF means exhaustion; any other decode error means the
// spill file is truncated or corrupt and is returned rather than silently
// treated as end of partition.
func (r *ProbeSpillReplayer) Next() (batch *coldata.Batch, ok bool, err error) {
	var rec probeSpillRecord
	if decErr := r.dec.Decode(&rec); decErr != nil {
		if decErr == io.EOF {
			return nil, false, nil
		}
		return nil, false, NewError(SerializationFailure, "probe_spill_replay", -1,
			errors.Wrap(decErr, "decode probe spill record"))
	}
	b := coldata.NewBatch(r.keyTypes)
	for i, col := range rec.Cols {
		v, convErr := vecToColumnGroup(r.keyTypes[i], col, rec.N)
		if convErr != nil {
			return nil, false, NewError(SerializationFailure, "probe_spill_replay", -1, convErr)
		}
		*b.ColVec(i) = *v
	}
	b.SetLength(rec.N)
	return b, true, nil
}

// Close releases the underlying file.
func (r *ProbeSpillReplayer) Close() error { return r.f.Close() }
