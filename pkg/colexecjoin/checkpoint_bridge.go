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
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/ratchetdb/hashjoin/pkg/checkpoint"
	"github.com/ratchetdb/hashjoin/pkg/coldata"
)

func errorfResume(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// documentFromLocals lays out a checkpoint Document: pipeline_id,
// pipeline_complete (a bool), column_size, build_size and num_chunks, then
// for each block, numbered sequentially as chunk <c> across every local
// table's blocks in order, chunk_rows_<c>, one join_key_<c>_<col>
// ColumnGroup per key column and, when the block stores a payload, one
// build_chunk_<c>_<col> per payload column. Perfect-path suspension is only
// valid when the build side stores a payload (open question 2): a perfect
// table with no payload columns (SEMI/ANTI/MARK) has nothing for the
// build_chunk keys to hold, so this always
// writes the hashed-path shape and the perfect table, if any, is dropped
// and rebuilt by rehashing on resume rather than serialized directly.
func documentFromLocals(cfg Config, pipelineID uint64, locals []*LocalHashTable) checkpoint.Document {
	doc := checkpoint.Document{
		"pipeline_id":       pipelineID,
		"pipeline_complete": true,
		"column_size":       len(cfg.ConditionTypes),
	}
	chunk := 0
	var total int
	for _, l := range locals {
		for _, blk := range l.Blocks.Blocks {
			for i, v := range blk.keys.ColVecs() {
				doc[fmt.Sprintf("join_key_%d_%d", chunk, i)] = columnGroupFromVec(v, blk.count)
			}
			if blk.payload != nil {
				for i, v := range blk.payload.ColVecs() {
					doc[fmt.Sprintf("build_chunk_%d_%d", chunk, i)] = columnGroupFromVec(v, blk.count)
				}
			}
			doc[fmt.Sprintf("chunk_rows_%d", chunk)] = blk.count
			chunk++
			total += blk.count
		}
	}
	doc["num_chunks"] = chunk
	doc["build_size"] = total
	return doc
}

// localFromDocument rebuilds a single LocalHashTable from a resumed
// Document, per open question 1: resume always merges into one hash table
// rather than reconstructing the original per-worker split, since the
// pointer table that follows is built fresh from whatever rows land in it
// regardless of how they are grouped going in.
func localFromDocument(cfg Config, doc checkpoint.Document) (*LocalHashTable, error) {
	numChunks, err := docInt(doc, "num_chunks")
	if err != nil {
		return nil, NewError(ResumeFailure, "resume", -1, err)
	}
	local := NewLocalHashTable(cfg)
	for chunk := 0; chunk < numChunks; chunk++ {
		rows, err := docInt(doc, fmt.Sprintf("chunk_rows_%d", chunk))
		if err != nil {
			return nil, NewError(ResumeFailure, "resume", -1, err)
		}
		keys := coldata.NewBatch(cfg.ConditionTypes)
		for i, t := range cfg.ConditionTypes {
			group, err := docColumnGroup(doc, fmt.Sprintf("join_key_%d_%d", chunk, i))
			if err != nil {
				return nil, NewError(ResumeFailure, "resume", -1, err)
			}
			v, err := vecToColumnGroup(t, group, rows)
			if err != nil {
				return nil, NewError(ResumeFailure, "resume", -1, err)
			}
			*keys.ColVec(i) = *v
		}
		keys.SetLength(rows)

		var payload *coldata.Batch
		if cfg.JoinType.StoresPayload() {
			payload = coldata.NewBatch(cfg.BuildTypes)
			for i, t := range cfg.BuildTypes {
				group, err := docColumnGroup(doc, fmt.Sprintf("build_chunk_%d_%d", chunk, i))
				if err != nil {
					return nil, NewError(ResumeFailure, "resume", -1, err)
				}
				v, err := vecToColumnGroup(t, group, rows)
				if err != nil {
					return nil, NewError(ResumeFailure, "resume", -1, err)
				}
				*payload.ColVec(i) = *v
			}
			payload.SetLength(rows)
		}

		if _, err := local.Sink(keys, payload, rows, nil); err != nil {
			return nil, err
		}
	}
	return local, nil
}

func docInt(doc checkpoint.Document, key string) (int, error) {
	raw, ok := doc[key]
	if !ok {
		return 0, errorfResume("checkpoint document missing %q", key)
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, errorfResume("checkpoint document key %q has unexpected type %T", key, raw)
	}
}

func docColumnGroup(doc checkpoint.Document, key string) (checkpoint.ColumnGroup, error) {
	raw, ok := doc[key]
	if !ok {
		return checkpoint.ColumnGroup{}, errorfResume("checkpoint document missing %q", key)
	}
	switch v := raw.(type) {
	case checkpoint.ColumnGroup:
		return v, nil
	case map[string]interface{}:
		// The JSON format decodes struct-valued map entries into a generic
		// map rather than back into ColumnGroup, since Document carries no
		// schema; rebuild the type, data and nulls fields by hand.
		group := checkpoint.ColumnGroup{}
		if t, ok := v["type"].(float64); ok {
			group.Type = int(t)
		}
		group.Data = v["data"]
		if nulls, ok := v["nulls"].([]interface{}); ok {
			group.Nulls = make([]uint64, len(nulls))
			for i, n := range nulls {
				if f, ok := n.(float64); ok {
					group.Nulls[i] = uint64(f)
				}
			}
		}
		return group, nil
	default:
		return checkpoint.ColumnGroup{}, errorfResume("checkpoint document key %q has unexpected type %T", key, raw)
	}
}

// SuspendInMemory writes every currently-accumulated local build table to a
// single ratchet file, the in-memory suspend variant from the wire layout.
func SuspendInMemory(path string, format checkpoint.Format, pipelineID uint64, cfg Config, locals []*LocalHashTable) error {
	doc := documentFromLocals(cfg, pipelineID, locals)
	if err := checkpoint.WriteAtomic(path, doc, format); err != nil {
		return NewError(SerializationFailure, "suspend_in_memory", -1, err)
	}
	return nil
}

// ResumeInMemory reads back a single ratchet file written by
// SuspendInMemory into one merged LocalHashTable.
func ResumeInMemory(path string, format checkpoint.Format, cfg Config) (*LocalHashTable, error) {
	doc, err := checkpoint.ReadFile(path, format)
	if err != nil {
		return nil, NewError(ResumeFailure, "resume_in_memory", -1, err)
	}
	return localFromDocument(cfg, doc)
}

// SuspendExternalPartition writes one partition's build rows to its own
// part-<N>.ratchet file inside dir, the external suspend variant.
func SuspendExternalPartition(dir string, format checkpoint.Format, pipelineID uint64, partition uint64, cfg Config, local *LocalHashTable) error {
	path := filepath.Join(dir, checkpoint.PartitionFileName(partition))
	doc := documentFromLocals(cfg, pipelineID, []*LocalHashTable{local})
	doc["partition"] = partition
	if err := checkpoint.WriteAtomic(path, doc, format); err != nil {
		return NewError(SerializationFailure, "suspend_external", int(partition), err)
	}
	return nil
}

// ResumeExternal reads back every part-<N>.ratchet file in dir, in
// partition order, returning one LocalHashTable per partition.
func ResumeExternal(dir string, format checkpoint.Format, cfg Config) ([]*LocalHashTable, error) {
	paths, err := checkpoint.ListPartitionFiles(dir)
	if err != nil {
		return nil, NewError(ResumeFailure, "resume_external", -1, err)
	}
	out := make([]*LocalHashTable, 0, len(paths))
	for _, p := range paths {
		doc, err := checkpoint.ReadFile(p, format)
		if err != nil {
			return nil, NewError(ResumeFailure, "resume_external", -1, err)
		}
		local, err := localFromDocument(cfg, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, local)
	}
	return out, nil
}
