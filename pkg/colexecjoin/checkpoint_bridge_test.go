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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ratchetdb/hashjoin/pkg/checkpoint"
)

func TestSuspendResumeInMemoryRoundTrip(t *testing.T) {
	cfg := testConfig()
	local := NewLocalHashTable(cfg)
	_, err := local.Sink(makeInt64Batch(1, 2, 3), makeInt64Batch(1, 2, 3), 3, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "manifest.ratchet")
	require.NoError(t, SuspendInMemory(path, checkpoint.FormatBinary, 1, cfg, []*LocalHashTable{local}))

	resumed, err := ResumeInMemory(path, checkpoint.FormatBinary, cfg)
	require.NoError(t, err)
	require.Equal(t, uint64(3), resumed.Blocks.Count())
	blk := resumed.Blocks.Blocks[0]
	require.Equal(t, int64(1), blk.keys.ColVec(0).AsInt64(0))
	require.Equal(t, int64(3), blk.keys.ColVec(0).AsInt64(2))
}

func TestSuspendResumeInMemoryRoundTripJSON(t *testing.T) {
	cfg := testConfig()
	local := NewLocalHashTable(cfg)
	_, err := local.Sink(makeInt64Batch(5, 6), makeInt64Batch(5, 6), 2, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, SuspendInMemory(path, checkpoint.FormatJSON, 2, cfg, []*LocalHashTable{local}))

	resumed, err := ResumeInMemory(path, checkpoint.FormatJSON, cfg)
	require.NoError(t, err)
	require.Equal(t, uint64(2), resumed.Blocks.Count())
	blk := resumed.Blocks.Blocks[0]
	require.Equal(t, int64(6), blk.keys.ColVec(0).AsInt64(1))
}

func TestSuspendResumeExternalPartitionsInOrder(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()

	l0 := NewLocalHashTable(cfg)
	_, err := l0.Sink(makeInt64Batch(100), makeInt64Batch(100), 1, nil)
	require.NoError(t, err)
	l1 := NewLocalHashTable(cfg)
	_, err = l1.Sink(makeInt64Batch(200, 201), makeInt64Batch(200, 201), 2, nil)
	require.NoError(t, err)

	require.NoError(t, SuspendExternalPartition(dir, checkpoint.FormatBinary, 9, 0, cfg, l0))
	require.NoError(t, SuspendExternalPartition(dir, checkpoint.FormatBinary, 9, 1, cfg, l1))

	resumed, err := ResumeExternal(dir, checkpoint.FormatBinary, cfg)
	require.NoError(t, err)
	require.Len(t, resumed, 2)
	require.Equal(t, uint64(1), resumed[0].Blocks.Count())
	require.Equal(t, uint64(2), resumed[1].Blocks.Count())
	require.Equal(t, int64(100), resumed[0].Blocks.Blocks[0].keys.ColVec(0).AsInt64(0))
}

func TestResumeInMemoryMissingFileFails(t *testing.T) {
	cfg := testConfig()
	_, err := ResumeInMemory(filepath.Join(t.TempDir(), "missing.ratchet"), checkpoint.FormatBinary, cfg)
	require.Error(t, err)
}
