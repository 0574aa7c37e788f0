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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ratchetdb/hashjoin/pkg/coldata"
)

func TestProbeSpillWriteThenReplay(t *testing.T) {
	dir := t.TempDir()
	keyTypes := []coldata.T{coldata.Int64}
	spill := NewProbeSpill(dir, keyTypes)

	keys := makeInt64Batch(10, 20, 30)
	require.NoError(t, spill.Spill(2, keys, 3, nil))
	require.NoError(t, spill.Spill(2, makeInt64Batch(40), 1, nil))
	require.NoError(t, spill.Close())

	replayer, ok, err := OpenReplay(dir, keyTypes, 2)
	require.NoError(t, err)
	require.True(t, ok)
	defer replayer.Close()

	batch1, ok, err := replayer.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, batch1.Length())
	require.Equal(t, int64(20), batch1.ColVec(0).AsInt64(1))

	batch2, ok, err := replayer.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(40), batch2.ColVec(0).AsInt64(0))

	_, ok, err = replayer.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProbeSpillRespectsSelectionVector(t *testing.T) {
	dir := t.TempDir()
	keyTypes := []coldata.T{coldata.Int64}
	spill := NewProbeSpill(dir, keyTypes)

	keys := makeInt64Batch(1, 2, 3, 4)
	require.NoError(t, spill.Spill(0, keys, 2, []int{1, 3}))
	require.NoError(t, spill.Close())

	replayer, ok, err := OpenReplay(dir, keyTypes, 0)
	require.NoError(t, err)
	require.True(t, ok)
	defer replayer.Close()

	batch, ok, err := replayer.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), batch.ColVec(0).AsInt64(0))
	require.Equal(t, int64(4), batch.ColVec(0).AsInt64(1))
}

func TestProbeSpillReplayerPropagatesCorruptionRatherThanTreatingItAsExhaustion(t *testing.T) {
	dir := t.TempDir()
	keyTypes := []coldata.T{coldata.Int64}
	spill := NewProbeSpill(dir, keyTypes)

	require.NoError(t, spill.Spill(0, makeInt64Batch(1, 2), 2, nil))
	require.NoError(t, spill.Close())

	// Truncate the file mid-record: a partial gob stream is a decode
	// error distinct from a clean io.EOF at a record boundary.
	path := filepath.Join(dir, "probe-0.spill")
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-2))

	replayer, ok, err := OpenReplay(dir, keyTypes, 0)
	require.NoError(t, err)
	require.True(t, ok)
	defer replayer.Close()

	_, ok, err = replayer.Next()
	require.Error(t, err, "a truncated spill file must not be reported as ordinary exhaustion")
	require.False(t, ok)
}

func TestOpenReplayMissingPartitionIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	replayer, ok, err := OpenReplay(dir, []coldata.T{coldata.Int64}, 99)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, replayer)
}
