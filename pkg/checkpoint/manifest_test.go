// Copyright 2024 The Ratchet Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAtomicThenReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.ratchet")

	doc := Document{
		"pipeline_id": uint64(42),
		"num_chunks":  3,
	}
	require.NoError(t, WriteAtomic(path, doc, FormatBinary))

	_, err := os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "temp file should not survive a clean write")

	got, err := ReadFile(path, FormatBinary)
	require.NoError(t, err)
	require.Equal(t, 3, got["num_chunks"])
}

func TestPartitionFileNameRoundTrip(t *testing.T) {
	require.Equal(t, "part-0.ratchet", PartitionFileName(0))
	require.Equal(t, "part-17.ratchet", PartitionFileName(17))
}

func TestListPartitionFilesSortsNumerically(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []uint64{10, 2, 1} {
		require.NoError(t, WriteAtomic(filepath.Join(dir, PartitionFileName(n)), Document{"n": int(n)}, FormatBinary))
	}

	files, err := ListPartitionFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	require.Equal(t, PartitionFileName(1), filepath.Base(files[0]))
	require.Equal(t, PartitionFileName(2), filepath.Base(files[1]))
	require.Equal(t, PartitionFileName(10), filepath.Base(files[2]))
}

func TestReadFileMissingReturnsError(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadFile(filepath.Join(dir, "does-not-exist.ratchet"), FormatBinary)
	require.Error(t, err)
}
