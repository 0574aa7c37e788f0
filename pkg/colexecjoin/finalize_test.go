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
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ratchetdb/hashjoin/pkg/checkpoint"
	"github.com/ratchetdb/hashjoin/pkg/coldata"
	"github.com/ratchetdb/hashjoin/pkg/util/mon"
)

func TestFinalizeInMemoryHashedPath(t *testing.T) {
	cfg := testConfig()
	locals := []*LocalHashTable{NewLocalHashTable(cfg)}
	_, err := locals[0].Sink(makeInt64Batch(1, 2, 3), makeInt64Batch(1, 2, 3), 3, nil)
	require.NoError(t, err)

	res, err := finalizeInMemory(context.Background(), cfg, locals)
	require.NoError(t, err)
	require.NotNil(t, res.Table)
	require.Nil(t, res.Table.Perfect)
	require.Equal(t, uint64(3), res.Table.Count())
}

func TestFinalizeInMemoryPerfectPath(t *testing.T) {
	cfg := perfectEligibleConfig()
	cfg.BuildTypes = []coldata.T{coldata.Int64}
	locals := []*LocalHashTable{NewLocalHashTable(cfg)}
	_, err := locals[0].Sink(makeInt64Batch(3, 7), makeInt64Batch(3, 7), 2, nil)
	require.NoError(t, err)

	res, err := finalizeInMemory(context.Background(), cfg, locals)
	require.NoError(t, err)
	require.NotNil(t, res.Table.Perfect)
}

func TestFinalizeInMemoryFallsBackOnDuplicateKey(t *testing.T) {
	cfg := perfectEligibleConfig()
	cfg.BuildTypes = []coldata.T{coldata.Int64}
	locals := []*LocalHashTable{NewLocalHashTable(cfg)}
	_, err := locals[0].Sink(makeInt64Batch(3, 3), makeInt64Batch(3, 3), 2, nil)
	require.NoError(t, err)

	res, err := finalizeInMemory(context.Background(), cfg, locals)
	require.NoError(t, err)
	require.Nil(t, res.Table.Perfect)
	require.NotNil(t, res.Table.Pointers)
}

func TestFinalizeExternalPreservesRowCount(t *testing.T) {
	cfg := testConfig()
	local := NewLocalHashTable(cfg)
	_, err := local.Sink(makeInt64Batch(1, 2, 3, 4), makeInt64Batch(1, 2, 3, 4), 4, nil)
	require.NoError(t, err)

	res, err := finalizeExternal(cfg, []*LocalHashTable{local})
	require.NoError(t, err)
	require.True(t, res.External)

	var total uint64
	for _, p := range res.Partitions {
		total += p.Count()
	}
	require.Equal(t, uint64(4), total)
}

func TestFinalizeDispatchesToSuspendWhenDeadlinePassed(t *testing.T) {
	cfg := testConfig()
	controller := checkpoint.NewController(checkpoint.Config{
		SuspendRequested: true,
		SuspendPointMS:   0,
		SuspendFile:      filepath.Join(t.TempDir(), "manifest.ratchet"),
		Format:           checkpoint.FormatBinary,
	})
	global := NewGlobalSinkState(cfg, mon.NewBytesMonitor("test", 0), controller, 1)
	local := NewLocalHashTable(cfg)
	_, err := local.Sink(makeInt64Batch(1), makeInt64Batch(1), 1, nil)
	require.NoError(t, err)
	global.Combine(local)

	res, err := Finalize(context.Background(), cfg, global, 1)
	require.NoError(t, err)
	require.True(t, res.Suspended)
}

func TestFinalizeResumesWhenPipelineMarkedResumable(t *testing.T) {
	cfg := testConfig()
	path := filepath.Join(t.TempDir(), "manifest.ratchet")
	seedLocal := NewLocalHashTable(cfg)
	_, err := seedLocal.Sink(makeInt64Batch(9, 10), makeInt64Batch(9, 10), 2, nil)
	require.NoError(t, err)
	require.NoError(t, SuspendInMemory(path, checkpoint.FormatBinary, 5, cfg, []*LocalHashTable{seedLocal}))

	controller := checkpoint.NewController(checkpoint.Config{
		ResumeRequested: true,
		ResumeFile:      path,
		Format:          checkpoint.FormatBinary,
	})
	controller.SeedFinalizedPipelines([]uint64{5})
	global := NewGlobalSinkState(cfg, mon.NewBytesMonitor("test", 0), controller, 5)

	res, err := Finalize(context.Background(), cfg, global, 5)
	require.NoError(t, err)
	require.NotNil(t, res.Table)
	require.Equal(t, uint64(2), res.Table.Count())
}
