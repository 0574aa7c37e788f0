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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTripJSON(t *testing.T) {
	doc := Document{
		"pipeline_id":       uint64(7),
		"pipeline_complete": true,
		"column_size":       2,
		"join_key_0_0":      ColumnGroup{Type: 4, Data: []int64{1, 2, 3}},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc, FormatJSON))

	got, err := Decode(&buf, FormatJSON)
	require.NoError(t, err)
	require.Equal(t, float64(2), got["column_size"])
	require.NotNil(t, got["join_key_0_0"])
}

func TestEncodeDecodeRoundTripBinary(t *testing.T) {
	doc := Document{
		"pipeline_id": uint64(3),
		"num_chunks":  1,
		"build_chunk_0_0": ColumnGroup{
			Type: 4,
			Data: []int64{10, 20, 30},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc, FormatBinary))

	got, err := Decode(&buf, FormatBinary)
	require.NoError(t, err)
	group, ok := got["build_chunk_0_0"].(ColumnGroup)
	require.True(t, ok)
	require.Equal(t, []int64{10, 20, 30}, group.Data)
}

func TestEncodeUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, Document{}, Format(99))
	require.Error(t, err)
}
