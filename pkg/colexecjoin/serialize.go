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
	"encoding/base64"

	"github.com/cockroachdb/errors"

	"github.com/ratchetdb/hashjoin/pkg/coldata"
	"github.com/ratchetdb/hashjoin/pkg/checkpoint"
)

// columnGroupFromVec captures the first n rows of v as a checkpoint
// ColumnGroup: Data holds the native Go slice so the binary (gob) format
// round-trips it exactly, while the JSON format re-derives the typed slice
// from jsoniter's generic decode on the way back in (see vecToColumnGroup).
func columnGroupFromVec(v *coldata.Vec, n int) checkpoint.ColumnGroup {
	g := checkpoint.ColumnGroup{Type: int(v.Type())}
	switch v.Type() {
	case coldata.Bool:
		g.Data = append([]bool(nil), v.Bool()[:n]...)
	case coldata.Int8:
		g.Data = append([]int8(nil), v.Int8()[:n]...)
	case coldata.Int16:
		g.Data = append([]int16(nil), v.Int16()[:n]...)
	case coldata.Int32:
		g.Data = append([]int32(nil), v.Int32()[:n]...)
	case coldata.Int64:
		g.Data = append([]int64(nil), v.Int64()[:n]...)
	case coldata.Uint8:
		g.Data = append([]uint8(nil), v.Uint8()[:n]...)
	case coldata.Uint16:
		g.Data = append([]uint16(nil), v.Uint16()[:n]...)
	case coldata.Uint32:
		g.Data = append([]uint32(nil), v.Uint32()[:n]...)
	case coldata.Uint64:
		g.Data = append([]uint64(nil), v.Uint64()[:n]...)
	case coldata.Float64:
		g.Data = append([]float64(nil), v.Float64()[:n]...)
	case coldata.Bytes:
		encoded := make([]string, n)
		for i, b := range v.Bytes()[:n] {
			encoded[i] = base64.StdEncoding.EncodeToString(b)
		}
		g.Data = encoded
	}
	if v.Nulls().MaybeHasNulls() {
		words := make([]uint64, (n+63)/64)
		for i := 0; i < n; i++ {
			if v.Nulls().NullAt(i) {
				words[i/64] |= 1 << uint(i%64)
			}
		}
		g.Nulls = words
	}
	return g
}

// vecToColumnGroup is the reverse of columnGroupFromVec, materializing a
// fresh Vec of type t from a decoded ColumnGroup. It accepts both the
// concrete-typed Data the binary format preserves and the generic
// []interface{}/float64/string shapes the JSON format produces, since
// jsoniter decodes into interface{} without a schema to guide it.
func vecToColumnGroup(t coldata.T, g checkpoint.ColumnGroup, n int) (*coldata.Vec, error) {
	v := coldata.NewVec(t, n)
	switch t {
	case coldata.Bool:
		for i := 0; i < n; i++ {
			val, err := decodeBool(g.Data, i)
			if err != nil {
				return nil, err
			}
			v.SetBool(i, val)
		}
	case coldata.Float64:
		for i := 0; i < n; i++ {
			f, err := decodeNumber(g.Data, i)
			if err != nil {
				return nil, err
			}
			v.SetFloat64(i, f)
		}
	case coldata.Bytes:
		strs, err := decodeStrings(g.Data)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			raw, err := base64.StdEncoding.DecodeString(strs[i])
			if err != nil {
				return nil, errors.Wrap(err, "colexecjoin: decode base64 bytes column")
			}
			v.SetBytes(i, raw)
		}
	default:
		if !t.IsInteger() {
			return nil, errors.Newf("colexecjoin: unsupported checkpoint column type %s", t)
		}
		for i := 0; i < n; i++ {
			f, err := decodeNumber(g.Data, i)
			if err != nil {
				return nil, err
			}
			v.SetInt64(i, int64(f))
		}
	}
	for i := 0; i < n; i++ {
		if i/64 < len(g.Nulls) && g.Nulls[i/64]&(1<<uint(i%64)) != 0 {
			v.Nulls().SetNull(i)
		}
	}
	return v, nil
}

func decodeBool(data interface{}, i int) (bool, error) {
	switch d := data.(type) {
	case []bool:
		return d[i], nil
	case []interface{}:
		b, ok := d[i].(bool)
		if !ok {
			return false, errors.Newf("colexecjoin: element %d is not a bool", i)
		}
		return b, nil
	default:
		return false, errors.Newf("colexecjoin: unrecognized bool column encoding %T", data)
	}
}

func decodeStrings(data interface{}) ([]string, error) {
	switch d := data.(type) {
	case []string:
		return d, nil
	case []interface{}:
		out := make([]string, len(d))
		for i, v := range d {
			s, ok := v.(string)
			if !ok {
				return nil, errors.Newf("colexecjoin: element %d is not a string", i)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, errors.Newf("colexecjoin: unrecognized string column encoding %T", data)
	}
}

func decodeNumber(data interface{}, i int) (float64, error) {
	switch d := data.(type) {
	case []int8:
		return float64(d[i]), nil
	case []int16:
		return float64(d[i]), nil
	case []int32:
		return float64(d[i]), nil
	case []int64:
		return float64(d[i]), nil
	case []uint8:
		return float64(d[i]), nil
	case []uint16:
		return float64(d[i]), nil
	case []uint32:
		return float64(d[i]), nil
	case []uint64:
		return float64(d[i]), nil
	case []float64:
		return d[i], nil
	case []interface{}:
		f, ok := d[i].(float64)
		if !ok {
			return 0, errors.Newf("colexecjoin: element %d is not numeric", i)
		}
		return f, nil
	default:
		return 0, errors.Newf("colexecjoin: unrecognized numeric column encoding %T", data)
	}
}
