// Copyright 2024 The Ratchet Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package coldata holds the columnar batch representation shared by every
// stage of the hash-join operator: build rows, probe rows, spilled probe
// chunks and the dense perfect-hash table all speak Batch/Vec.
package coldata

import "fmt"

// T enumerates the physical column encodings a Vec may hold. It mirrors the
// small set of physical types the join cares about: the perfect-hash path
// only ever fires for the integer members of this list.
type T int

const (
	Unknown T = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float64
	Bytes
	// Datum is the fallback encoding for any type that doesn't have a native
	// physical representation (e.g. DECIMAL, DATE); stored as boxed values.
	Datum
)

func (t T) String() string {
	switch t {
	case Bool:
		return "bool"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Float64:
		return "float64"
	case Bytes:
		return "bytes"
	case Datum:
		return "datum"
	default:
		return "unknown"
	}
}

// IsInteger reports whether t is one of the signed/unsigned integer physical
// types eligible for the perfect-hash build, per the dense-range fast path.
func (t T) IsInteger() bool {
	switch t {
	case Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64:
		return true
	default:
		return false
	}
}

// BatchSize is the maximum number of rows carried by a single Batch. It
// plays the role of STANDARD_VECTOR_SIZE in the source system.
const BatchSize = 2048

// NewVec allocates a zero-length Vec of the given physical type with cap
// capacity pre-reserved.
func NewVec(t T, capacity int) *Vec {
	v := &Vec{t: t, nulls: NewNulls(capacity)}
	switch t {
	case Bool:
		v.col = make([]bool, 0, capacity)
	case Int8:
		v.col = make([]int8, 0, capacity)
	case Int16:
		v.col = make([]int16, 0, capacity)
	case Int32:
		v.col = make([]int32, 0, capacity)
	case Int64:
		v.col = make([]int64, 0, capacity)
	case Uint8:
		v.col = make([]uint8, 0, capacity)
	case Uint16:
		v.col = make([]uint16, 0, capacity)
	case Uint32:
		v.col = make([]uint32, 0, capacity)
	case Uint64:
		v.col = make([]uint64, 0, capacity)
	case Float64:
		v.col = make([]float64, 0, capacity)
	case Bytes:
		v.col = make([][]byte, 0, capacity)
	case Datum:
		v.col = make([]interface{}, 0, capacity)
	default:
		panic(fmt.Sprintf("coldata: unhandled type %s", t))
	}
	return v
}
