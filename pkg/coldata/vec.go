// Copyright 2024 The Ratchet Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package coldata

import "fmt"

// Vec is a single typed column of up to BatchSize values plus a validity
// bitmap. Unlike the execgen-templated vectors this is adapted from, Vec
// uses a type switch over a narrow set of physical types rather than
// generated per-type files; Go's generics made the template machinery this
// package's ancestor relied on unnecessary.
type Vec struct {
	t     T
	col   interface{}
	nulls *Nulls
}

func (v *Vec) Type() T         { return v.t }
func (v *Vec) Nulls() *Nulls   { return v.nulls }
func (v *Vec) SetNulls(n *Nulls) { v.nulls = n }

func (v *Vec) Int8() []int8       { return v.col.([]int8) }
func (v *Vec) Int16() []int16     { return v.col.([]int16) }
func (v *Vec) Int32() []int32     { return v.col.([]int32) }
func (v *Vec) Int64() []int64     { return v.col.([]int64) }
func (v *Vec) Uint8() []uint8     { return v.col.([]uint8) }
func (v *Vec) Uint16() []uint16   { return v.col.([]uint16) }
func (v *Vec) Uint32() []uint32   { return v.col.([]uint32) }
func (v *Vec) Uint64() []uint64   { return v.col.([]uint64) }
func (v *Vec) Bool() []bool       { return v.col.([]bool) }
func (v *Vec) Float64() []float64 { return v.col.([]float64) }
func (v *Vec) Bytes() [][]byte    { return v.col.([][]byte) }
func (v *Vec) Datum() []interface{} { return v.col.([]interface{}) }

// Len returns the number of logical elements currently stored.
func (v *Vec) Len() int {
	switch c := v.col.(type) {
	case []int8:
		return len(c)
	case []int16:
		return len(c)
	case []int32:
		return len(c)
	case []int64:
		return len(c)
	case []uint8:
		return len(c)
	case []uint16:
		return len(c)
	case []uint32:
		return len(c)
	case []uint64:
		return len(c)
	case []bool:
		return len(c)
	case []float64:
		return len(c)
	case [][]byte:
		return len(c)
	case []interface{}:
		return len(c)
	default:
		panic(fmt.Sprintf("coldata: unhandled type %T", c))
	}
}

// AsInt64 returns element i widened to int64, valid only for integer types.
// This is the accessor the perfect-hash and radix-partition paths use so
// they don't need a type switch at every call site.
func (v *Vec) AsInt64(i int) int64 {
	switch v.t {
	case Int8:
		return int64(v.col.([]int8)[i])
	case Int16:
		return int64(v.col.([]int16)[i])
	case Int32:
		return int64(v.col.([]int32)[i])
	case Int64:
		return v.col.([]int64)[i]
	case Uint8:
		return int64(v.col.([]uint8)[i])
	case Uint16:
		return int64(v.col.([]uint16)[i])
	case Uint32:
		return int64(v.col.([]uint32)[i])
	case Uint64:
		return int64(v.col.([]uint64)[i])
	default:
		panic(fmt.Sprintf("coldata: AsInt64 unsupported for %s", v.t))
	}
}

// SetInt64 stores value (narrowed to the Vec's physical width) at index i,
// growing the backing slice if necessary. Used when materializing dense
// perfect-hash columns and when rebuilding rows from a checkpoint document.
func (v *Vec) SetInt64(i int, value int64) {
	switch v.t {
	case Int8:
		s := v.grow(i + 1).([]int8)
		s[i] = int8(value)
		v.col = s
	case Int16:
		s := v.grow(i + 1).([]int16)
		s[i] = int16(value)
		v.col = s
	case Int32:
		s := v.grow(i + 1).([]int32)
		s[i] = int32(value)
		v.col = s
	case Int64:
		s := v.grow(i + 1).([]int64)
		s[i] = value
		v.col = s
	case Uint8:
		s := v.grow(i + 1).([]uint8)
		s[i] = uint8(value)
		v.col = s
	case Uint16:
		s := v.grow(i + 1).([]uint16)
		s[i] = uint16(value)
		v.col = s
	case Uint32:
		s := v.grow(i + 1).([]uint32)
		s[i] = uint32(value)
		v.col = s
	case Uint64:
		s := v.grow(i + 1).([]uint64)
		s[i] = uint64(value)
		v.col = s
	default:
		panic(fmt.Sprintf("coldata: SetInt64 unsupported for %s", v.t))
	}
}

// SetBool stores value at index i, growing the backing slice if necessary.
// Used when rebuilding a bool column from a checkpoint document.
func (v *Vec) SetBool(i int, value bool) {
	s := v.col.([]bool)
	for len(s) <= i {
		s = append(s, false)
	}
	s[i] = value
	v.col = s
}

// SetFloat64 stores value at index i, growing the backing slice if
// necessary. Used when rebuilding a float64 column from a checkpoint
// document.
func (v *Vec) SetFloat64(i int, value float64) {
	s := v.col.([]float64)
	for len(s) <= i {
		s = append(s, 0)
	}
	s[i] = value
	v.col = s
}

// SetBytes stores value at index i, growing the backing slice if
// necessary. Used when rebuilding a bytes column from a checkpoint
// document.
func (v *Vec) SetBytes(i int, value []byte) {
	s := v.col.([][]byte)
	for len(s) <= i {
		s = append(s, nil)
	}
	s[i] = value
	v.col = s
}

func (v *Vec) grow(size int) interface{} {
	switch c := v.col.(type) {
	case []int8:
		for len(c) < size {
			c = append(c, 0)
		}
		return c
	case []int16:
		for len(c) < size {
			c = append(c, 0)
		}
		return c
	case []int32:
		for len(c) < size {
			c = append(c, 0)
		}
		return c
	case []int64:
		for len(c) < size {
			c = append(c, 0)
		}
		return c
	case []uint8:
		for len(c) < size {
			c = append(c, 0)
		}
		return c
	case []uint16:
		for len(c) < size {
			c = append(c, 0)
		}
		return c
	case []uint32:
		for len(c) < size {
			c = append(c, 0)
		}
		return c
	case []uint64:
		for len(c) < size {
			c = append(c, 0)
		}
		return c
	default:
		panic(fmt.Sprintf("coldata: grow unsupported for %T", c))
	}
}

// AppendFrom appends the element at srcIdx of src to the end of v, copying
// validity along with the value. Used by block building and by the dense
// perfect-hash gather.
func (v *Vec) AppendFrom(src *Vec, srcIdx int) {
	destIdx := v.Len()
	if src.Nulls().NullAt(srcIdx) {
		v.appendZero()
		v.nulls.SetNull(destIdx)
		return
	}
	switch v.t {
	case Bool:
		v.col = append(v.col.([]bool), src.col.([]bool)[srcIdx])
	case Int8:
		v.col = append(v.col.([]int8), src.col.([]int8)[srcIdx])
	case Int16:
		v.col = append(v.col.([]int16), src.col.([]int16)[srcIdx])
	case Int32:
		v.col = append(v.col.([]int32), src.col.([]int32)[srcIdx])
	case Int64:
		v.col = append(v.col.([]int64), src.col.([]int64)[srcIdx])
	case Uint8:
		v.col = append(v.col.([]uint8), src.col.([]uint8)[srcIdx])
	case Uint16:
		v.col = append(v.col.([]uint16), src.col.([]uint16)[srcIdx])
	case Uint32:
		v.col = append(v.col.([]uint32), src.col.([]uint32)[srcIdx])
	case Uint64:
		v.col = append(v.col.([]uint64), src.col.([]uint64)[srcIdx])
	case Float64:
		v.col = append(v.col.([]float64), src.col.([]float64)[srcIdx])
	case Bytes:
		v.col = append(v.col.([][]byte), src.col.([][]byte)[srcIdx])
	case Datum:
		v.col = append(v.col.([]interface{}), src.col.([]interface{})[srcIdx])
	default:
		panic(fmt.Sprintf("coldata: AppendFrom unhandled type %s", v.t))
	}
}

// AppendNull appends one NULL element, growing the backing slice with a
// zero value and marking it invalid. Used to null-extend the non-preserved
// side of an outer join.
func (v *Vec) AppendNull() {
	destIdx := v.Len()
	v.appendZero()
	v.nulls.SetNull(destIdx)
}

func (v *Vec) appendZero() {
	switch v.t {
	case Bool:
		v.col = append(v.col.([]bool), false)
	case Int8:
		v.col = append(v.col.([]int8), 0)
	case Int16:
		v.col = append(v.col.([]int16), 0)
	case Int32:
		v.col = append(v.col.([]int32), 0)
	case Int64:
		v.col = append(v.col.([]int64), 0)
	case Uint8:
		v.col = append(v.col.([]uint8), 0)
	case Uint16:
		v.col = append(v.col.([]uint16), 0)
	case Uint32:
		v.col = append(v.col.([]uint32), 0)
	case Uint64:
		v.col = append(v.col.([]uint64), 0)
	case Float64:
		v.col = append(v.col.([]float64), 0)
	case Bytes:
		v.col = append(v.col.([][]byte), nil)
	case Datum:
		v.col = append(v.col.([]interface{}), nil)
	default:
		panic(fmt.Sprintf("coldata: appendZero unhandled type %s", v.t))
	}
}
