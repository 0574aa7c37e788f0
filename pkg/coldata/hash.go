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

import (
	"fmt"
	"math"
)

// InitHash and Rehash work together to compute a combined hash for a
// key tuple (possibly several equi-key columns): InitHash seeds every row's
// running hash, then Rehash folds in one column's contribution at a time.
// This is the same two-phase shape the vectorized engine this package is
// descended from used, generalized from per-type generated code to a type
// switch since Vec no longer needs execgen to be generic over column type.
func InitHash(buckets []uint64) {
	for i := range buckets {
		buckets[i] = 1
	}
}

const fnvPrime64 = 1099511628211
const fnvOffset64 = 14695981039346656037

func Rehash(buckets []uint64, col *Vec, n int, sel []int) {
	idx := func(i int) int {
		if sel != nil {
			return sel[i]
		}
		return i
	}
	switch col.t {
	case Bool:
		c := col.Bool()
		for i := 0; i < n; i++ {
			j := idx(i)
			var v uint64
			if c[j] {
				v = 1
			}
			buckets[i] = mix(buckets[i], v)
		}
	case Int8:
		c := col.Int8()
		for i := 0; i < n; i++ {
			buckets[i] = mix(buckets[i], uint64(c[idx(i)]))
		}
	case Int16:
		c := col.Int16()
		for i := 0; i < n; i++ {
			buckets[i] = mix(buckets[i], uint64(c[idx(i)]))
		}
	case Int32:
		c := col.Int32()
		for i := 0; i < n; i++ {
			buckets[i] = mix(buckets[i], uint64(c[idx(i)]))
		}
	case Int64:
		c := col.Int64()
		for i := 0; i < n; i++ {
			buckets[i] = mix(buckets[i], uint64(c[idx(i)]))
		}
	case Uint8:
		c := col.Uint8()
		for i := 0; i < n; i++ {
			buckets[i] = mix(buckets[i], uint64(c[idx(i)]))
		}
	case Uint16:
		c := col.Uint16()
		for i := 0; i < n; i++ {
			buckets[i] = mix(buckets[i], uint64(c[idx(i)]))
		}
	case Uint32:
		c := col.Uint32()
		for i := 0; i < n; i++ {
			buckets[i] = mix(buckets[i], uint64(c[idx(i)]))
		}
	case Uint64:
		c := col.Uint64()
		for i := 0; i < n; i++ {
			buckets[i] = mix(buckets[i], c[idx(i)])
		}
	case Float64:
		c := col.Float64()
		for i := 0; i < n; i++ {
			bits := float64ToBits(c[idx(i)])
			buckets[i] = mix(buckets[i], bits)
		}
	case Bytes:
		c := col.Bytes()
		for i := 0; i < n; i++ {
			buckets[i] = mixBytes(buckets[i], c[idx(i)])
		}
	case Datum:
		c := col.Datum()
		for i := 0; i < n; i++ {
			buckets[i] = mixBytes(buckets[i], []byte(toBytes(c[idx(i)])))
		}
	}
}

func mix(h, v uint64) uint64 {
	h ^= v
	h *= fnvPrime64
	return h
}

func mixBytes(h uint64, b []byte) uint64 {
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}

func float64ToBits(f float64) uint64 {
	return math.Float64bits(f)
}

func toBytes(v interface{}) string {
	return fmt.Sprintf("%v", v)
}
