// Copyright 2024 The Ratchet Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package mon provides a minimal memory-accounting monitor: enough to give
// the join's sink driver a running byte count it can compare against
// sink_memory_per_worker without pulling in a full resource-governor.
package mon

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// BytesMonitor tracks aggregate memory usage across bound accounts opened
// against it, capped at limit bytes when limit is positive; a limit of zero
// or less leaves usage uncapped.
type BytesMonitor struct {
	limit  int64
	used   int64
	name   string
}

// NewBytesMonitor creates a monitor with the given byte limit.
func NewBytesMonitor(name string, limit int64) *BytesMonitor {
	return &BytesMonitor{name: name, limit: limit}
}

// MakeBoundAccount opens a new account against the monitor.
func (m *BytesMonitor) MakeBoundAccount() BoundAccount {
	return BoundAccount{mon: m}
}

// Used returns the monitor's current aggregate usage.
func (m *BytesMonitor) Used() int64 { return atomic.LoadInt64(&m.used) }

// Limit returns the monitor's configured byte budget.
func (m *BytesMonitor) Limit() int64 { return m.limit }

// BoundAccount is a single client's slice of a BytesMonitor's budget.
type BoundAccount struct {
	mon  *BytesMonitor
	used int64
}

// Grow reserves an additional n bytes, failing with AllocationFailure
// semantics if doing so would exceed the monitor's limit.
func (b *BoundAccount) Grow(n int64) error {
	if b.mon == nil {
		b.used += n
		return nil
	}
	if b.mon.limit > 0 && atomic.AddInt64(&b.mon.used, n) > b.mon.limit {
		atomic.AddInt64(&b.mon.used, -n)
		return errors.Newf("mon: %s: budget of %d bytes exceeded", b.mon.name, b.mon.limit)
	}
	b.used += n
	return nil
}

// Shrink releases n bytes previously reserved with Grow.
func (b *BoundAccount) Shrink(n int64) {
	if b.mon != nil {
		atomic.AddInt64(&b.mon.used, -n)
	}
	b.used -= n
}

// Used returns the bytes currently reserved by this account.
func (b *BoundAccount) Used() int64 { return b.used }

// Close releases every byte still reserved by this account.
func (b *BoundAccount) Close() {
	b.Shrink(b.used)
}
