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
	"sync/atomic"
	"time"

	"github.com/ratchetdb/hashjoin/pkg/util/syncutil"
)

// Config carries the environment-provided knobs for the ratchet protocol:
// paths and the suspension deadline. The join operator treats these as
// opaque strings and a millisecond integer, exactly as the host process
// hands them in.
type Config struct {
	SuspendRequested bool
	SuspendPointMS   int64
	SuspendFile      string
	SuspendFolder    string

	ResumeRequested bool
	ResumeFile      string
	ResumeFolder    string

	Format Format
}

// Controller is the single owner of checkpoint state that DESIGN NOTES §9
// calls for in place of the source system's ambient process-wide globals:
// the query coordinator constructs one and threads it through the operator
// factory. Workers borrow it read-only for deadline checks; its state
// changes only through MarkSuspendStarted, LatchExternal, NextPartitionID
// and MarkPipelineFinalized, each atomic or mutex-guarded.
type Controller struct {
	cfg   Config
	start time.Time

	mu struct {
		syncutil.Mutex
		finalizedPipelines []uint64
	}

	suspendStarted int32 // atomic bool
	partitionCtr   uint64

	// externalLatched records the sink's external decision at the moment
	// suspension was first considered, closing the race the source system
	// had between the swizzle path setting `external` and a concurrent
	// worker testing `global_suspend && gstate.external` before it was set
	// (open question 3). Once latched it cannot flip within a query.
	externalLatched int32 // 0 = unset, 1 = false, 2 = true
}

// NewController creates a Controller with its clock started now, so
// DeadlinePassed measures elapsed wall time from construction the way
// global_start did in the source system.
func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg, start: time.Now()}
}

func (c *Controller) Config() Config { return c.cfg }

// DeadlinePassed reports whether the configured suspend point has elapsed.
// Safe to call from any worker; it only reads.
func (c *Controller) DeadlinePassed() bool {
	if !c.cfg.SuspendRequested {
		return false
	}
	return time.Since(c.start) > time.Duration(c.cfg.SuspendPointMS)*time.Millisecond
}

// LatchExternal records the sink's external decision the first time it is
// observed after a swizzle, and returns the latched value on every
// subsequent call regardless of what external becomes later. This
// implements the fix DESIGN NOTES §9 calls for.
func (c *Controller) LatchExternal(external bool) bool {
	for {
		cur := atomic.LoadInt32(&c.externalLatched)
		if cur != 0 {
			return cur == 2
		}
		want := int32(1)
		if external {
			want = 2
		}
		if atomic.CompareAndSwapInt32(&c.externalLatched, 0, want) {
			return external
		}
	}
}

// MarkSuspendStarted records that a worker has committed to serializing and
// exiting. Idempotent; returns true only for the caller that transitions
// the flag, so exactly one worker performs the write.
func (c *Controller) MarkSuspendStarted() bool {
	return atomic.CompareAndSwapInt32(&c.suspendStarted, 0, 1)
}

func (c *Controller) SuspendStarted() bool {
	return atomic.LoadInt32(&c.suspendStarted) != 0
}

// NextPartitionID hands out the next monotonically increasing external
// partition file suffix.
func (c *Controller) NextPartitionID() uint64 {
	return atomic.AddUint64(&c.partitionCtr, 1) - 1
}

// MarkPipelineFinalized appends pipelineID to the ledger of pipelines whose
// build state has been persisted.
func (c *Controller) MarkPipelineFinalized(pipelineID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.finalizedPipelines = append(c.mu.finalizedPipelines, pipelineID)
}

// FinalizedPipelines returns a snapshot of the finalized-pipeline ledger.
func (c *Controller) FinalizedPipelines() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, len(c.mu.finalizedPipelines))
	copy(out, c.mu.finalizedPipelines)
	return out
}

// SeedFinalizedPipelines replaces the ledger with the pipeline id list
// recovered from a resume manifest at startup, before any finalize call has
// run in this process.
func (c *Controller) SeedFinalizedPipelines(ids []uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.finalizedPipelines = append([]uint64(nil), ids...)
}

// IsResumable reports whether pipelineID appears in the resume manifest,
// i.e. whether this finalize call should attempt to rebuild build state
// from disk rather than run the ordinary sink-complete path.
func (c *Controller) IsResumable(pipelineID uint64) bool {
	if !c.cfg.ResumeRequested {
		return false
	}
	for _, id := range c.FinalizedPipelines() {
		if id == pipelineID {
			return true
		}
	}
	return false
}
