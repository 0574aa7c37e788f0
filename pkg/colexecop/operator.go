// Copyright 2024 The Ratchet Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package colexecop defines the pull-based Operator contract that the hash
// join, its build side and its downstream consumers all implement.
package colexecop

import (
	"context"

	"github.com/ratchetdb/hashjoin/pkg/coldata"
)

// Operator is a chunk-at-a-time pull interface driven by a pipelined
// executor: Next is called repeatedly until it returns a zero-length batch.
type Operator interface {
	Init(ctx context.Context)
	Next(ctx context.Context) *coldata.Batch
}

// OneInputNode is embedded by operators with a single input.
type OneInputNode struct {
	Input Operator
}

func NewOneInputNode(input Operator) OneInputNode {
	return OneInputNode{Input: input}
}

func (n OneInputNode) ChildCount() int { return 1 }

// TwoInputNode is embedded by operators with two inputs, such as the hash
// join's build and probe sides.
type TwoInputNode struct {
	InputOne Operator
	InputTwo Operator
}

func NewTwoInputNode(inputOne, inputTwo Operator) TwoInputNode {
	return TwoInputNode{InputOne: inputOne, InputTwo: inputTwo}
}

func (n TwoInputNode) ChildCount() int { return 2 }
