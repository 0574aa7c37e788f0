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

import "github.com/cockroachdb/errors"

// Kind identifies which of the join's error categories a failure belongs
// to, per the error handling design: some are recovered locally within the
// same finalize call, others abort the query.
type Kind int

const (
	AllocationFailure Kind = iota
	UnsupportedKeyType
	DuplicateOrOutOfRangeKey
	SerializationFailure
	ResumeFailure
	InternalInvariant
)

func (k Kind) String() string {
	switch k {
	case AllocationFailure:
		return "AllocationFailure"
	case UnsupportedKeyType:
		return "UnsupportedKeyType"
	case DuplicateOrOutOfRangeKey:
		return "DuplicateOrOutOfRangeKey"
	case SerializationFailure:
		return "SerializationFailure"
	case ResumeFailure:
		return "ResumeFailure"
	case InternalInvariant:
		return "InternalInvariant"
	default:
		return "Unknown"
	}
}

// Recoverable reports whether errors of this kind trigger a local fallback
// within the same finalize call (perfect -> hashed) rather than aborting
// the query.
func (k Kind) Recoverable() bool {
	switch k {
	case UnsupportedKeyType, DuplicateOrOutOfRangeKey:
		return true
	default:
		return false
	}
}

// Error is a typed error carrying the stage and, where relevant, the
// partition a failure occurred in.
type Error struct {
	Kind      Kind
	Stage     string
	Partition int
	cause     error
}

func (e *Error) Error() string {
	if e.Partition >= 0 {
		return errors.Wrapf(e.cause, "%s at stage %q partition %d", e.Kind, e.Stage, e.Partition).Error()
	}
	return errors.Wrapf(e.cause, "%s at stage %q", e.Kind, e.Stage).Error()
}

func (e *Error) Unwrap() error { return e.cause }

// NewError constructs a typed Error. partition of -1 means "not
// partition-specific".
func NewError(kind Kind, stage string, partition int, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Partition: partition, cause: cause}
}
