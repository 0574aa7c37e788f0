// Copyright 2024 The Ratchet Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package colexecerror centralizes how the join operator turns unexpected
// conditions into panics that unwind to a single recover point, instead of
// threading an error return through every hot-path call.
package colexecerror

import "github.com/cockroachdb/errors"

// internalError wraps an error so CatchVectorizedRuntimeError can
// distinguish "an operator deliberately panicked with a real error" from an
// unrelated runtime panic, which is left to propagate and crash loudly.
type internalError struct {
	error
}

// InternalError panics with err wrapped so it is caught by
// CatchVectorizedRuntimeError further up the call stack. Used for
// AllocationFailure, InternalInvariant, and other conditions the operator
// cannot recover from locally.
func InternalError(err error) {
	panic(internalError{err})
}

// InternalErrorf is a convenience wrapper around InternalError.
func InternalErrorf(format string, args ...interface{}) {
	InternalError(errors.Newf(format, args...))
}

// CatchVectorizedRuntimeError runs fn and converts any InternalError panic
// raised within it into a returned error. Panics that did not originate
// from InternalError are re-raised.
func CatchVectorizedRuntimeError(fn func()) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			if ierr, ok := r.(internalError); ok {
				retErr = ierr.error
				return
			}
			panic(r)
		}
	}()
	fn()
	return nil
}
