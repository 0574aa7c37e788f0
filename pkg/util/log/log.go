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

// Package log provides the context-aware, structured logging surface used
// throughout the join operator, backed by zap.
package log

import (
	"context"

	"go.uber.org/zap"
)

var logger = mustBuild()

func mustBuild() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}

// SetLogger swaps the package-level logger, used by tests that want quieter
// or captured output.
func SetLogger(l *zap.SugaredLogger) { logger = l }

// pipelineIDKey retrieves an optional pipeline id stashed in ctx by the
// caller, so every log line can be correlated back to a sink/finalize call
// the way RATCHET_PRINT traces were in the source system.
type pipelineIDKey struct{}

func WithPipelineID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, pipelineIDKey{}, id)
}

func pipelineFields(ctx context.Context) []interface{} {
	if id, ok := ctx.Value(pipelineIDKey{}).(uint64); ok {
		return []interface{}{"pipeline", id}
	}
	return nil
}

func Infof(ctx context.Context, format string, args ...interface{}) {
	logger.With(pipelineFields(ctx)...).Infof(format, args...)
}

func Warningf(ctx context.Context, format string, args ...interface{}) {
	logger.With(pipelineFields(ctx)...).Warnf(format, args...)
}

func Errorf(ctx context.Context, format string, args ...interface{}) {
	logger.With(pipelineFields(ctx)...).Errorf(format, args...)
}

func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	// Levels above 2 are dropped here; the rest go to the logger at debug
	// severity, which the default production logger does not emit. There
	// is no runtime-configurable verbosity flag in this port.
	if level > 2 {
		return
	}
	logger.With(pipelineFields(ctx)...).Debugf(format, args...)
}

func Fatalf(ctx context.Context, format string, args ...interface{}) {
	logger.With(pipelineFields(ctx)...).Fatalf(format, args...)
}
