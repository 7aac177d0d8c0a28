//go:build !debug_trace
// +build !debug_trace

// trace_off.go compiles trace logging out unless the debug_trace build tag is set:
// the decode loops trace every sample and the formatting cost is not negligible.

package logger

import (
	"context"
)

// Tracef is a no-op without the debug_trace build tag.
func Tracef(ctx context.Context, format string, args ...any) {}
