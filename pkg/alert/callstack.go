// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package alert

import (
	"path/filepath"
	"runtime"
	"strings"
)

// =============================================================================
// Call-chain capture
// =============================================================================

// Frame is one entry in the active call chain: the function's short
// name, the basename of its defining source file, and the line number
// of the call site (where the function handed control to the next
// frame down, not where it currently executes).
type Frame struct {
	Function string
	Unit     string
	Line     int
}

// CallChain is the ordered list of active invocations at the moment of
// capture, outermost caller first. It is built fresh on every query and
// never cached; the chain changes with every call.
type CallChain []Frame

// excludedPrefixes lists function-name prefixes whose frames never
// appear in a captured chain. The alerting machinery's own frames (this
// package and the exit guard) are excluded so reports describe the
// caller's lineage rather than the reporting plumbing; runtime frames
// are scaffolding, not call lineage.
var excludedPrefixes = []string{
	"github.com/calderaops/nightdump/pkg/alert.",
	"github.com/calderaops/nightdump/pkg/guard.",
	"runtime.",
}

// Capture reconstructs the caller's active call chain.
//
// It walks the goroutine's invocation records from the caller outward
// to the program entry point, dropping excluded frames. There is no
// failure mode: a call from top level (or from a goroutine owned by the
// alerting machinery) yields an empty chain.
func Capture() CallChain {
	pc := make([]uintptr, 64)
	n := runtime.Callers(1, pc)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pc[:n])
	var chain CallChain
	for {
		f, more := frames.Next()
		if f.Function != "" && !excludedFrame(f.Function) {
			chain = append(chain, Frame{
				Function: shortFuncName(f.Function),
				Unit:     filepath.Base(f.File),
				Line:     f.Line,
			})
		}
		if !more {
			break
		}
	}

	// runtime.Callers yields innermost first; the chain reads
	// outermost first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Innermost returns the most deeply nested frame, the last one in the
// chain. The second value is false for an empty chain.
func (c CallChain) Innermost() (Frame, bool) {
	if len(c) == 0 {
		return Frame{}, false
	}
	return c[len(c)-1], true
}

// Caller returns the frame that invoked the innermost one, when the
// chain is deep enough to have one.
func (c CallChain) Caller() (Frame, bool) {
	if len(c) < 2 {
		return Frame{}, false
	}
	return c[len(c)-2], true
}

// String renders the chain for human display as a parenthesized,
// "<"-delimited list, outermost first:
//
//	(main < runBackup < dumpDatabase)
//
// An empty chain renders as the empty string.
func (c CallChain) String() string {
	if len(c) == 0 {
		return ""
	}
	names := make([]string, len(c))
	for i, f := range c {
		names[i] = f.Function
	}
	return "(" + strings.Join(names, " < ") + ")"
}

func excludedFrame(fn string) bool {
	for _, p := range excludedPrefixes {
		if strings.HasPrefix(fn, p) {
			return true
		}
	}
	return false
}

// shortFuncName trims "github.com/org/repo/pkg/dump.(*Engine).Run"
// down to "(*Engine).Run" and "main.runBackup" down to "runBackup".
func shortFuncName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	if i := strings.Index(fn, "."); i >= 0 {
		fn = fn[i+1:]
	}
	return fn
}
