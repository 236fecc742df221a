// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package alert is the alerting runtime for nightdump: a severity-keyed
// message façade routing to two independent sinks with different
// filtering rules.
//
// # Architecture
//
//	caller ──► severity façade ──► router ──► console (colorized, quiet-aware)
//	                    │             └─────► log file (ANSI-stripped, flag-gated)
//	                    └──► call-chain capture (error/fatal tiers)
//
// The console sink honors the process-wide quiet flag and terminal
// capability; the log-file sink honors the print-log and log-errors
// flags and strips every escape sequence before writing. Each severity
// carries its own fixed routing rule (see the routing table in
// severity.go).
//
// # Basic Usage
//
//	alert.Configure(alert.Flags{PrintLog: true})
//	alert.Info("starting backup")
//	alert.Error("dump failed")   // rendered with line and call chain
//
// # Thread Safety
//
// All entry points are safe for concurrent use, although the intended
// host, a single-threaded operational CLI, never needs it.
package alert

import (
	"io"
	"os"
)

// std is the process-wide router. Console output goes to stdout; the
// log target resolves on first logged write.
var std = NewRouter(os.Stdout)

// SetOutput redirects the console sink of the process-wide router.
// Intended for tests; color stays aligned with the new destination.
func SetOutput(out io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.out = out
	std.color = terminalColorCapable(out)
}

// SetLogPath overrides the default log-file path
// (<home>/logs/<program>.log). Effective only before the first logged
// write; later calls are silently ignored (first writer wins).
func SetLogPath(path string) {
	std.target.SetPath(path)
}

// LogPath returns the log-file path the process-wide router writes to.
func LogPath() string {
	return std.target.Path()
}

// =============================================================================
// Severity façade
// =============================================================================

// Success reports a completed operation. An optional source line is
// appended when given.
func Success(msg string, line ...int) {
	std.dispatch(record{sev: SeveritySuccess, text: msg, line: optLine(line)})
}

// Notice reports a noteworthy but routine event.
func Notice(msg string, line ...int) {
	std.dispatch(record{sev: SeverityNotice, text: msg, line: optLine(line)})
}

// Info reports normal progress.
func Info(msg string, line ...int) {
	std.dispatch(record{sev: SeverityInfo, text: msg, line: optLine(line)})
}

// DryRun reports the action that would have been taken.
func DryRun(msg string, line ...int) {
	std.dispatch(record{sev: SeverityDryRun, text: msg, line: optLine(line)})
}

// Warning reports a recoverable problem. Warnings are always visible on
// the console and never change the process exit code.
func Warning(msg string, line ...int) {
	std.dispatch(record{sev: SeverityWarning, text: msg, line: optLine(line)})
}

// WarningTrace is Warning with the call chain explicitly requested.
func WarningTrace(msg string, line ...int) {
	std.dispatch(record{sev: SeverityWarning, text: msg, line: optLine(line), chain: Capture(), forceChain: true})
}

// Error reports an operation failure. The call chain and source line
// are always appended; when no line is given it is taken from the
// chain's innermost frame.
func Error(msg string, line ...int) {
	std.dispatch(enriched(SeverityError, msg, optLine(line)))
}

// Fatal reports an unrecoverable failure with full provenance. It does
// not terminate the process; pair it with the exit guard.
func Fatal(msg string, line ...int) {
	std.dispatch(enriched(SeverityFatal, msg, optLine(line)))
}

// Debug is operator-console-only diagnostics, visible when the verbose
// flag is set. Never written to the log file.
func Debug(msg string) {
	std.dispatch(record{sev: SeverityDebug, text: msg, chain: Capture()})
}

// Verbose is extra progress detail, visible when the verbose flag is
// set. Never written to the log file.
func Verbose(msg string) {
	std.dispatch(record{sev: SeverityVerbose, text: msg})
}

// Header prints a section banner wrapped in a visual delimiter.
func Header(msg string) {
	std.dispatch(record{sev: SeverityHeader, text: msg})
}

// Input renders a prompt without a trailing newline.
func Input(msg string) {
	std.dispatch(record{sev: SeverityInput, text: msg})
}

// enriched builds an error/fatal record: chain always captured, line
// defaulted to the innermost frame's call site.
func enriched(sev Severity, msg string, line int) record {
	chain := Capture()
	if line == 0 {
		if inner, ok := chain.Innermost(); ok {
			line = inner.Line
		}
	}
	return record{sev: sev, text: msg, line: line, chain: chain}
}

func optLine(line []int) int {
	if len(line) > 0 {
		return line[0]
	}
	return 0
}
