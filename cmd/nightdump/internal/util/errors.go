// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package util

import (
	"fmt"
	"strings"

	"github.com/calderaops/nightdump/pkg/alert"
)

// =============================================================================
// Command Error Type
// =============================================================================

// CommandError wraps an external command failure with stderr context.
//
// # Description
//
// Provides rich error context for dump/compress pipeline failures,
// including the command line that failed, its exit code, and its
// stderr output. Implements the error interface and supports
// unwrapping via errors.Is/As. The fault trap renders the Error()
// string as the failing-command text of its report, so everything an
// operator needs to locate the fault has to be in here.
//
// # Thread Safety
//
// CommandError is immutable after creation and safe for concurrent
// reads.
//
// # Example
//
//	err := NewCommandError("pg_dump inventory", 1, "disk full", originalErr)
//	fmt.Println(err.Error()) // `pg_dump inventory (exit 1): disk full`
//
// # Limitations
//
//   - Stderr is stored as a single string, not streamed
type CommandError struct {
	// Command is the command line that was executed.
	Command string

	// ExitCode is the process exit code (-1 if unknown).
	ExitCode int

	// Stderr contains the standard error output (trimmed).
	Stderr string

	// Wrapped is the underlying error (may be nil).
	Wrapped error

	// Chain is the call chain recorded where the failure was detected.
	// It must be captured at the failure site: by the time the error
	// reaches the top-level reporter the stack has unwound and a fresh
	// capture would name the reporter, not the failed function.
	Chain alert.CallChain
}

// Error returns a formatted message: command, exit code, and stderr
// when available (stderr takes priority over the wrapped error).
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error, enabling errors.Is/As through
// the chain.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// HasStderr returns true if stderr output was captured.
func (e *CommandError) HasStderr() bool {
	return e.Stderr != ""
}

// CallChain returns the chain recorded at the failure site. The fault
// reporter looks for this accessor on errors it receives.
func (e *CommandError) CallChain() alert.CallChain {
	return e.Chain
}

// Compile-time interface satisfaction check
var _ error = (*CommandError)(nil)

// NewCommandError creates a CommandError with full context. Stderr is
// trimmed to normalize output from various tools.
func NewCommandError(cmd string, exitCode int, stderr string, wrapped error) *CommandError {
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		Wrapped:  wrapped,
	}
}
