// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package alert

import "sync"

// Flags is the process-wide alerting configuration.
//
// Flags are set exactly once during startup option parsing, before any
// alerting call, and are read-only afterward. The mutex exists so that
// tests adjusting flags stay race-free; production code never mutates
// them after Configure.
type Flags struct {
	// Quiet suppresses informational console output, replacing each
	// suppressed line with a one-line retraction of prior output.
	Quiet bool

	// PrintLog mirrors every log-eligible message to the log file.
	PrintLog bool

	// LogErrors mirrors warning/error/fatal messages to the log file
	// even when PrintLog is off.
	LogErrors bool

	// Verbose enables the debug and verbose console tiers.
	Verbose bool

	// Force skips interactive confirmations (treated as declined).
	Force bool
}

var (
	currentFlags Flags
	flagsMu      sync.RWMutex
)

// Configure installs the process-wide flags. Call once at startup,
// before the first alert.
func Configure(f Flags) {
	flagsMu.Lock()
	defer flagsMu.Unlock()
	currentFlags = f
}

// CurrentFlags returns the process-wide flags.
func CurrentFlags() Flags {
	flagsMu.RLock()
	defer flagsMu.RUnlock()
	return currentFlags
}
