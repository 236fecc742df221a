// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/calderaops/nightdump/pkg/guard"
)

// main is deliberately tiny: every exit path, including a panic inside
// cobra or a task, must flow through guard so the lock is released and
// the working directory is disposed of exactly once.
func main() {
	defer guard.TrapPanic()

	if err := rootCmd.Execute(); err != nil {
		guard.Fail(err)
	}
	guard.Exit(0)
}
