// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package alert

import "io"

// ResetForTest swaps the process-wide router for a fresh one writing to
// out and returns a restore function. Color can be forced so tests can
// exercise terminal-only behavior against a buffer; logPath, when
// non-empty, pins the log target before the first write.
func ResetForTest(out io.Writer, color bool, logPath string) func() {
	old := std
	oldFlags := CurrentFlags()

	r := NewRouter(out)
	r.color = color
	if logPath != "" {
		r.target.SetPath(logPath)
	}
	std = r

	return func() {
		_ = r.target.Close()
		std = old
		Configure(oldFlags)
	}
}
