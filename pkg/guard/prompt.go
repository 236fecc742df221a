// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package guard

import (
	"bufio"
	"os"
	"strings"

	"github.com/calderaops/nightdump/pkg/alert"
	"github.com/mattn/go-isatty"
)

// Prompter asks the operator a yes/no question during shutdown.
// Implementations must treat any failure to obtain an answer as a
// decline; shutdown never blocks on unattended input.
type Prompter interface {
	Confirm(question string) bool
}

// consolePrompter reads a y/N answer from stdin. A non-interactive
// stdin declines immediately.
type consolePrompter struct{}

func (consolePrompter) Confirm(question string) bool {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return false
	}
	alert.Input(question + " [y/N]")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
