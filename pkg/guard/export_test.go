// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package guard

import "github.com/calderaops/nightdump/pkg/alert"

// NewForTest builds a guard with an injected exit recorder and
// prompter so tests observe termination instead of suffering it.
func NewForTest(exit func(int), p Prompter) *Guard {
	g := New()
	g.exit = exit
	if p != nil {
		g.prompter = p
	}
	return g
}

// ReportFault exposes the fault formatter for shape tests with
// synthetic chains.
func (g *Guard) ReportFault(command string, chain alert.CallChain) {
	g.reportFault(command, chain)
}

// TrapPanicInto is TrapPanic bound to a specific guard. recover only
// works when called directly by the deferred function, so this mirrors
// the package-level wrapper exactly.
func TrapPanicInto(g *Guard) {
	if r := recover(); r != nil {
		g.handlePanic(r)
	}
}
