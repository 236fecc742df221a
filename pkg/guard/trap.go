// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package guard

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/calderaops/nightdump/pkg/alert"
)

// Arm binds the fault trap to interrupt, termination and quit signals.
// Bind it once, before any fallible operation. A trapped signal emits a
// fatal report and runs the same shutdown sequence as a normal exit,
// with status 1.
func (g *Guard) Arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.armed {
		return
	}
	g.sigCh = make(chan os.Signal, 1)
	signal.Notify(g.sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	g.armed = true
	go g.watch(g.sigCh)
}

// Disarm removes the signal bindings. Exit calls it before cleanup so
// the trap cannot re-fire during shutdown; it is safe to call when the
// trap was never armed.
func (g *Guard) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.armed {
		return
	}
	signal.Stop(g.sigCh)
	close(g.sigCh)
	g.sigCh = nil
	g.armed = false
}

// watch delivers the first trapped signal to the fault path. The
// channel closing on Disarm ends the goroutine without a report.
func (g *Guard) watch(ch chan os.Signal) {
	sig, ok := <-ch
	if !ok {
		return
	}
	// The handler goroutine carries no business frames; the report
	// names the signal and the remaining provenance.
	g.reportFault(fmt.Sprintf("received signal: %v", sig), nil)
	g.Exit(1)
}

// Fail reports err as a fatal fault and exits with status 1. It is the
// error-return counterpart of a trapped signal or panic.
func (g *Guard) Fail(err error) {
	g.reportFault(err.Error(), faultChain(err))
	g.Exit(1)
}

// faultChain resolves the provenance chain for an error. Errors that
// recorded the active chain when they were created (the dump pipeline's
// CommandError does) keep that one; Fail is usually called at top level
// after the stack has unwound, so a fresh capture there would name the
// reporter instead of the failed function.
func faultChain(err error) alert.CallChain {
	var carrier interface{ CallChain() alert.CallChain }
	if errors.As(err, &carrier) {
		if chain := carrier.CallChain(); len(chain) > 0 {
			return chain
		}
	}
	return alert.Capture()
}

// handlePanic is the tail of TrapPanic once recover has produced a
// value. The capture here still sees the panicking frames: the deferred
// call runs above them on the same goroutine.
func (g *Guard) handlePanic(r any) {
	g.reportFault(fmt.Sprintf("panic: %v", r), alert.Capture())
	g.Exit(1)
}

// reportFault emits the fatal-severity fault report through the alert
// façade.
//
// Two report shapes: a fault whose innermost frame lives in the entry
// unit itself gets the compact form (command, line, chain); a fault
// inside a deeper source unit gets the expanded form naming the failed
// function, the caller line it was invoked from, and the line inside
// the failed unit: provenance back to the call site, not just the
// innermost line.
func (g *Guard) reportFault(command string, chain alert.CallChain) {
	prog := filepath.Base(os.Args[0])

	inner, ok := chain.Innermost()
	if !ok {
		alert.Fatal(fmt.Sprintf("%s: %s", prog, command))
		return
	}

	if inner.Unit == chain[0].Unit {
		alert.Fatal(fmt.Sprintf("%s: %s failed at %s:%d", prog, command, inner.Unit, inner.Line), inner.Line)
		return
	}

	caller, _ := chain.Caller()
	alert.Fatal(fmt.Sprintf("%s: %s failed in %s (invoked from %s:%d) at %s:%d",
		prog, command, inner.Function, caller.Unit, caller.Line, inner.Unit, inner.Line), inner.Line)
}
