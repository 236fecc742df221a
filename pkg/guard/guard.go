// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package guard is the fault-trapping and safe-exit runtime for
// nightdump.
//
// A Guard tracks the resources a run owns (the inter-process lock and
// the temporary working directory) and guarantees they are released on
// every exit path: normal completion, explicit failure, trapped signal,
// or panic. Cleanup runs at most once no matter how many paths race to
// it.
//
// Process lifetime: INIT -> RUNNING -> (NORMAL_EXIT | FAULT) ->
// CLEANUP -> TERMINATED. Exit is the sole path to TERMINATED.
//
// # Usage
//
//	func main() {
//		defer guard.TrapPanic()
//		guard.Arm()
//		guard.RegisterLock(lock.Dir(), lock.Release)
//		guard.RegisterTempDir(workDir)
//		// ... fallible work ...
//		guard.Exit(0)
//	}
package guard

import (
	"fmt"
	"os"
	"sync"

	"github.com/calderaops/nightdump/pkg/alert"
)

// Guard owns the process shutdown sequence.
//
// All state a Guard finalizes is registered before any fallible
// operation runs; the acquire/release helpers mutate it and Exit
// finalizes it exactly once. A second Exit (a trap firing after a clean
// exit already started) is a no-op, not a double-free.
type Guard struct {
	mu sync.Mutex

	// cleanupOnce makes the shutdown sequence idempotent.
	cleanupOnce sync.Once

	lockPath    string
	releaseLock func() error
	tempDir     string

	sigCh chan os.Signal
	armed bool

	// exit terminates the process. Tests substitute a recorder.
	exit func(int)

	prompter Prompter
}

// New creates an unarmed Guard with no registered resources.
func New() *Guard {
	return &Guard{
		exit:     os.Exit,
		prompter: consolePrompter{},
	}
}

// std is the process-wide guard behind the package-level functions.
var std = New()

// RegisterLock records a held inter-process lock for release on exit.
// The path is used for the manual-remediation warning when release
// fails.
func (g *Guard) RegisterLock(path string, release func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lockPath = path
	g.releaseLock = release
}

// RegisterTempDir records the temporary working directory for disposal
// on exit.
func (g *Guard) RegisterTempDir(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tempDir = path
}

// Exit runs the shutdown sequence and terminates the process with the
// given code. It never returns.
//
// Steps, each skipped when the resource was never acquired:
//  1. Disarm the fault trap, so shutdown cannot re-enter itself.
//  2. Release the lock; failure downgrades to a warning naming the
//     path for manual remediation.
//  3. Dispose of the temporary directory. On an abnormal exit with a
//     non-empty directory the operator is offered the chance to keep
//     it: accepting moves it aside as <dir>.save; declining leaves it
//     untouched for in-place inspection. The offer is skipped, as
//     declined, under the force flag. Normal exits delete it outright.
func (g *Guard) Exit(code int) {
	g.cleanupOnce.Do(func() {
		g.Disarm()
		g.doReleaseLock()
		g.disposeTempDir(code)
	})
	g.exit(code)
}

func (g *Guard) doReleaseLock() {
	g.mu.Lock()
	release, path := g.releaseLock, g.lockPath
	g.releaseLock = nil
	g.mu.Unlock()

	if release == nil {
		return
	}
	if err := release(); err != nil {
		alert.Warning(fmt.Sprintf("could not release lock %s: %v; remove it manually", path, err))
	}
}

func (g *Guard) disposeTempDir(code int) {
	g.mu.Lock()
	dir := g.tempDir
	g.tempDir = ""
	g.mu.Unlock()

	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return
	}

	if code != 0 && dirNonEmpty(dir) {
		saved := dir + ".save"
		// Force never prompts; it takes the declined branch.
		if !alert.CurrentFlags().Force &&
			g.prompter.Confirm(fmt.Sprintf("keep working directory for inspection as %s?", saved)) {
			if err := os.Rename(dir, saved); err != nil {
				alert.Warning(fmt.Sprintf("could not preserve %s: %v", dir, err))
				return
			}
			alert.Notice("working directory preserved at " + saved)
			return
		}
		alert.Warning("working directory left at " + dir)
		return
	}

	if err := os.RemoveAll(dir); err != nil {
		alert.Warning(fmt.Sprintf("could not remove working directory %s: %v", dir, err))
	}
}

func dirNonEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

// =============================================================================
// Package-level façade over the process-wide guard
// =============================================================================

// RegisterLock records a held lock with the process-wide guard.
func RegisterLock(path string, release func() error) { std.RegisterLock(path, release) }

// RegisterTempDir records the working directory with the process-wide
// guard.
func RegisterTempDir(path string) { std.RegisterTempDir(path) }

// Arm installs the process-wide fault trap.
func Arm() { std.Arm() }

// Exit runs the process-wide shutdown sequence. It never returns.
func Exit(code int) { std.Exit(code) }

// Fail reports err as a fatal fault with full provenance and exits
// with status 1. It never returns.
func Fail(err error) { std.Fail(err) }

// TrapPanic converts an escaping panic into a diagnosable fatal report
// followed by guaranteed cleanup and exit status 1. Defer it first
// thing in main:
//
//	defer guard.TrapPanic()
func TrapPanic() {
	if r := recover(); r != nil {
		std.handlePanic(r)
	}
}
