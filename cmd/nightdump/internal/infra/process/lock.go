// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Locker defines the interface for CLI instance locking.
//
// # Description
//
// Locker prevents multiple nightdump instances from running
// simultaneously. Two overlapping runs would race on the same weekday
// rotation slot and could interleave half-written dump artifacts.
//
// # Thread Safety
//
// Implementations must be safe for use from a single goroutine. The
// lock provides inter-process synchronization, not intra-process.
type Locker interface {
	// Acquire attempts to take the exclusive lock.
	// Returns nil if the lock was taken, an error otherwise.
	Acquire() error

	// Release releases the lock if held.
	// Safe to call multiple times or if the lock was never acquired.
	Release() error

	// IsHeld returns true if this instance currently holds the lock.
	IsHeld() bool

	// HolderPID returns the PID of the process holding the lock.
	// Returns 0 if no process holds the lock or it cannot be determined.
	HolderPID() int
}

// DirLockConfig configures lock-directory placement.
type DirLockConfig struct {
	// Root is the directory the lock directory is created in.
	// Default: system temp directory.
	Root string

	// Name is the base name for the lock directory.
	// Default: "nightdump"
	Name string
}

// DefaultDirLockConfig returns sensible defaults: the system temp
// directory and "nightdump" as the lock name.
func DefaultDirLockConfig() DirLockConfig {
	return DirLockConfig{
		Root: os.TempDir(),
		Name: "nightdump",
	}
}

// DirLock implements Locker using a lock directory.
//
// # Description
//
// The presence of the directory is the mutual-exclusion primitive:
// os.Mkdir is atomic, so whichever process creates
// {Root}/{Name}.lock.d wins and every other attempt fails until the
// holder removes it. A pid file inside the directory identifies the
// holder for stale-lock diagnostics.
//
// # Limitations
//
//   - The lock survives a crash; the error message names the pid file
//     so the operator can confirm staleness and remove it manually.
//   - Like any filesystem lock it is advisory only.
//
// # Example
//
//	lock := process.NewDirLock(process.DefaultDirLockConfig())
//	if err := lock.Acquire(); err != nil {
//	    return err
//	}
//	defer lock.Release()
type DirLock struct {
	config  DirLockConfig
	dir     string
	pidPath string
	held    bool
}

// NewDirLock creates a new lock around the configured directory. It
// does not acquire the lock.
func NewDirLock(config DirLockConfig) *DirLock {
	if config.Root == "" {
		config.Root = os.TempDir()
	}
	if config.Name == "" {
		config.Name = "nightdump"
	}
	dir := filepath.Join(config.Root, config.Name+".lock.d")
	return &DirLock{
		config:  config,
		dir:     dir,
		pidPath: filepath.Join(dir, "pid"),
	}
}

// Acquire attempts to create the lock directory.
//
// # Error Conditions
//
//   - Another nightdump instance holds the lock (error names its PID)
//   - The lock root is not writable
func (l *DirLock) Acquire() error {
	if l.held {
		return nil
	}

	if err := os.Mkdir(l.dir, 0755); err != nil {
		if os.IsExist(err) {
			if pid := l.readHolderPID(); pid > 0 {
				return fmt.Errorf("another nightdump instance is running (PID %d); "+
					"if it is stale, remove %s", pid, l.dir)
			}
			return fmt.Errorf("another nightdump instance is running; "+
				"if it is stale, remove %s", l.dir)
		}
		return fmt.Errorf("failed to create lock directory %s: %w", l.dir, err)
	}

	l.held = true

	// Best effort; the lock is held either way.
	_ = os.WriteFile(l.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
	return nil
}

// Release removes the lock directory if held. Idempotent.
func (l *DirLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false

	os.Remove(l.pidPath)
	if err := os.Remove(l.dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock directory %s: %w", l.dir, err)
	}
	return nil
}

// IsHeld returns true if this instance currently holds the lock. Local
// state only; it does not re-stat the directory.
func (l *DirLock) IsHeld() bool {
	return l.held
}

// HolderPID reads the pid file inside the lock directory. Returns 0
// when the lock is free or the file is unreadable.
func (l *DirLock) HolderPID() int {
	return l.readHolderPID()
}

// Dir returns the lock directory path, for error messages and for
// registration with the exit guard.
func (l *DirLock) Dir() string {
	return l.dir
}

func (l *DirLock) readHolderPID() int {
	data, err := os.ReadFile(l.pidPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// Compile-time interface check
var _ Locker = (*DirLock)(nil)
