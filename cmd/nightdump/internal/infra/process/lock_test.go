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
	"strings"
	"testing"
)

func TestDirLock_DefaultConfig(t *testing.T) {
	config := DefaultDirLockConfig()

	if config.Root == "" {
		t.Error("DefaultDirLockConfig should set Root")
	}
	if config.Name != "nightdump" {
		t.Errorf("DefaultDirLockConfig Name = %q, want %q", config.Name, "nightdump")
	}
}

func TestDirLock_NewDirLock(t *testing.T) {
	tests := []struct {
		name   string
		config DirLockConfig
		want   string
	}{
		{
			name:   "default values",
			config: DirLockConfig{},
			want:   filepath.Join(os.TempDir(), "nightdump.lock.d"),
		},
		{
			name:   "custom values",
			config: DirLockConfig{Root: "/custom/dir", Name: "myapp"},
			want:   filepath.Join("/custom/dir", "myapp.lock.d"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lock := NewDirLock(tt.config)
			if lock.Dir() != tt.want {
				t.Errorf("Dir() = %q, want %q", lock.Dir(), tt.want)
			}
			if lock.IsHeld() {
				t.Error("new lock reports held")
			}
		})
	}
}

func TestDirLock_AcquireRelease(t *testing.T) {
	lock := NewDirLock(DirLockConfig{Root: t.TempDir()})

	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	if !lock.IsHeld() {
		t.Error("IsHeld() = false after Acquire")
	}
	if _, err := os.Stat(lock.Dir()); err != nil {
		t.Errorf("lock directory missing: %v", err)
	}
	if pid := lock.HolderPID(); pid != os.Getpid() {
		t.Errorf("HolderPID() = %d, want %d", pid, os.Getpid())
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() = %v", err)
	}
	if lock.IsHeld() {
		t.Error("IsHeld() = true after Release")
	}
	if _, err := os.Stat(lock.Dir()); !os.IsNotExist(err) {
		t.Error("lock directory survived Release")
	}
}

func TestDirLock_SecondAcquireFailsWithPID(t *testing.T) {
	root := t.TempDir()
	first := NewDirLock(DirLockConfig{Root: root})
	if err := first.Acquire(); err != nil {
		t.Fatal(err)
	}
	defer first.Release()

	second := NewDirLock(DirLockConfig{Root: root})
	err := second.Acquire()
	if err == nil {
		t.Fatal("second Acquire() succeeded while lock held")
	}
	if !strings.Contains(err.Error(), "another nightdump instance is running") {
		t.Errorf("error = %q, missing holder description", err)
	}
	if !strings.Contains(err.Error(), fmt.Sprintf("PID %d", os.Getpid())) {
		t.Errorf("error = %q, missing holder PID", err)
	}
	if !strings.Contains(err.Error(), first.Dir()) {
		t.Errorf("error = %q, missing remediation path", err)
	}
	if second.IsHeld() {
		t.Error("failed Acquire left the lock marked held")
	}
}

func TestDirLock_ReleaseIdempotent(t *testing.T) {
	lock := NewDirLock(DirLockConfig{Root: t.TempDir()})

	if err := lock.Release(); err != nil {
		t.Errorf("Release() before Acquire = %v", err)
	}
	if err := lock.Acquire(); err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release() = %v", err)
	}
}

func TestDirLock_AcquireWhileHeldIsNoop(t *testing.T) {
	lock := NewDirLock(DirLockConfig{Root: t.TempDir()})
	if err := lock.Acquire(); err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	if err := lock.Acquire(); err != nil {
		t.Errorf("re-Acquire by holder = %v, want nil", err)
	}
}

func TestDirLock_HolderPIDWhenFree(t *testing.T) {
	lock := NewDirLock(DirLockConfig{Root: t.TempDir()})
	if pid := lock.HolderPID(); pid != 0 {
		t.Errorf("HolderPID() on free lock = %d, want 0", pid)
	}
}
