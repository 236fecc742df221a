// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type NightdumpConfig struct {
	// Database: what to dump and how to reach it
	Database DatabaseConfig `yaml:"database"`

	// Backup: where artifacts land and how they rotate
	Backup BackupConfig `yaml:"backup"`

	// Tools: the external dump and compress programs
	Tools ToolsConfig `yaml:"tools"`

	// Paths: log file, lock and scratch locations
	Paths PathsConfig `yaml:"paths"`
}

type DatabaseConfig struct {
	Name string `yaml:"name"`           // e.g. inventory
	Host string `yaml:"host,omitempty"` // empty means local socket
	Port int    `yaml:"port,omitempty"` // e.g. 5432
	User string `yaml:"user,omitempty"` // e.g. backup
}

type BackupConfig struct {
	// Root is the directory weekday rotation slots are created under.
	Root string `yaml:"root"`

	// RotationDays is the cycle length in days. Must be below 7: the
	// rotation is keyed by weekday name, so a full week would make
	// every slot its own predecessor.
	RotationDays int `yaml:"rotation_days"`
}

type ToolsConfig struct {
	// Dump is the dump utility and its leading arguments,
	// e.g. ["pg_dump", "--no-owner"]. The database name is appended.
	Dump []string `yaml:"dump"`

	// Compress is the compressor reading the dump on stdin,
	// e.g. ["gzip", "-9"].
	Compress []string `yaml:"compress"`

	// Suffix is the artifact extension the compressor implies,
	// e.g. ".gz".
	Suffix string `yaml:"suffix"`
}

type PathsConfig struct {
	// Log overrides the default log file location
	// (<home>/logs/nightdump.log). Honored only before the first
	// logged write.
	Log string `yaml:"log,omitempty"`

	// LockRoot is where the inter-process lock directory is created.
	// Default: system temp directory.
	LockRoot string `yaml:"lock_root,omitempty"`

	// WorkRoot is where the per-run scratch directory is created.
	// Default: system temp directory.
	WorkRoot string `yaml:"work_root,omitempty"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() NightdumpConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return NightdumpConfig{
		Database: DatabaseConfig{
			Name: "postgres",
			Port: 5432,
		},
		Backup: BackupConfig{
			Root:         filepath.Join(home, "backups"),
			RotationDays: 3,
		},
		Tools: ToolsConfig{
			Dump:     []string{"pg_dump"},
			Compress: []string{"gzip", "-9"},
			Suffix:   ".gz",
		},
	}
}

// Validate rejects configurations the backup task cannot honor.
func (c *NightdumpConfig) Validate() error {
	if c.Backup.RotationDays < 1 || c.Backup.RotationDays >= 7 {
		return fmt.Errorf("rotation_days must be between 1 and 6, got %d", c.Backup.RotationDays)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name must be set")
	}
	if len(c.Tools.Dump) == 0 {
		return fmt.Errorf("tools.dump must name a dump utility")
	}
	if len(c.Tools.Compress) == 0 {
		return fmt.Errorf("tools.compress must name a compressor")
	}
	if c.Backup.Root == "" {
		return fmt.Errorf("backup.root must be set")
	}
	return nil
}
