// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/calderaops/nightdump/cmd/nightdump/config"
	"github.com/calderaops/nightdump/pkg/alert"
	"github.com/calderaops/nightdump/pkg/guard"
	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// --- Global Command Variables ---
var (
	quietFlag     bool
	verboseFlag   bool
	printLogFlag  bool
	logErrorsFlag bool
	forceFlag     bool
	dryRunFlag    bool
	configPath    string

	rootCmd = &cobra.Command{
		Use:   "nightdump",
		Short: "Nightly database dumps with weekday rotation",
		Long: `Nightdump takes a compressed dump of a database into a per-weekday
slot directory and prunes slots older than the rotation window, so a
cron entry per night yields a rolling week of restorable backups.`,
		PersistentPreRunE: setupRuntime,
		RunE:              runBackup, // bare `nightdump` runs a backup
	}

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Dump the configured database into tonight's weekday slot",
		RunE:  runBackup, // Defined in backup.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the nightdump version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nightdump %s\n", Version)
		},
	}
)

// setupRuntime wires the alerting runtime before any command body runs.
//
// The order matters: flags must reach alert before the first message is
// emitted, the log path must be set before the first log-eligible
// message resolves the default, and the trap must be armed before the
// task starts doing work worth cleaning up after.
func setupRuntime(cmd *cobra.Command, args []string) error {
	alert.Configure(alert.Flags{
		Quiet:     quietFlag,
		PrintLog:  printLogFlag,
		LogErrors: logErrorsFlag,
		Verbose:   verboseFlag,
		Force:     forceFlag,
	})

	if err := config.Load(configPath); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if config.Global.Paths.Log != "" {
		alert.SetLogPath(config.Global.Paths.Log)
	}

	guard.Arm()
	return nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&quietFlag, "quiet", "q", false, "suppress routine console output")
	pf.BoolVarP(&verboseFlag, "verbose", "v", false, "show debug and verbose messages")
	pf.BoolVar(&printLogFlag, "log", false, "append all log-eligible messages to the log file")
	pf.BoolVar(&logErrorsFlag, "log-errors", false, "append warnings and errors to the log file")
	pf.BoolVarP(&forceFlag, "force", "f", false, "never prompt; assume the non-interactive answer")
	pf.BoolVar(&dryRunFlag, "dry-run", false, "print what would be done without doing it")
	pf.StringVar(&configPath, "config", "", "path to the config file (default ~/.nightdump/nightdump.yaml)")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(versionCmd)

	// cobra prints its own error text; guard reports the fault instead.
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}
