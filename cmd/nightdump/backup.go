// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/calderaops/nightdump/cmd/nightdump/config"
	"github.com/calderaops/nightdump/cmd/nightdump/internal/infra/process"
	"github.com/calderaops/nightdump/cmd/nightdump/internal/util"
	"github.com/calderaops/nightdump/pkg/alert"
	"github.com/calderaops/nightdump/pkg/guard"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// =============================================================================
// Backup Runner
// =============================================================================

// BackupRunner executes one nightly backup cycle: dump the database
// through the compress pipeline into a staging directory, promote the
// result into tonight's weekday slot, and prune slots that have aged
// out of the rotation window.
//
// # Description
//
// The runner owns no global state. The caller supplies the resolved
// configuration and a clock; everything else (staging directory, slot
// layout, pruning decisions) is derived from those two inputs, which
// keeps the whole cycle testable without touching a real database.
//
// # Thread Safety
//
// A BackupRunner is intended for a single cycle on a single goroutine.
// Create a new one per run.
//
// # Limitations
//
//   - The dump and compress tools must exist on PATH.
//   - Staging and slot directories must be on the same filesystem for
//     the final rename to be atomic.
type BackupRunner struct {
	cfg config.NightdumpConfig

	// now is injectable so slot selection and pruning are testable.
	now func() time.Time

	// dryRun reports every action through alert.DryRun instead of
	// performing it.
	dryRun bool

	// workDir is the staging directory for in-progress dumps. Files
	// land here first so a crash never leaves a truncated file in a
	// slot directory.
	workDir string
}

// NewBackupRunner builds a runner for one cycle.
func NewBackupRunner(cfg config.NightdumpConfig, dryRun bool) *BackupRunner {
	return &BackupRunner{
		cfg:    cfg,
		now:    time.Now,
		dryRun: dryRun,
	}
}

// runBackup is the cobra entrypoint shared by the root command and the
// explicit `backup` subcommand.
func runBackup(cmd *cobra.Command, args []string) error {
	alert.Header("nightdump " + Version)

	lock := process.NewDirLock(process.DirLockConfig{
		Root: config.Global.Paths.LockRoot,
		Name: "nightdump",
	})
	if err := lock.Acquire(); err != nil {
		return err
	}
	guard.RegisterLock(lock.Dir(), lock.Release)

	runner := NewBackupRunner(config.Global, dryRunFlag)
	if err := runner.prepareWorkDir(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := runner.Run(ctx); err != nil {
		return err
	}

	alert.Success("backup complete")
	return nil
}

// prepareWorkDir creates the uuid-named staging directory and registers
// it with guard so it is disposed of on every exit path.
func (r *BackupRunner) prepareWorkDir() error {
	root := r.cfg.Paths.WorkRoot
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "nightdump-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating working directory %s: %w", dir, err)
	}
	r.workDir = dir
	guard.RegisterTempDir(dir)
	alert.Verbose("working directory: " + dir)
	return nil
}

// Run performs the full cycle: dump, promote, prune.
func (r *BackupRunner) Run(ctx context.Context) error {
	today := r.now()
	slot := slotName(today)
	slotDir := filepath.Join(r.cfg.Backup.Root, slot)
	outName := fmt.Sprintf("%s-%s%s",
		r.cfg.Database.Name, today.Format("2006-01-02"), r.cfg.Tools.Suffix)

	alert.Info(fmt.Sprintf("dumping %s into slot %q", r.cfg.Database.Name, slot))

	if r.dryRun {
		alert.DryRun(fmt.Sprintf("would run: %s | %s > %s",
			strings.Join(r.dumpArgv(), " "),
			strings.Join(r.cfg.Tools.Compress, " "),
			filepath.Join(slotDir, outName)))
		alert.DryRun(fmt.Sprintf("would prune slots older than %d days under %s",
			r.cfg.Backup.RotationDays, r.cfg.Backup.Root))
		return nil
	}

	staged := filepath.Join(r.workDir, outName)
	if err := r.runPipeline(ctx, staged); err != nil {
		return err
	}

	if err := promote(staged, slotDir, outName); err != nil {
		return err
	}
	alert.Notice("wrote " + filepath.Join(slotDir, outName))

	pruned, err := pruneSlots(r.cfg.Backup.Root, today.Weekday(), r.cfg.Backup.RotationDays)
	if err != nil {
		alert.Warning("pruning old slots: " + err.Error())
	}
	for _, p := range pruned {
		alert.Notice("pruned expired slot " + p)
	}
	return nil
}

// dumpArgv returns the dump command line with database parameters
// appended.
func (r *BackupRunner) dumpArgv() []string {
	argv := append([]string{}, r.cfg.Tools.Dump...)
	db := r.cfg.Database
	if db.Host != "" {
		argv = append(argv, "--host", db.Host)
	}
	if db.Port != 0 {
		argv = append(argv, "--port", fmt.Sprint(db.Port))
	}
	if db.User != "" {
		argv = append(argv, "--username", db.User)
	}
	return append(argv, db.Name)
}

// runPipeline runs `dump | compress > staged`, failing with the stderr
// of whichever stage broke.
func (r *BackupRunner) runPipeline(ctx context.Context, staged string) error {
	dumpArgv := r.dumpArgv()
	compArgv := r.cfg.Tools.Compress

	out, err := os.OpenFile(staged, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating staged output %s: %w", staged, err)
	}
	defer out.Close()

	dump := exec.CommandContext(ctx, dumpArgv[0], dumpArgv[1:]...)
	comp := exec.CommandContext(ctx, compArgv[0], compArgv[1:]...)

	pipe, err := dump.StdoutPipe()
	if err != nil {
		return fmt.Errorf("wiring dump pipeline: %w", err)
	}
	comp.Stdin = pipe
	comp.Stdout = out

	var dumpErr, compErr bytes.Buffer
	dump.Stderr = &dumpErr
	comp.Stderr = &compErr

	alert.Debug("exec: " + strings.Join(dumpArgv, " ") + " | " + strings.Join(compArgv, " "))

	// Each failure records the chain here, at the fault site, so the
	// trap's report can name this function after the error has been
	// returned all the way up to main.
	if err := comp.Start(); err != nil {
		ce := util.NewCommandError(compArgv[0], -1, "", err)
		ce.Chain = alert.Capture()
		return ce
	}
	if err := dump.Start(); err != nil {
		// The compressor is already running on a pipe that will now
		// never see data; close its stdin so it exits.
		pipe.Close()
		_ = comp.Wait()
		ce := util.NewCommandError(dumpArgv[0], -1, "", err)
		ce.Chain = alert.Capture()
		return ce
	}

	dumpWaitErr := dump.Wait()
	// dump.Wait closes the pipe, which gives the compressor EOF.
	compWaitErr := comp.Wait()

	if dumpWaitErr != nil {
		ce := util.NewCommandError(dumpArgv[0], exitCode(dumpWaitErr), dumpErr.String(), dumpWaitErr)
		ce.Chain = alert.Capture()
		return ce
	}
	if compWaitErr != nil {
		ce := util.NewCommandError(compArgv[0], exitCode(compWaitErr), compErr.String(), compWaitErr)
		ce.Chain = alert.Capture()
		return ce
	}
	return out.Sync()
}

// exitCode extracts the process exit code from a Wait error, or -1.
func exitCode(err error) int {
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}

// promote moves a staged file into its slot directory, replacing any
// previous dump for the same weekday.
func promote(staged, slotDir, name string) error {
	if err := os.MkdirAll(slotDir, 0755); err != nil {
		return fmt.Errorf("creating slot directory %s: %w", slotDir, err)
	}
	// Clear out last week's file(s) for this slot first so the slot
	// never holds two generations at once.
	entries, err := os.ReadDir(slotDir)
	if err != nil {
		return fmt.Errorf("reading slot directory %s: %w", slotDir, err)
	}
	for _, e := range entries {
		if e.Name() == name {
			continue
		}
		if err := os.Remove(filepath.Join(slotDir, e.Name())); err != nil {
			return fmt.Errorf("removing superseded dump %s: %w", e.Name(), err)
		}
	}
	dest := filepath.Join(slotDir, name)
	if err := os.Rename(staged, dest); err == nil {
		return nil
	}
	// Rename fails across filesystems; fall back to a copy.
	return copyFile(staged, dest)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// =============================================================================
// Weekday Rotation
// =============================================================================

// slotName returns the slot directory name for a point in time: the
// lowercase English weekday, e.g. "tuesday".
func slotName(t time.Time) string {
	return strings.ToLower(t.Weekday().String())
}

// backwardDistance reports how many days ago the most recent occurrence
// of weekday d was, seen from today. Today is 0, yesterday is 1, the
// same weekday last week is 7, but since slots recur weekly the range
// is 0..6.
func backwardDistance(today, d time.Weekday) int {
	return (int(today) - int(d) + 7) % 7
}

// pruneSlots removes every weekday slot directory under root whose
// backward distance from today is at least rotationDays. Non-slot
// entries under root are left alone. Returns the slot names removed.
func pruneSlots(root string, today time.Weekday, rotationDays int) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup root %s: %w", root, err)
	}

	var pruned []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		d, ok := parseWeekday(e.Name())
		if !ok {
			continue
		}
		if backwardDistance(today, d) < rotationDays {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return pruned, fmt.Errorf("removing expired slot %s: %w", e.Name(), err)
		}
		pruned = append(pruned, e.Name())
	}
	return pruned, nil
}

// parseWeekday maps a lowercase slot directory name back to a weekday.
func parseWeekday(name string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return d, true
		}
	}
	return 0, false
}
