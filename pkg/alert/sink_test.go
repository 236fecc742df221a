// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package alert

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newTestRouter returns a router with a pinned clock so rendered
// timestamps are deterministic.
func newTestRouter(out io.Writer) *Router {
	r := NewRouter(out)
	r.now = func() time.Time {
		return time.Date(2025, time.November, 3, 22, 15, 4, 0, time.UTC)
	}
	return r
}

func withFlags(t *testing.T, f Flags) {
	t.Helper()
	orig := CurrentFlags()
	Configure(f)
	t.Cleanup(func() { Configure(orig) })
}

// =============================================================================
// Console Sink Tests
// =============================================================================

func TestRouter_ConsoleLineFormat(t *testing.T) {
	withFlags(t, Flags{})
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	r.dispatch(record{sev: SeverityInfo, text: "starting backup"})

	want := "22:15:04 [   info] starting backup\n"
	if got := buf.String(); got != want {
		t.Errorf("console line = %q, want %q", got, want)
	}
}

func TestRouter_AppendsLineNumber(t *testing.T) {
	withFlags(t, Flags{})
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	r.dispatch(record{sev: SeverityNotice, text: "rotated slot", line: 42})

	if !strings.Contains(buf.String(), "rotated slot (line 42)") {
		t.Errorf("output %q missing line suffix", buf.String())
	}
}

func TestRouter_AppendsChainForError(t *testing.T) {
	withFlags(t, Flags{})
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	chain := CallChain{
		{Function: "main", Unit: "main.go", Line: 10},
		{Function: "dumpDatabase", Unit: "backup.go", Line: 77},
	}
	r.dispatch(record{sev: SeverityError, text: "dump failed", chain: chain})

	out := buf.String()
	if !strings.Contains(out, "(main < dumpDatabase)") {
		t.Errorf("output %q missing call chain", out)
	}
}

func TestRouter_ChainSuppressedForInfo(t *testing.T) {
	withFlags(t, Flags{})
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	chain := CallChain{{Function: "main", Unit: "main.go", Line: 10}}
	r.dispatch(record{sev: SeverityInfo, text: "progress", chain: chain})

	if strings.Contains(buf.String(), "(main)") {
		t.Errorf("info output %q should not carry a chain", buf.String())
	}
}

func TestRouter_ForceChainOverridesRule(t *testing.T) {
	withFlags(t, Flags{})
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	chain := CallChain{{Function: "pruneSlots", Unit: "backup.go", Line: 5}}
	r.dispatch(record{sev: SeverityWarning, text: "odd slot", chain: chain, forceChain: true})

	if !strings.Contains(buf.String(), "(pruneSlots)") {
		t.Errorf("forced chain missing from %q", buf.String())
	}
}

func TestRouter_QuietRetractsInformational(t *testing.T) {
	withFlags(t, Flags{Quiet: true})
	var buf bytes.Buffer
	r := newTestRouter(&buf)
	r.color = true // retraction is only safe on a capable terminal

	r.dispatch(record{sev: SeverityInfo, text: "step 1 of 9"})

	if got := buf.String(); got != "\x1b[1A\x1b[K" {
		t.Errorf("quiet console output = %q, want bare retraction sequence", got)
	}
}

func TestRouter_QuietWithoutColorStaysSilent(t *testing.T) {
	withFlags(t, Flags{Quiet: true})
	var buf bytes.Buffer
	r := newTestRouter(&buf) // buffer output: color off

	r.dispatch(record{sev: SeverityInfo, text: "step 1 of 9"})

	if buf.Len() != 0 {
		t.Errorf("quiet non-terminal output = %q, want nothing", buf.String())
	}
}

func TestRouter_QuietNeverHidesWarnings(t *testing.T) {
	withFlags(t, Flags{Quiet: true})
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	r.dispatch(record{sev: SeverityWarning, text: "rotation window shrunk"})
	r.dispatch(record{sev: SeverityError, text: "dump failed"})

	out := buf.String()
	if !strings.Contains(out, "[warning] rotation window shrunk") {
		t.Errorf("warning missing from quiet output %q", out)
	}
	if !strings.Contains(out, "[  error] dump failed") {
		t.Errorf("error missing from quiet output %q", out)
	}
}

func TestRouter_VerboseTiersGated(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	withFlags(t, Flags{})
	r.dispatch(record{sev: SeverityDebug, text: "probe"})
	r.dispatch(record{sev: SeverityVerbose, text: "detail"})
	if buf.Len() != 0 {
		t.Fatalf("debug/verbose leaked without the verbose flag: %q", buf.String())
	}

	Configure(Flags{Verbose: true})
	r.dispatch(record{sev: SeverityVerbose, text: "detail"})
	if !strings.Contains(buf.String(), "[verbose] detail") {
		t.Errorf("verbose line missing with flag set: %q", buf.String())
	}
}

func TestRouter_HeaderBanner(t *testing.T) {
	withFlags(t, Flags{})
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	r.dispatch(record{sev: SeverityHeader, text: "nightdump v1"})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("banner rendered %d lines, want 3: %q", len(lines), buf.String())
	}
	delim := strings.Repeat("=", bannerWidth)
	if lines[0] != delim || lines[2] != delim {
		t.Errorf("banner delimiters wrong: %q / %q", lines[0], lines[2])
	}
	if !strings.Contains(lines[1], "[ header] nightdump v1") {
		t.Errorf("banner body = %q", lines[1])
	}
}

func TestRouter_InputHasNoTrailingNewline(t *testing.T) {
	withFlags(t, Flags{})
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	r.dispatch(record{sev: SeverityInput, text: "keep directory? [y/N]"})

	out := buf.String()
	if strings.HasSuffix(out, "\n") {
		t.Errorf("prompt line must not end with newline: %q", out)
	}
	if !strings.HasSuffix(out, "[y/N] ") {
		t.Errorf("prompt line should end with a space after the question: %q", out)
	}
}

func TestTerminalColorCapable_NonFileWriter(t *testing.T) {
	if terminalColorCapable(&bytes.Buffer{}) {
		t.Error("a bytes.Buffer must never be considered color-capable")
	}
}

// =============================================================================
// Log Sink Tests
// =============================================================================

func TestRouter_NoLogFileWhenLoggingDisabled(t *testing.T) {
	withFlags(t, Flags{})
	var buf bytes.Buffer
	r := newTestRouter(&buf)
	logPath := filepath.Join(t.TempDir(), "night.log")
	r.target.SetPath(logPath)

	r.dispatch(record{sev: SeverityInfo, text: "one"})
	r.dispatch(record{sev: SeverityError, text: "two"})

	if r.target.Created() {
		t.Error("log file was opened although no logging flag is set")
	}
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Errorf("log file exists on disk: stat err = %v", err)
	}
}

func TestRouter_LogErrorsGatesTiers(t *testing.T) {
	withFlags(t, Flags{LogErrors: true})
	var buf bytes.Buffer
	r := newTestRouter(&buf)
	logPath := filepath.Join(t.TempDir(), "night.log")
	r.target.SetPath(logPath)

	r.dispatch(record{sev: SeverityInfo, text: "routine progress"})
	r.dispatch(record{sev: SeverityWarning, text: "slot missing"})
	r.dispatch(record{sev: SeverityError, text: "dump failed"})
	if err := r.target.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if strings.Contains(content, "routine progress") {
		t.Error("info reached the log under log-errors only")
	}
	if !strings.Contains(content, "[warning] slot missing") {
		t.Errorf("warning missing from log: %q", content)
	}
	if !strings.Contains(content, "[  error] dump failed") {
		t.Errorf("error missing from log: %q", content)
	}
}

func TestRouter_LogEntriesAreANSIFree(t *testing.T) {
	withFlags(t, Flags{PrintLog: true})
	var buf bytes.Buffer
	r := newTestRouter(&buf)
	logPath := filepath.Join(t.TempDir(), "night.log")
	r.target.SetPath(logPath)

	r.dispatch(record{sev: SeverityInfo, text: "wrote \x1b[32mtuesday\x1b[0m slot"})
	if err := r.target.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte{0x1b}) {
		t.Errorf("log file contains escape bytes: %q", data)
	}
	if !strings.Contains(string(data), "wrote tuesday slot") {
		t.Errorf("stripped text missing: %q", data)
	}
	if !strings.HasPrefix(string(data), "2025-11-03 22:15:04 ") {
		t.Errorf("log timestamp format wrong: %q", data)
	}
}

func TestRouter_LogFailureReportedOnce(t *testing.T) {
	withFlags(t, Flags{PrintLog: true})
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	// A path under a regular file cannot be created.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	r.target.SetPath(filepath.Join(blocker, "night.log"))

	r.dispatch(record{sev: SeverityInfo, text: "one"})
	r.dispatch(record{sev: SeverityInfo, text: "two"})
	r.dispatch(record{sev: SeverityInfo, text: "three"})

	got := strings.Count(buf.String(), "log file unavailable")
	if got != 1 {
		t.Errorf("log failure reported %d times, want exactly once:\n%s", got, buf.String())
	}
}

// =============================================================================
// LogTarget Tests
// =============================================================================

func TestLogTarget_FirstWriterWins(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	target := &LogTarget{}
	target.SetPath(first)
	if err := target.write("a\n"); err != nil {
		t.Fatal(err)
	}

	// Resolution already happened; this must be ignored.
	target.SetPath(second)
	if err := target.write("b\n"); err != nil {
		t.Fatal(err)
	}
	if err := target.Close(); err != nil {
		t.Fatal(err)
	}

	if got := target.Path(); got != first {
		t.Errorf("Path() = %q, want %q", got, first)
	}
	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a\nb\n" {
		t.Errorf("first log content = %q, want both entries", data)
	}
	if _, err := os.Stat(second); !os.IsNotExist(err) {
		t.Error("second path must never be created")
	}
}

func TestLogTarget_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "nested", "night.log")
	target := &LogTarget{}
	target.SetPath(path)

	if err := target.write("entry\n"); err != nil {
		t.Fatal(err)
	}
	if err := target.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestLogTarget_DisabledAfterFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	target := &LogTarget{}
	target.SetPath(filepath.Join(blocker, "night.log"))

	if err := target.write("entry\n"); err == nil {
		t.Fatal("first write should surface the resolution failure")
	}
	// Subsequent writes are silent no-ops.
	if err := target.write("entry\n"); err != nil {
		t.Errorf("disabled target returned error on later write: %v", err)
	}
	if target.Created() {
		t.Error("disabled target reports Created")
	}
}

// =============================================================================
// ANSI Stripping Tests
// =============================================================================

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "hello", "hello"},
		{"color codes removed", "\x1b[31merror\x1b[0m", "error"},
		{"cursor movement removed", "\x1b[1A\x1b[Kline", "line"},
		{"mixed content", "a \x1b[1;32mb\x1b[0m c", "a b c"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripANSI(tt.in); got != tt.want {
				t.Errorf("stripANSI(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
