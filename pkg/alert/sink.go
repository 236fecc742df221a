// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package alert

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// =============================================================================
// Log target
// =============================================================================

// LogTarget is the process-wide log-file destination.
//
// The path is resolved lazily, on the first write that needs it, and is
// fixed for the process lifetime afterward: SetPath calls after the
// first write are silently ignored (first writer wins). The parent
// directory is created on demand.
//
// A target that cannot be opened fails loudly exactly once (the router
// reports the failure on the console) and stays disabled thereafter
// rather than dropping messages silently on every write.
type LogTarget struct {
	mu       sync.Mutex
	path     string
	resolved bool
	disabled bool
	file     *os.File
}

// SetPath overrides the default log path. Effective only before the
// first logged write.
func (t *LogTarget) SetPath(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved {
		return
	}
	t.path = path
}

// Path returns the resolved path, or the pending override, or the
// default that would be used.
func (t *LogTarget) Path() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.path != "" {
		return t.path
	}
	return defaultLogPath()
}

// Created reports whether the log file has been opened.
func (t *LogTarget) Created() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file != nil
}

// write appends one sanitized entry, resolving the target on first use.
// The returned error is non-nil only on the resolution attempt that
// disables the target.
func (t *LogTarget) write(entry string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disabled {
		return nil
	}
	if !t.resolved {
		t.resolved = true
		if t.path == "" {
			t.path = defaultLogPath()
		}
		if err := os.MkdirAll(filepath.Dir(t.path), 0750); err != nil {
			t.disabled = true
			return fmt.Errorf("log target %s: %w", t.path, err)
		}
		f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			t.disabled = true
			return fmt.Errorf("log target %s: %w", t.path, err)
		}
		t.file = f
	}

	_, err := t.file.WriteString(entry)
	return err
}

// Close releases the file handle. Used by tests; the process otherwise
// holds the handle until exit.
func (t *LogTarget) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	prog := filepath.Base(os.Args[0])
	return filepath.Join(home, "logs", prog+".log")
}

// =============================================================================
// Router
// =============================================================================

// record is the structured form every façade entry point reduces to.
// Context enrichment (line, chain) happens in one place per sink
// instead of ad hoc string concatenation at each call site.
type record struct {
	sev   Severity
	text  string
	line  int
	chain CallChain

	// forceChain appends the chain even when the severity's rule does
	// not (explicitly requested warning traces).
	forceChain bool
}

// Router routes one record to the console and log-file sinks according
// to the severity routing table and the process-wide flags.
//
// Console and log writes are strictly ordered with the calls that
// produced them; there is no buffering or asynchronous flush.
type Router struct {
	mu     sync.Mutex
	out    io.Writer
	color  bool
	now    func() time.Time
	target *LogTarget

	// logFailed flips after the one loud report about an unusable log
	// target.
	logFailed bool
}

// NewRouter creates a router writing console output to out. Color is
// enabled only when out is an interactive terminal with a recognized
// TERM; redirected or piped output is never colorized.
func NewRouter(out io.Writer) *Router {
	return &Router{
		out:    out,
		color:  terminalColorCapable(out),
		now:    time.Now,
		target: &LogTarget{},
	}
}

// terminalColorCapable reports whether out can safely receive ANSI
// color and cursor sequences.
func terminalColorCapable(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

const bannerWidth = 56

// ansiPattern matches CSI color and cursor sequences.
var ansiPattern = regexp.MustCompile("\x1b\\[[0-9;?]*[A-Za-z]")

// stripANSI removes color and cursor escape sequences from s.
func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// dispatch renders one record into both sinks.
func (r *Router) dispatch(rec record) {
	rl, ok := routing[rec.sev]
	if !ok {
		rl = routing[SeverityInfo]
	}
	flags := CurrentFlags()

	text := rec.text
	if rl.line && rec.line > 0 {
		text += fmt.Sprintf(" (line %d)", rec.line)
	}
	if (rl.chain || rec.forceChain) && len(rec.chain) > 0 {
		text += " " + rec.chain.String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.toConsole(rec.sev, rl, text, flags)
	r.toLog(rec.sev, rl, text, flags)
}

// toConsole emits the console line. In quiet mode, suppressed
// informational lines are replaced with a one-line retraction so that
// progress-style callers overwrite themselves.
//
// The retraction assumes each suppressed call corresponds to exactly
// one previously drawn line; multi-line messages under quiet mode are
// the caller's problem.
func (r *Router) toConsole(sev Severity, rl rule, text string, flags Flags) {
	switch rl.console {
	case consoleVerboseOnly:
		if !flags.Verbose {
			return
		}
	case consoleUnlessQuiet:
		if flags.Quiet {
			if r.color {
				fmt.Fprint(r.out, "\x1b[1A\x1b[K")
			}
			return
		}
	}

	ts := r.now().Format("15:04:05")
	tag := sev.Tag()
	msg := text
	if r.color {
		st := styleFor(sev)
		tag = st.Render(tag)
		msg = st.Render(msg)
	}

	switch {
	case rl.banner:
		delim := strings.Repeat("=", bannerWidth)
		if r.color {
			delim = styleFor(sev).Render(delim)
		}
		fmt.Fprintf(r.out, "%s\n%s %s %s\n%s\n", delim, ts, tag, msg, delim)
	case rl.promptLine:
		fmt.Fprintf(r.out, "%s %s %s ", ts, tag, msg)
	default:
		fmt.Fprintf(r.out, "%s %s %s\n", ts, tag, msg)
	}
}

// toLog appends the sanitized entry to the log file when the severity
// and flags allow it. Log eligibility is independent of the console's
// quiet and color state.
func (r *Router) toLog(sev Severity, rl rule, text string, flags Flags) {
	switch rl.logged {
	case logNever:
		return
	case logWhenPrintLog:
		if !flags.PrintLog {
			return
		}
	case logWhenPrintLogOrErrors:
		if !flags.PrintLog && !flags.LogErrors {
			return
		}
	}

	entry := fmt.Sprintf("%s %s %s\n",
		r.now().Format("2006-01-02 15:04:05"), sev.Tag(), stripANSI(text))
	if err := r.target.write(entry); err != nil && !r.logFailed {
		r.logFailed = true
		r.toConsole(SeverityError, routing[SeverityError],
			fmt.Sprintf("log file unavailable, further file logging disabled: %v", err), flags)
	}
}
