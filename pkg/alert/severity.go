// Copyright (C) 2025 Caldera Ops (ops@calderaops.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package alert

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Severity
// =============================================================================

// Severity classifies an alert message.
//
// Severities are not ordered by rank: each one carries its own fixed
// routing rule (console visibility, call-chain enrichment, log-file
// eligibility). Filtering decisions are made per severity, never by
// numeric comparison.
type Severity int

const (
	// SeveritySuccess reports a completed operation.
	SeveritySuccess Severity = iota

	// SeverityHeader prints a section banner wrapped in a delimiter.
	SeverityHeader

	// SeverityNotice reports a noteworthy but routine event.
	SeverityNotice

	// SeverityInfo reports normal progress.
	SeverityInfo

	// SeverityWarning reports a recoverable problem. Warnings never
	// change the process exit code.
	SeverityWarning

	// SeverityError reports an operation failure. Always rendered with
	// line and call-chain context.
	SeverityError

	// SeverityFatal reports an unrecoverable failure. Always rendered
	// with line and call-chain context. Emitting a fatal alert does not
	// itself terminate the process; that is the exit guard's job.
	SeverityFatal

	// SeverityDebug is operator-console-only diagnostics, shown when the
	// verbose flag is set and never written to the log file.
	SeverityDebug

	// SeverityVerbose is extra progress detail, shown when the verbose
	// flag is set and never written to the log file.
	SeverityVerbose

	// SeverityDryRun reports the action that would have been taken.
	SeverityDryRun

	// SeverityInput renders a prompt without a trailing newline.
	SeverityInput
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityHeader:
		return "header"
	case SeverityNotice:
		return "notice"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	case SeverityDebug:
		return "debug"
	case SeverityVerbose:
		return "verbose"
	case SeverityDryRun:
		return "dryrun"
	case SeverityInput:
		return "input"
	default:
		return "unknown"
	}
}

// Tag returns the bracketed, fixed-width severity tag used on every
// console and log line, e.g. "[  error]".
func (s Severity) Tag() string {
	return fmt.Sprintf("[%7s]", s.String())
}

// =============================================================================
// Color palette
// =============================================================================

// Caldera color palette - ember oranges over cooled basalt
var (
	ColorEmber    = lipgloss.Color("#E8A33D") // headers, highlights
	ColorMoss     = lipgloss.Color("#7FB069") // success
	ColorSky      = lipgloss.Color("#6FA8DC") // notices, dry-run
	ColorAsh      = lipgloss.Color("#8B9AA3") // verbose, muted text
	ColorMagma    = lipgloss.Color("#E74C3C") // errors, fatal
	ColorSulfur   = lipgloss.Color("#F4D03F") // warnings
	ColorObsidian = lipgloss.Color("#4A5A66") // debug
)

// styleFor maps a severity to its console style. Severities without an
// entry render unstyled.
func styleFor(s Severity) lipgloss.Style {
	switch s {
	case SeveritySuccess:
		return lipgloss.NewStyle().Foreground(ColorMoss)
	case SeverityHeader:
		return lipgloss.NewStyle().Bold(true).Foreground(ColorEmber)
	case SeverityNotice:
		return lipgloss.NewStyle().Foreground(ColorSky)
	case SeverityWarning:
		return lipgloss.NewStyle().Foreground(ColorSulfur)
	case SeverityError:
		return lipgloss.NewStyle().Foreground(ColorMagma)
	case SeverityFatal:
		return lipgloss.NewStyle().Bold(true).Foreground(ColorMagma)
	case SeverityDebug:
		return lipgloss.NewStyle().Foreground(ColorObsidian)
	case SeverityVerbose:
		return lipgloss.NewStyle().Foreground(ColorAsh)
	case SeverityDryRun:
		return lipgloss.NewStyle().Italic(true).Foreground(ColorSky)
	case SeverityInput:
		return lipgloss.NewStyle().Bold(true)
	default:
		return lipgloss.NewStyle()
	}
}

// =============================================================================
// Routing rules
// =============================================================================

// consoleMode controls when a severity reaches the console sink.
type consoleMode int

const (
	consoleUnlessQuiet consoleMode = iota // suppressed (and retracted) in quiet mode
	consoleAlways                         // shown even in quiet mode
	consoleVerboseOnly                    // shown only when the verbose flag is set
)

// logMode controls when a severity reaches the log-file sink.
type logMode int

const (
	logWhenPrintLog logMode = iota
	logWhenPrintLogOrErrors
	logNever
)

// rule is the fixed routing rule for one severity.
type rule struct {
	console    consoleMode
	chain      bool // append the call chain
	line       bool // append the source line when known
	logged     logMode
	banner     bool // wrap in a visual delimiter
	promptLine bool // no trailing newline
}

// routing is the per-severity routing table. It is the single source of
// truth for sink eligibility; both sinks consult it and nothing else.
var routing = map[Severity]rule{
	SeveritySuccess: {console: consoleUnlessQuiet, line: true, logged: logWhenPrintLog},
	SeverityNotice:  {console: consoleUnlessQuiet, line: true, logged: logWhenPrintLog},
	SeverityInfo:    {console: consoleUnlessQuiet, line: true, logged: logWhenPrintLog},
	SeverityDryRun:  {console: consoleUnlessQuiet, line: true, logged: logWhenPrintLog},
	SeverityWarning: {console: consoleAlways, line: true, logged: logWhenPrintLogOrErrors},
	SeverityError:   {console: consoleAlways, chain: true, line: true, logged: logWhenPrintLogOrErrors},
	SeverityFatal:   {console: consoleAlways, chain: true, line: true, logged: logWhenPrintLogOrErrors},
	SeverityDebug:   {console: consoleVerboseOnly, chain: true, logged: logNever},
	SeverityVerbose: {console: consoleVerboseOnly, logged: logNever},
	SeverityHeader:  {console: consoleAlways, logged: logWhenPrintLog, banner: true},
	SeverityInput:   {console: consoleAlways, logged: logNever, promptLine: true},
}
