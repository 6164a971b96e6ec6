package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"mltscript/internal/ingest"
	"mltscript/internal/oauth"
	"mltscript/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func checkLine(check preflight.Result, colorize bool) string {
	kind := statusOK
	if !check.Passed {
		kind = statusWarn
		if strings.Contains(check.Name, "directory") {
			kind = statusError
		}
	}
	return renderStatusLine(check.Name, kind, check.Detail, colorize)
}

func probeLine(probe preflight.ProbeResult, colorize bool) string {
	label := "Probe " + probe.Name
	switch probe.Status {
	case preflight.ProbeOK:
		return renderStatusLine(label, statusOK, fmt.Sprintf("%s (%d, %s)", probe.URL, probe.HTTPStatus, probe.Latency.Round(time.Millisecond)), colorize)
	case preflight.ProbeTimeout:
		return renderStatusLine(label, statusWarn, probe.URL+" timed out", colorize)
	default:
		return renderStatusLine(label, statusError, strings.TrimSpace(probe.URL+" "+probe.Detail), colorize)
	}
}

func sessionLine(st oauth.Status, colorize bool) string {
	switch {
	case st.SignedIn && st.Profile != nil && st.Profile.Email != "":
		return renderStatusLine("Google account", statusOK, fmt.Sprintf("%s (expires %s)", st.Profile.Email, st.ExpiresAt.Local().Format("15:04")), colorize)
	case st.SignedIn:
		return renderStatusLine("Google account", statusOK, "signed in (expires "+st.ExpiresAt.Local().Format("15:04")+")", colorize)
	case st.Refreshable:
		return renderStatusLine("Google account", statusWarn, "access token expired; refresh token stored", colorize)
	default:
		return renderStatusLine("Google account", statusInfo, "not signed in (CSV export only)", colorize)
	}
}

func outcomeKind(outcome ingest.Outcome) statusKind {
	switch outcome {
	case ingest.OutcomeOK:
		return statusOK
	case ingest.OutcomePartial:
		return statusWarn
	default:
		return statusError
	}
}

func diagnosticLines(diags []ingest.Diagnostic, colorize bool) []string {
	lines := make([]string, 0, len(diags))
	for _, d := range diags {
		label := d.Kind
		if d.Transport != "" {
			label = d.Transport
			if d.GID != "" {
				label += " gid " + d.GID
			}
		}
		kind := statusWarn
		if d.Kind == ingest.KindTotal || d.Kind == ingest.KindInternal {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(label, kind, d.Message, colorize))
	}
	return lines
}
