package ingest

import (
	"fmt"
	"time"

	"mltscript/internal/decode"
	"mltscript/internal/history"
	"mltscript/internal/scripts"
	"mltscript/internal/sheets"
)

// Outcome classifies a load.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// Diagnostic kinds.
const (
	KindTransport     = "transport"
	KindCredential    = "credential"
	KindParse         = "parse"
	KindConfiguration = "configuration"
	KindTotal         = "total"
	KindInternal      = "internal"
)

// Diagnostic is one absorbed failure.
type Diagnostic struct {
	Kind      string `json:"kind"`
	Transport string `json:"transport,omitempty"`
	GID       string `json:"gid,omitempty"`
	Message   string `json:"message"`
}

// Result is returned by every LoadScripts call. Scripts is never nil.
type Result struct {
	RunID       string           `json:"runId,omitempty"`
	Outcome     Outcome          `json:"outcome"`
	Scripts     []scripts.Script `json:"scripts"`
	Diagnostics []Diagnostic     `json:"diagnostics,omitempty"`
	Transport   sheets.Transport `json:"transport"`
	GID         string           `json:"gid,omitempty"`
	Stats       decode.Stats     `json:"stats"`
	StartedAt   time.Time        `json:"startedAt"`
	FinishedAt  time.Time        `json:"finishedAt"`
}

// Connected reports whether some transport reached the sheet.
func (r Result) Connected() bool {
	return r.Transport != "" && r.Transport != sheets.TransportNone
}

// SceneCount totals scenes across scripts.
func (r Result) SceneCount() int { return scripts.CountScenes(r.Scripts) }

// Summary is the user-facing one-liner. It separates "not connected" from
// "connected but empty".
func (r Result) Summary() string {
	switch {
	case r.hasKind(KindConfiguration) && !r.Connected():
		return "not configured: " + r.firstMessage(KindConfiguration)
	case !r.Connected():
		return fmt.Sprintf("not connected: no transport could read the sheet (%d attempts failed)", r.countFailures())
	case len(r.Scripts) == 0 && r.hasKind(KindParse):
		return fmt.Sprintf("connected via %s, but no rows could be decoded: %s", r.Transport, r.firstMessage(KindParse))
	case len(r.Scripts) == 0:
		return fmt.Sprintf("connected via %s, but the sheet has no scenes", r.Transport)
	case r.Outcome == OutcomePartial:
		return fmt.Sprintf("loaded %d scripts (%d scenes) via %s with %d warnings", len(r.Scripts), r.SceneCount(), r.Transport, len(r.Diagnostics))
	default:
		return fmt.Sprintf("loaded %d scripts (%d scenes) via %s", len(r.Scripts), r.SceneCount(), r.Transport)
	}
}

func (r Result) hasKind(kind string) bool {
	for _, d := range r.Diagnostics {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

func (r Result) firstMessage(kind string) string {
	for _, d := range r.Diagnostics {
		if d.Kind == kind {
			return d.Message
		}
	}
	return ""
}

func (r Result) countFailures() int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Kind != KindTotal {
			n++
		}
	}
	return n
}

func (r Result) historyRun(sheetID string) history.Run {
	diags := make([]history.Diagnostic, 0, len(r.Diagnostics))
	for _, d := range r.Diagnostics {
		diags = append(diags, history.Diagnostic(d))
	}
	return history.Run{
		ID:          r.RunID,
		SheetID:     sheetID,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Outcome:     string(r.Outcome),
		Transport:   string(r.Transport),
		GID:         r.GID,
		RowsSeen:    r.Stats.RowsSeen,
		RowsKept:    r.Stats.RowsKept,
		ScriptCount: len(r.Scripts),
		SceneCount:  r.SceneCount(),
		Diagnostics: diags,
	}
}
