package api

import (
	"mltscript/internal/history"
	"mltscript/internal/ingest"
	"mltscript/internal/oauth"
	"mltscript/internal/preflight"
)

// Response is the envelope wrapping every payload.
type Response struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScriptsResponse carries one ingestion result.
type ScriptsResponse struct {
	Summary string `json:"summary"`
	Cached  bool   `json:"cached"`
	ingest.Result
}

// LastLoad summarizes the most recent ingestion without its scripts.
type LastLoad struct {
	RunID       string              `json:"runId"`
	Outcome     ingest.Outcome      `json:"outcome"`
	Summary     string              `json:"summary"`
	Transport   string              `json:"transport"`
	Diagnostics []ingest.Diagnostic `json:"diagnostics,omitempty"`
	FinishedAt  string              `json:"finishedAt"`
}

// StatusResponse combines local checks, probes, and session state.
type StatusResponse struct {
	preflight.Snapshot
	Session oauth.Status `json:"session"`
	Last    *LastLoad    `json:"last,omitempty"`
}

// HistoryResponse lists recent runs, newest first.
type HistoryResponse struct {
	Runs []history.Run `json:"runs"`
}

// AuthURLResponse carries the consent URL.
type AuthURLResponse struct {
	URL string `json:"url"`
}

// ExchangeRequest hands an authorization code to the server.
type ExchangeRequest struct {
	Code string `json:"code"`
}

// TokenRequest imports an access token obtained by the dashboard.
type TokenRequest struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}
