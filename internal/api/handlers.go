package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mltscript/internal/ingest"
	"mltscript/internal/logging"
	"mltscript/internal/oauth"
	"mltscript/internal/preflight"
	"mltscript/internal/services"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// handleScripts returns the last result, loading first when nothing is
// cached or ?refresh=1 is given. Loading never fails, so this always
// answers 200 with whatever the pipeline produced.
func (s *Server) handleScripts(w http.ResponseWriter, r *http.Request) {
	refresh := parseBool(r.URL.Query().Get("refresh"))

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if !refresh {
		if last, ok := s.svc.Last(); ok {
			s.writeJSON(w, http.StatusOK, ScriptsResponse{Summary: last.Summary(), Cached: true, Result: last})
			return
		}
	}
	result := s.svc.LoadScripts(r.Context())
	s.writeJSON(w, http.StatusOK, ScriptsResponse{Summary: result.Summary(), Result: result})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Snapshot: preflight.Collect(r.Context(), s.cfg, s.prober),
	}
	if session := s.svc.Session(); session != nil {
		resp.Session = session.Status()
	}
	if last, ok := s.svc.Last(); ok {
		resp.Last = lastLoad(last)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	store := s.svc.History()
	if store == nil {
		s.writeJSON(w, http.StatusOK, HistoryResponse{Runs: nil})
		return
	}
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}
	runs, err := store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Warn("history read failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "HISTORY_UNAVAILABLE", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{Runs: runs})
}

func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	state := strings.TrimSpace(r.URL.Query().Get("state"))
	if state == "" {
		state = uuid.NewString()
	}
	url, err := s.svc.Session().AuthCodeURL(state)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AuthURLResponse{URL: url})
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		s.writeError(w, http.StatusBadRequest, "MISSING_FIELDS", "code is required")
		return
	}
	if _, err := s.svc.Session().Complete(r.Context(), req.Code); err != nil {
		s.writeAuthError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.svc.Session().Status())
}

func (s *Server) handleImportToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := readJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		s.writeError(w, http.StatusBadRequest, "MISSING_FIELDS", "access_token is required")
		return
	}
	if _, err := s.svc.Session().Import(r.Context(), req.AccessToken, time.Duration(req.ExpiresIn)*time.Second); err != nil {
		s.writeAuthError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.svc.Session().Status())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.Session().Refresh(r.Context()); err != nil {
		s.writeAuthError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.svc.Session().Status())
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Session().SignOut(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "SIGN_OUT_FAILED", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.svc.Session().Status())
}

func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, oauth.ErrNotConfigured), errors.Is(err, services.ErrConfiguration):
		s.writeError(w, http.StatusServiceUnavailable, "OAUTH_NOT_CONFIGURED", err.Error())
	case errors.Is(err, services.ErrCredential):
		s.writeError(w, http.StatusUnauthorized, "CREDENTIAL_REJECTED", err.Error())
	default:
		s.writeError(w, http.StatusBadGateway, "AUTH_FAILED", err.Error())
	}
}

func lastLoad(r ingest.Result) *LastLoad {
	return &LastLoad{
		RunID:       r.RunID,
		Outcome:     r.Outcome,
		Summary:     r.Summary(),
		Transport:   string(r.Transport),
		Diagnostics: r.Diagnostics,
		FinishedAt:  r.FinishedAt.UTC().Format(time.RFC3339),
	}
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
