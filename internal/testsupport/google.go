package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// FakeClientID is the OAuth client accepted by FakeGoogle's token endpoint.
const FakeClientID = "fake-client"

// FakeTab is one tab served by the fake Sheets API.
type FakeTab struct {
	ID     int64
	Title  string
	Values [][]string
}

// FakeGoogle serves the CSV export, the Sheets v4 API, the OAuth token
// endpoint, and userinfo from one httptest server.
type FakeGoogle struct {
	*httptest.Server

	mu          sync.Mutex
	csv         map[string]string
	html        map[string]bool
	tabs        []FakeTab
	token       string
	refresh     string
	apiStatus   int
	requestLog  []string
	refreshHits int
}

// NewFakeGoogle starts a fake server that is closed on test cleanup.
func NewFakeGoogle(t testing.TB) *FakeGoogle {
	t.Helper()
	f := &FakeGoogle{csv: map[string]string{}, html: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /spreadsheets/d/{id}/export", f.serveExport)
	mux.HandleFunc("GET /v4/spreadsheets/{id}", f.serveMetadata)
	mux.HandleFunc("GET /v4/spreadsheets/{id}/values/{range}", f.serveValues)
	mux.HandleFunc("POST /token", f.serveToken)
	mux.HandleFunc("GET /oauth2/v2/userinfo", f.serveUserinfo)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// SetCSV serves body for the gid's CSV export.
func (f *FakeGoogle) SetCSV(gid, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.csv[gid] = body
	delete(f.html, gid)
}

// SetHTML makes the gid's export answer 200 with an HTML sign-in page.
func (f *FakeGoogle) SetHTML(gid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.html[gid] = true
}

// AddTab registers a tab on the API side.
func (f *FakeGoogle) AddTab(tab FakeTab) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tabs = append(f.tabs, tab)
}

// AcceptToken sets the bearer token the API accepts.
func (f *FakeGoogle) AcceptToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

// AcceptRefresh sets the refresh token the token endpoint honours. The new
// access token is also accepted by the API.
func (f *FakeGoogle) AcceptRefresh(refresh string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh = refresh
}

// FailAPI forces every Sheets API call to answer with status.
func (f *FakeGoogle) FailAPI(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiStatus = status
}

// Requests returns "METHOD path" for every request served so far.
func (f *FakeGoogle) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requestLog...)
}

// CountRequests counts served requests whose path starts with prefix.
func (f *FakeGoogle) CountRequests(prefix string) int {
	n := 0
	for _, r := range f.Requests() {
		if _, path, _ := strings.Cut(r, " "); strings.HasPrefix(path, prefix) {
			n++
		}
	}
	return n
}

// RefreshCount returns the number of refresh_token grants served.
func (f *FakeGoogle) RefreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshHits
}

func (f *FakeGoogle) record(r *http.Request) {
	f.mu.Lock()
	f.requestLog = append(f.requestLog, r.Method+" "+r.URL.Path)
	f.mu.Unlock()
}

func (f *FakeGoogle) serveExport(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	gid := r.URL.Query().Get("gid")
	f.mu.Lock()
	body, ok := f.csv[gid]
	html := f.html[gid]
	f.mu.Unlock()
	if html || !ok {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<!DOCTYPE html><html><head><title>Sign in</title></head><body>Google Sheets</body></html>"))
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	_, _ = w.Write([]byte(body))
}

func (f *FakeGoogle) authorized(w http.ResponseWriter, r *http.Request) bool {
	f.mu.Lock()
	token, forced := f.token, f.apiStatus
	f.mu.Unlock()
	if forced != 0 {
		writeAPIError(w, forced)
		return false
	}
	if token == "" || r.Header.Get("Authorization") != "Bearer "+token {
		writeAPIError(w, http.StatusUnauthorized)
		return false
	}
	return true
}

func (f *FakeGoogle) serveMetadata(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	if !f.authorized(w, r) {
		return
	}
	f.mu.Lock()
	sheets := make([]map[string]any, 0, len(f.tabs))
	for _, tab := range f.tabs {
		sheets = append(sheets, map[string]any{"properties": map[string]any{"sheetId": tab.ID, "title": tab.Title}})
	}
	f.mu.Unlock()
	writeJSON(w, map[string]any{"spreadsheetId": r.PathValue("id"), "sheets": sheets})
}

func (f *FakeGoogle) serveValues(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	if !f.authorized(w, r) {
		return
	}
	rng := r.PathValue("range")
	title, _, _ := strings.Cut(rng, "!")
	title = strings.ReplaceAll(strings.Trim(title, "'"), "''", "'")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tab := range f.tabs {
		if tab.Title == title {
			writeJSON(w, map[string]any{"range": rng, "majorDimension": "ROWS", "values": tab.Values})
			return
		}
	}
	writeAPIError(w, http.StatusNotFound)
}

func (f *FakeGoogle) serveToken(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	if err := r.ParseForm(); err != nil || r.PostForm.Get("client_id") != FakeClientID {
		http.Error(w, "bad client", http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.PostForm.Get("grant_type") {
	case "refresh_token":
		f.refreshHits++
		if f.refresh == "" || r.PostForm.Get("refresh_token") != f.refresh {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		f.token = fmt.Sprintf("refreshed-%d", f.refreshHits)
		writeJSON(w, map[string]any{"access_token": f.token, "expires_in": 3600, "token_type": "Bearer"})
	case "authorization_code":
		f.token = "exchanged"
		f.refresh = "refresh-from-code"
		writeJSON(w, map[string]any{"access_token": f.token, "refresh_token": f.refresh, "expires_in": 3600, "token_type": "Bearer"})
	default:
		http.Error(w, "unsupported grant", http.StatusBadRequest)
	}
}

func (f *FakeGoogle) serveUserinfo(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	writeJSON(w, map[string]any{"id": "user-1", "email": "editor@example.com", "name": "Editor"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": http.StatusText(status), "status": http.StatusText(status)},
	})
}
