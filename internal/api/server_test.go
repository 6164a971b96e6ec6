package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mltscript/internal/config"
	"mltscript/internal/ingest"
	"mltscript/internal/preflight"
	"mltscript/internal/testsupport"
)

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *ErrorBody      `json:"error"`
}

func newTestServer(t *testing.T, f *testsupport.FakeGoogle, mutate func(*config.Config)) (*httptest.Server, *ingest.Service) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithFakeGoogle(f))
	if mutate != nil {
		mutate(cfg)
	}
	svc := ingest.New(cfg, nil, ingest.WithHTTPClient(f.Client()))
	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = svc.Dispose() })

	srv := NewServer(cfg, svc, nil, WithProber(preflight.NewProber(nil, 0)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, svc
}

func do(t *testing.T, method, url string, body any, headers map[string]string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp.StatusCode, env
}

func TestScriptsEndpointCachesUntilRefresh(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	f.SetCSV("0", "STT,Thời lượng,Phân cảnh,Lời thoại\n1,5s,Intro,Xin chào\n")
	ts, _ := newTestServer(t, f, nil)

	code, env := do(t, http.MethodGet, ts.URL+"/api/scripts", nil, nil)
	if code != http.StatusOK || env.Status != "ok" {
		t.Fatalf("unexpected response %d %+v", code, env)
	}
	var first ScriptsResponse
	if err := json.Unmarshal(env.Data, &first); err != nil {
		t.Fatalf("decode scripts: %v", err)
	}
	if first.Cached || len(first.Scripts) != 1 || first.Outcome != ingest.OutcomeOK {
		t.Fatalf("unexpected first load: %+v", first)
	}

	_, env = do(t, http.MethodGet, ts.URL+"/api/scripts", nil, nil)
	var second ScriptsResponse
	_ = json.Unmarshal(env.Data, &second)
	if !second.Cached || second.RunID != first.RunID {
		t.Fatalf("expected cached result, got %+v", second)
	}
	if n := f.CountRequests("/spreadsheets/d/"); n != 1 {
		t.Fatalf("expected one export request, got %d", n)
	}

	_, env = do(t, http.MethodGet, ts.URL+"/api/scripts?refresh=1", nil, nil)
	var third ScriptsResponse
	_ = json.Unmarshal(env.Data, &third)
	if third.Cached || third.RunID == first.RunID {
		t.Fatal("expected refresh to run a new load")
	}
}

func TestScriptsEndpointReportsFailureAsData(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	f.SetHTML("0")
	ts, _ := newTestServer(t, f, nil)

	code, env := do(t, http.MethodGet, ts.URL+"/api/scripts", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200 for degraded load, got %d", code)
	}
	var resp ScriptsResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Outcome != ingest.OutcomeFailure || resp.Scripts == nil || len(resp.Diagnostics) == 0 {
		t.Fatalf("unexpected degraded response: %+v", resp)
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	dev := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))
	t.Cleanup(dev.Close)
	ts, _ := newTestServer(t, f, func(c *config.Config) { c.Probes.DevURL = dev.URL })

	code, env := do(t, http.MethodGet, ts.URL+"/api/status", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Probes) != 1 || resp.Probes[0].Status != preflight.ProbeOK {
		t.Fatalf("unexpected probes: %+v", resp.Probes)
	}
	if resp.Session.SignedIn || len(resp.Checks) == 0 || resp.Last != nil {
		t.Fatalf("unexpected status payload: %+v", resp)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	f.SetCSV("0", "STT,Thời lượng,Phân cảnh,Lời thoại\n1,5s,Intro,Xin chào\n")
	ts, svc := newTestServer(t, f, nil)
	svc.LoadScripts(context.Background())

	_, env := do(t, http.MethodGet, ts.URL+"/api/history?limit=5", nil, nil)
	var resp HistoryResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Runs) != 1 || resp.Runs[0].Outcome != "ok" {
		t.Fatalf("unexpected runs: %+v", resp.Runs)
	}

	code, env := do(t, http.MethodGet, ts.URL+"/api/history?limit=abc", nil, nil)
	if code != http.StatusBadRequest || env.Error == nil || env.Error.Code != "INVALID_LIMIT" {
		t.Fatalf("expected invalid limit error, got %d %+v", code, env.Error)
	}
}

func TestAuthFlowEndpoints(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	ts, svc := newTestServer(t, f, nil)

	code, env := do(t, http.MethodPost, ts.URL+"/api/auth/exchange", ExchangeRequest{Code: "auth-code"}, nil)
	if code != http.StatusOK {
		t.Fatalf("exchange failed: %d %+v", code, env.Error)
	}
	if !svc.Session().Status().SignedIn {
		t.Fatal("expected session after exchange")
	}

	code, _ = do(t, http.MethodDelete, ts.URL+"/api/auth/session", nil, nil)
	if code != http.StatusOK || svc.Session().Status().SignedIn {
		t.Fatal("expected sign out to clear the session")
	}

	code, env = do(t, http.MethodPut, ts.URL+"/api/auth/token", TokenRequest{}, nil)
	if code != http.StatusBadRequest || env.Error.Code != "MISSING_FIELDS" {
		t.Fatalf("expected missing field error, got %d %+v", code, env.Error)
	}

	code, _ = do(t, http.MethodPut, ts.URL+"/api/auth/token", TokenRequest{AccessToken: "dashboard-token", ExpiresIn: 3600}, nil)
	if code != http.StatusOK || !svc.Session().Status().SignedIn {
		t.Fatal("expected imported token to sign in")
	}
}

func TestBearerTokenRequired(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	ts, _ := newTestServer(t, f, func(c *config.Config) { c.Paths.APIToken = "s3cret" })

	code, env := do(t, http.MethodGet, ts.URL+"/api/status", nil, nil)
	if code != http.StatusUnauthorized || env.Status != "error" {
		t.Fatalf("expected 401, got %d", code)
	}
	code, _ = do(t, http.MethodGet, ts.URL+"/api/status", nil, map[string]string{"Authorization": "Bearer s3cret"})
	if code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", code)
	}
}

func TestUnknownRoute(t *testing.T) {
	f := testsupport.NewFakeGoogle(t)
	ts, _ := newTestServer(t, f, nil)
	code, env := do(t, http.MethodGet, ts.URL+"/api/nope", nil, nil)
	if code != http.StatusNotFound || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Fatalf("unexpected response %d %+v", code, env)
	}
}
