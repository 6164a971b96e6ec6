package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mltscript/internal/config"
	"mltscript/internal/credentials"
	"mltscript/internal/services"
)

type fakeGoogle struct {
	*httptest.Server
	exchanges atomic.Int32
	refreshes atomic.Int32
	userinfo  atomic.Bool
	revoked   atomic.Bool
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	f := &fakeGoogle{}
	f.userinfo.Store(true)
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("client_id") != "client" {
			http.Error(w, "bad client", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			f.exchanges.Add(1)
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
				"expires_in":    3600,
				"token_type":    "Bearer",
				"id_token":      signedIDToken(t),
			})
		case "refresh_token":
			f.refreshes.Add(1)
			if f.revoked.Load() {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "access-2",
				"expires_in":   3600,
				"token_type":   "Bearer",
			})
		default:
			http.Error(w, "unsupported grant", http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if !f.userinfo.Load() || r.Header.Get("Authorization") == "" {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u-1","email":"editor@vlu.edu.vn","name":"Editor","picture":"https://example.com/p.png"}`))
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func signedIDToken(t *testing.T) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "sub-9",
		"email": "claims@vlu.edu.vn",
		"name":  "From Claims",
	})
	signed, err := tok.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign id token: %v", err)
	}
	return signed
}

func newSession(t *testing.T, f *fakeGoogle, clientID string) *Session {
	t.Helper()
	cfg := config.Default().OAuth
	cfg.ClientID = clientID
	cfg.TokenURL = f.URL + "/token"
	cfg.AuthURL = f.URL + "/auth"
	cfg.UserinfoURL = f.URL + "/"
	return New(cfg, credentials.NewStore(credentials.NewMemoryStorage()), WithHTTPClient(f.Client()))
}

func TestCompleteExchangesCodeAndSavesProfile(t *testing.T) {
	f := newFakeGoogle(t)
	s := newSession(t, f, "client")

	cred, err := s.Complete(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if cred.AccessToken != "access-1" || cred.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected credential: %+v", cred)
	}
	if cred.Profile == nil || cred.Profile.Email != "editor@vlu.edu.vn" {
		t.Fatalf("expected userinfo profile, got %+v", cred.Profile)
	}
	if !s.Store().IsValid() {
		t.Fatal("expected stored credential to be valid")
	}
	st := s.Status()
	if !st.SignedIn || !st.Refreshable || st.Profile == nil {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestCompleteFallsBackToIDTokenClaims(t *testing.T) {
	f := newFakeGoogle(t)
	f.userinfo.Store(false)
	s := newSession(t, f, "client")

	cred, err := s.Complete(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if cred.Profile == nil || cred.Profile.ID != "sub-9" || cred.Profile.Email != "claims@vlu.edu.vn" {
		t.Fatalf("expected id_token profile, got %+v", cred.Profile)
	}
}

func TestCompleteRejectedCode(t *testing.T) {
	f := newFakeGoogle(t)
	s := newSession(t, f, "client")

	_, err := s.Complete(context.Background(), "stale")
	if !errors.Is(err, services.ErrCredential) {
		t.Fatalf("expected credential error, got %v", err)
	}
	if s.Store().IsValid() {
		t.Fatal("nothing should be stored after a rejected exchange")
	}
}

func TestCredentialRefreshesExpiredToken(t *testing.T) {
	f := newFakeGoogle(t)
	s := newSession(t, f, "client")
	if err := s.Store().Save(credentials.Credential{
		AccessToken:       "old",
		ExpiryEpochMillis: time.Now().Add(-time.Minute).UnixMilli(),
		RefreshToken:      "refresh-1",
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cred, err := s.Credential(context.Background())
	if err != nil {
		t.Fatalf("Credential: %v", err)
	}
	if cred == nil || cred.AccessToken != "access-2" {
		t.Fatalf("expected refreshed token, got %+v", cred)
	}
	if cred.RefreshToken != "refresh-1" {
		t.Fatalf("expected refresh token retained, got %q", cred.RefreshToken)
	}
	if f.refreshes.Load() != 1 {
		t.Fatalf("expected one refresh call, got %d", f.refreshes.Load())
	}

	if _, err := s.Credential(context.Background()); err != nil {
		t.Fatalf("Credential: %v", err)
	}
	if f.refreshes.Load() != 1 {
		t.Fatal("valid credential should not trigger another refresh")
	}
}

func TestRefreshRevokedClearsStore(t *testing.T) {
	f := newFakeGoogle(t)
	f.revoked.Store(true)
	s := newSession(t, f, "client")
	_ = s.Store().Save(credentials.Credential{
		AccessToken:       "old",
		ExpiryEpochMillis: time.Now().Add(-time.Minute).UnixMilli(),
		RefreshToken:      "refresh-1",
	})

	cred, err := s.Credential(context.Background())
	if cred != nil || !errors.Is(err, services.ErrCredential) {
		t.Fatalf("expected credential error, got %+v %v", cred, err)
	}
	if s.Store().RefreshToken() != "" {
		t.Fatal("revoked refresh token should be cleared")
	}
}

func TestCredentialWithoutClientIDUsesStoredTokenOnly(t *testing.T) {
	f := newFakeGoogle(t)
	s := newSession(t, f, "")

	if _, err := s.AuthCodeURL("state"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	cred, err := s.Import(context.Background(), "imported", 10*time.Minute)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if cred.Profile == nil || cred.Profile.ID != "u-1" {
		t.Fatalf("expected imported token profile lookup, got %+v", cred.Profile)
	}
	got, err := s.Credential(context.Background())
	if err != nil || got == nil || got.AccessToken != "imported" {
		t.Fatalf("expected imported credential, got %+v (%v)", got, err)
	}
	if f.refreshes.Load() != 0 {
		t.Fatal("unexpected refresh without client id")
	}
}

func TestAuthCodeURLRequestsOfflineAccess(t *testing.T) {
	f := newFakeGoogle(t)
	s := newSession(t, f, "client")
	url, err := s.AuthCodeURL("xyz")
	if err != nil {
		t.Fatalf("AuthCodeURL: %v", err)
	}
	for _, want := range []string{"access_type=offline", "state=xyz", "client_id=client"} {
		if !strings.Contains(url, want) {
			t.Fatalf("expected %q in %s", want, url)
		}
	}
}

func TestInvalidateAndSignOut(t *testing.T) {
	f := newFakeGoogle(t)
	s := newSession(t, f, "client")
	if _, err := s.Complete(context.Background(), "good-code"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := s.Invalidate(context.Background(), errors.New("401")); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if s.Status().SignedIn || !s.Status().Refreshable {
		t.Fatalf("unexpected status after invalidate: %+v", s.Status())
	}
	if err := s.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if s.Status().Refreshable {
		t.Fatal("sign-out should drop the refresh token")
	}
}

func TestProfileFromIDTokenRejectsGarbage(t *testing.T) {
	if _, err := ProfileFromIDToken("not-a-jwt"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := ProfileFromIDToken(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}
