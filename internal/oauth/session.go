package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"mltscript/internal/config"
	"mltscript/internal/credentials"
	"mltscript/internal/logging"
	"mltscript/internal/services"
)

// ErrNotConfigured is returned when an operation needs an OAuth client ID.
var ErrNotConfigured = errors.New("oauth client not configured")

const defaultTokenLifetime = time.Hour

// Option customises Session construction.
type Option func(*Session)

// WithHTTPClient overrides the HTTP client used for token and userinfo calls.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Session) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logging.NewComponentLogger(logger, "oauth")
	}
}

// WithClock overrides the clock used when a token response omits expires_in.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Session drives the Google OAuth lifecycle on top of a credentials.Store:
// code exchange, refresh, profile lookup, and sign-out.
type Session struct {
	oauthCfg    *oauth2.Config
	userinfoURL string
	store       *credentials.Store
	httpClient  *http.Client
	logger      *slog.Logger
	now         func() time.Time

	// refreshMu keeps concurrent callers from spending one refresh token twice.
	refreshMu sync.Mutex
}

// New builds a Session. An empty client ID is allowed; exchange and refresh
// then report ErrNotConfigured while stored tokens remain usable.
func New(cfg config.OAuth, store *credentials.Store, opts ...Option) *Session {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	s := &Session{
		oauthCfg: &oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       append([]string(nil), cfg.Scopes...),
			Endpoint:     endpoint,
		},
		userinfoURL: cfg.UserinfoURL,
		store:       store,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		logger:      logging.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = credentials.NewStore(nil)
	}
	return s
}

// Store exposes the underlying credential store.
func (s *Session) Store() *credentials.Store { return s.store }

// Configured reports whether a client ID is available for exchange and refresh.
func (s *Session) Configured() bool { return s.oauthCfg.ClientID != "" }

// AuthCodeURL returns the consent URL, requesting offline access so the
// exchange yields a refresh token.
func (s *Session) AuthCodeURL(state string) (string, error) {
	if !s.Configured() {
		return "", services.Wrap(services.ErrConfiguration, "oauth", "auth url", "client_id is empty", ErrNotConfigured)
	}
	return s.oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Complete exchanges an authorization code, resolves the user profile, and
// saves the resulting credential.
func (s *Session) Complete(ctx context.Context, code string) (*credentials.Credential, error) {
	if !s.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "oauth", "exchange", "client_id is empty", ErrNotConfigured)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, services.Wrap(services.ErrCredential, "oauth", "exchange", "authorization code is empty", nil)
	}

	tok, err := s.oauthCfg.Exchange(s.clientContext(ctx), code)
	if err != nil {
		return nil, services.Wrap(services.ErrCredential, "oauth", "exchange", "token endpoint rejected code", err)
	}
	cred, err := s.persist(ctx, tok)
	if err != nil {
		return nil, err
	}
	s.logger.Info("signed in",
		logging.String(logging.FieldEventType, "oauth_signed_in"),
		logging.String("email", profileEmail(cred.Profile)),
		logging.Bool("refreshable", cred.RefreshToken != ""))
	return cred, nil
}

// Import saves an access token obtained by an external sign-in flow.
func (s *Session) Import(ctx context.Context, accessToken string, expiresIn time.Duration) (*credentials.Credential, error) {
	if expiresIn <= 0 {
		expiresIn = defaultTokenLifetime
	}
	tok := &oauth2.Token{
		AccessToken: strings.TrimSpace(accessToken),
		TokenType:   "Bearer",
		Expiry:      s.now().Add(expiresIn),
	}
	return s.persist(ctx, tok)
}

// Credential returns a currently valid credential. An expired access token is
// refreshed when a refresh token is stored; otherwise the result is nil.
func (s *Session) Credential(ctx context.Context) (*credentials.Credential, error) {
	cred, err := s.store.Load()
	if err != nil || cred != nil {
		return cred, err
	}
	if s.store.RefreshToken() == "" || !s.Configured() {
		return nil, nil
	}
	return s.Refresh(ctx)
}

// Refresh trades the stored refresh token for a new access token. A refresh
// token the server reports as invalid is cleared.
func (s *Session) Refresh(ctx context.Context) (*credentials.Credential, error) {
	if !s.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "oauth", "refresh", "client_id is empty", ErrNotConfigured)
	}
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if cred, err := s.store.Load(); err != nil || cred != nil {
		return cred, err
	}
	refresh := s.store.RefreshToken()
	if refresh == "" {
		return nil, services.Wrap(services.ErrCredential, "oauth", "refresh", "no refresh token stored", nil)
	}

	src := s.oauthCfg.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: refresh})
	tok, err := src.Token()
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) && retrieve.ErrorCode == "invalid_grant" {
			logging.WarnWithContext(s.logger, "refresh token revoked", "oauth_refresh_revoked",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "sign in again with mltscript auth login"),
				logging.String(logging.FieldImpact, "sheet reads fall back to CSV export"))
			_ = s.store.Clear()
		}
		return nil, services.Wrap(services.ErrCredential, "oauth", "refresh", "token refresh failed", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refresh
	}
	cred, err := s.persist(ctx, tok)
	if err != nil {
		return nil, err
	}
	s.logger.Info("access token refreshed",
		logging.String(logging.FieldEventType, "oauth_refreshed"),
		logging.Duration("expires_in", time.Until(cred.Expiry()).Round(time.Second)))
	return cred, nil
}

// Invalidate drops the access token after the remote API rejected it.
func (s *Session) Invalidate(_ context.Context, cause error) error {
	logging.WarnWithContext(s.logger, "access token rejected", "oauth_token_rejected",
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "run mltscript auth refresh or auth login"),
		logging.String(logging.FieldImpact, "sheet reads fall back to CSV export"))
	return s.store.Invalidate()
}

// SignOut removes every stored credential key.
func (s *Session) SignOut(context.Context) error {
	if err := s.store.Clear(); err != nil {
		return err
	}
	s.logger.Info("signed out", logging.String(logging.FieldEventType, "oauth_signed_out"))
	return nil
}

// Status describes the stored session without contacting Google.
type Status struct {
	SignedIn    bool                 `json:"signedIn"`
	Refreshable bool                 `json:"refreshable"`
	ExpiresAt   time.Time            `json:"expiresAt,omitzero"`
	Profile     *credentials.Profile `json:"profile,omitempty"`
}

// Status reports the current session state.
func (s *Session) Status() Status {
	st := Status{Refreshable: s.store.RefreshToken() != "" && s.Configured()}
	cred, err := s.store.Load()
	if err != nil || cred == nil {
		return st
	}
	st.SignedIn = true
	st.ExpiresAt = cred.Expiry()
	st.Profile = cred.Profile
	return st
}

func (s *Session) persist(ctx context.Context, tok *oauth2.Token) (*credentials.Credential, error) {
	if tok == nil || strings.TrimSpace(tok.AccessToken) == "" {
		return nil, services.Wrap(services.ErrCredential, "oauth", "persist", "token response missing access_token", nil)
	}
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = s.now().Add(defaultTokenLifetime)
	}
	cred := credentials.Credential{
		AccessToken:       tok.AccessToken,
		ExpiryEpochMillis: expiry.UnixMilli(),
		RefreshToken:      tok.RefreshToken,
		Profile:           s.resolveProfile(ctx, tok),
	}
	if err := s.store.Save(cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *Session) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func profileEmail(p *credentials.Profile) string {
	if p == nil {
		return ""
	}
	return p.Email
}
