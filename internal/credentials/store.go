package credentials

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"mltscript/internal/logging"
	"mltscript/internal/services"
)

// Storage keys. The access token is always stored as the JSON envelope
// {"access_token","expiry"}; any other shape is treated as invalid.
const (
	KeyAccessToken  = "google_access_token"
	KeyUser         = "google_user"
	KeyRefreshToken = "google_refresh_token"
	KeyExpiresAt    = "google_expires_at"
)

// ErrInvalidCredential reports a credential rejected by Save.
var ErrInvalidCredential = errors.New("invalid credential")

// Profile is the signed-in Google user.
type Profile struct {
	ID      string `json:"id"`
	Email   string `json:"email" validate:"omitempty,email"`
	Name    string `json:"name"`
	Picture string `json:"picture" validate:"omitempty,url"`
}

// Credential is an OAuth access token with its expiry and optional profile.
type Credential struct {
	AccessToken       string   `json:"accessToken" validate:"required"`
	ExpiryEpochMillis int64    `json:"expiryEpochMillis" validate:"gt=0"`
	RefreshToken      string   `json:"-"`
	Profile           *Profile `json:"userProfile,omitempty"`
}

// Expiry returns the expiry as a time.
func (c Credential) Expiry() time.Time {
	return time.UnixMilli(c.ExpiryEpochMillis)
}

type envelope struct {
	AccessToken string `json:"access_token" validate:"required"`
	Expiry      int64  `json:"expiry" validate:"gt=0"`
}

// Option customises Store construction.
type Option func(*Store)

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLeeway treats credentials as expired this long before their expiry.
func WithLeeway(leeway time.Duration) Option {
	return func(s *Store) {
		if leeway >= 0 {
			s.leeway = leeway
		}
	}
}

// WithLogger attaches a logger for self-clear events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logging.NewComponentLogger(logger, "credentials")
	}
}

// Store is the sole owner of persisted credential state.
type Store struct {
	storage  Storage
	now      func() time.Time
	leeway   time.Duration
	logger   *slog.Logger
	validate *validator.Validate

	// mu serializes read-modify-write sequences within this process.
	mu sync.Mutex
}

// NewStore builds a Store over storage. A nil storage keeps state in memory.
func NewStore(storage Storage, opts ...Option) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	s := &Store{
		storage:  storage,
		now:      time.Now,
		logger:   logging.NewNop(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the persisted credential, or nil when none is usable. An
// expired, malformed, or invalid access token is removed from storage before
// Load returns nil. The refresh token survives that cleanup.
func (s *Store) Load() (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (*Credential, error) {
	raw, ok, err := s.storage.Get(KeyAccessToken)
	if err != nil {
		return nil, services.Wrap(services.ErrCredential, "credentials", "load", "read access token", err)
	}
	refresh, _, err := s.storage.Get(KeyRefreshToken)
	if err != nil {
		return nil, services.Wrap(services.ErrCredential, "credentials", "load", "read refresh token", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, s.discard("stored access token is not a JSON envelope", err)
	}
	if err := s.validate.Struct(env); err != nil {
		return nil, s.discard("stored access token envelope is incomplete", err)
	}

	cred := &Credential{
		AccessToken:       env.AccessToken,
		ExpiryEpochMillis: env.Expiry,
		RefreshToken:      refresh,
	}
	if s.expired(cred.ExpiryEpochMillis) {
		s.logger.Info("stored credential expired",
			logging.String(logging.FieldEventType, "credential_expired"),
			logging.String("expired_at", cred.Expiry().UTC().Format(time.RFC3339)),
			logging.Bool("refreshable", refresh != ""))
		return nil, s.clearSessionLocked()
	}

	if profile := s.loadProfile(); profile != nil {
		cred.Profile = profile
	}
	return cred, nil
}

func (s *Store) loadProfile() *Profile {
	raw, ok, err := s.storage.Get(KeyUser)
	if err != nil || !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var profile Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		s.logger.Debug("ignoring malformed stored profile", logging.Error(err))
		return nil
	}
	if err := s.validate.Struct(profile); err != nil {
		s.logger.Debug("ignoring invalid stored profile", logging.Error(err))
		return nil
	}
	return &profile
}

// discard clears the session after a corrupt envelope. It only returns an
// error when the cleanup itself fails.
func (s *Store) discard(reason string, cause error) error {
	logging.WarnWithContext(s.logger, "discarding stored credential", "credential_discarded",
		logging.String("reason", reason),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "sign in again with mltscript auth login"),
		logging.String(logging.FieldImpact, "authenticated Sheets API access disabled until sign-in"))
	return s.clearSessionLocked()
}

// Save validates and persists a credential, replacing the whole stored
// session. A credential without a profile or refresh token removes the
// stored one, so callers that want to keep a refresh token must carry it.
func (s *Store) Save(c Credential) error {
	if err := s.validate.Struct(c); err != nil {
		return services.Wrap(services.ErrCredential, "credentials", "save", "credential rejected", errors.Join(ErrInvalidCredential, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(envelope{AccessToken: c.AccessToken, Expiry: c.ExpiryEpochMillis})
	if err != nil {
		return services.Wrap(services.ErrCredential, "credentials", "save", "encode envelope", err)
	}
	if err := s.storage.Set(KeyAccessToken, string(data)); err != nil {
		return services.Wrap(services.ErrCredential, "credentials", "save", "write access token", err)
	}
	if err := s.storage.Set(KeyExpiresAt, strconv.FormatInt(c.ExpiryEpochMillis, 10)); err != nil {
		return services.Wrap(services.ErrCredential, "credentials", "save", "write expiry", err)
	}
	if c.Profile == nil {
		if err := s.storage.Remove(KeyUser); err != nil {
			return services.Wrap(services.ErrCredential, "credentials", "save", "remove previous profile", err)
		}
	} else {
		profile, err := json.Marshal(c.Profile)
		if err != nil {
			return services.Wrap(services.ErrCredential, "credentials", "save", "encode profile", err)
		}
		if err := s.storage.Set(KeyUser, string(profile)); err != nil {
			return services.Wrap(services.ErrCredential, "credentials", "save", "write profile", err)
		}
	}
	if refresh := strings.TrimSpace(c.RefreshToken); refresh == "" {
		if err := s.storage.Remove(KeyRefreshToken); err != nil {
			return services.Wrap(services.ErrCredential, "credentials", "save", "remove previous refresh token", err)
		}
	} else if err := s.storage.Set(KeyRefreshToken, refresh); err != nil {
		return services.Wrap(services.ErrCredential, "credentials", "save", "write refresh token", err)
	}
	return nil
}

// Clear removes every credential key, including the refresh token.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Remove(KeyAccessToken, KeyUser, KeyExpiresAt, KeyRefreshToken); err != nil {
		return services.Wrap(services.ErrCredential, "credentials", "clear", "remove keys", err)
	}
	return nil
}

// Invalidate drops the access token after the remote side rejected it,
// keeping the refresh token for a later refresh.
func (s *Store) Invalidate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearSessionLocked()
}

func (s *Store) clearSessionLocked() error {
	if err := s.storage.Remove(KeyAccessToken, KeyUser, KeyExpiresAt); err != nil {
		return services.Wrap(services.ErrCredential, "credentials", "clear", "remove session keys", err)
	}
	return nil
}

// IsValid re-reads storage and the clock on every call.
func (s *Store) IsValid() bool {
	cred, err := s.Load()
	return err == nil && cred != nil
}

// RefreshToken returns the stored refresh token, or "".
func (s *Store) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _, err := s.storage.Get(KeyRefreshToken)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

// StoredProfile returns the persisted profile without checking token expiry.
func (s *Store) StoredProfile() *Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadProfile()
}

func (s *Store) expired(expiryMillis int64) bool {
	return !s.now().Add(s.leeway).Before(time.UnixMilli(expiryMillis))
}
