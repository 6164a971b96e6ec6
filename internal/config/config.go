package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Columns maps script roles to zero-based column indices. Each role lists
// columns in precedence order; the first non-empty cell wins.
type Columns struct {
	Number      []int `toml:"number"`
	Duration    []int `toml:"duration"`
	Timestamp   []int `toml:"timestamp"`
	Description []int `toml:"description"`
	Content     []int `toml:"content"`
	Speaker     []int `toml:"speaker"`
	Action      []int `toml:"action"`
	Notes       []int `toml:"notes"`
}

// Sheet identifies the spreadsheet and how its rows become scripts.
type Sheet struct {
	SheetID       string   `toml:"sheet_id"`
	GIDCandidates []string `toml:"gid_candidates"`
	APIRange      string   `toml:"api_range"`
	// APILayout and CSVLayout select the row decoding strategy per transport:
	// "keyword" scans header text, "fixed" uses Columns.
	APILayout     string  `toml:"api_layout"`
	CSVLayout     string  `toml:"csv_layout"`
	GroupBy       string  `toml:"group_by"`
	BucketSeconds int     `toml:"bucket_seconds"`
	Columns       Columns `toml:"columns"`
}

// OAuth contains the Google OAuth client registration.
type OAuth struct {
	ClientID            string   `toml:"client_id"`
	ClientSecret        string   `toml:"client_secret"`
	RedirectURL         string   `toml:"redirect_url"`
	Scopes              []string `toml:"scopes"`
	AuthURL             string   `toml:"auth_url"`
	TokenURL            string   `toml:"token_url"`
	UserinfoURL         string   `toml:"userinfo_url"`
	ExpiryLeewaySeconds int      `toml:"expiry_leeway_seconds"`
}

// Transport contains endpoints and pacing for sheet reads.
type Transport struct {
	CSVBaseURL            string  `toml:"csv_base_url"`
	APIBaseURL            string  `toml:"api_base_url"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
	RequestsPerSecond     float64 `toml:"requests_per_second"`
}

// Probes contains the connection status targets.
type Probes struct {
	DevURL         string `toml:"dev_url"`
	ProdURL        string `toml:"prod_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// History contains configuration for the ingestion run log.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
	Keep    int    `toml:"keep"`
}

// Watch contains configuration for scheduled reloads.
type Watch struct {
	Schedule string `toml:"schedule"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mltscript.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories and API bind address
//   - Sheet: spreadsheet identity, tab candidates, decoding and grouping
//   - OAuth: Google client registration and token endpoints
//   - Transport: CSV export and Sheets API endpoints plus pacing
//   - Probes: dev/prod connection status targets
//   - History: ingestion run log backed by SQLite
//   - Watch: cron schedule for periodic reloads
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Sheet     Sheet     `toml:"sheet"`
	OAuth     OAuth     `toml:"oauth"`
	Transport Transport `toml:"transport"`
	Probes    Probes    `toml:"probes"`
	History   History   `toml:"history"`
	Watch     Watch     `toml:"watch"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mltscript/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file in the working directory or next to
// the config file seeds environment fallbacks without overriding the real environment.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotenv(resolvedPath); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mltscript.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func loadDotenv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("load env file %s: %w", abs, err)
		}
	}
	return nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.History.Enabled && c.History.Path != "" {
		if err := os.MkdirAll(filepath.Dir(c.History.Path), 0o755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}
	return nil
}

// CredentialStoragePath returns the file backing persisted credential keys.
func (c *Config) CredentialStoragePath() string {
	return filepath.Join(c.Paths.StateDir, credentialStorageFile)
}

// SheetConfigured reports whether a spreadsheet identifier is available.
func (c *Config) SheetConfigured() bool {
	return strings.TrimSpace(c.Sheet.SheetID) != ""
}

// OAuthConfigured reports whether a Google OAuth client is registered.
func (c *Config) OAuthConfigured() bool {
	return strings.TrimSpace(c.OAuth.ClientID) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
