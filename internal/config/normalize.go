package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSheet()
	c.normalizeOAuth()
	c.normalizeTransport()
	c.normalizeProbes()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.Watch.Schedule = strings.TrimSpace(c.Watch.Schedule)
	if c.Watch.Schedule == "" {
		c.Watch.Schedule = defaultWatchSchedule
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = lookupEnv("MLTSCRIPT_API_TOKEN")
	}
	return nil
}

func (c *Config) normalizeSheet() {
	c.Sheet.SheetID = strings.TrimSpace(c.Sheet.SheetID)
	if c.Sheet.SheetID == "" {
		c.Sheet.SheetID = lookupEnv("GOOGLE_SHEET_ID", "VITE_GOOGLE_SHEET_ID")
	}
	if len(c.Sheet.GIDCandidates) == 0 || (len(c.Sheet.GIDCandidates) == 1 && c.Sheet.GIDCandidates[0] == defaultGID) {
		if value := lookupEnv("GOOGLE_GID_CANDIDATES", "VITE_GOOGLE_GID_CANDIDATES"); value != "" {
			c.Sheet.GIDCandidates = strings.Split(value, ",")
		}
	}
	c.Sheet.GIDCandidates = normalizeList(c.Sheet.GIDCandidates)
	if len(c.Sheet.GIDCandidates) == 0 {
		c.Sheet.GIDCandidates = []string{defaultGID}
	}
	c.Sheet.APIRange = strings.TrimSpace(c.Sheet.APIRange)
	c.Sheet.APILayout = normalizeEnum(c.Sheet.APILayout, defaultAPILayout)
	c.Sheet.CSVLayout = normalizeEnum(c.Sheet.CSVLayout, defaultCSVLayout)
	c.Sheet.GroupBy = normalizeEnum(c.Sheet.GroupBy, defaultGroupBy)
	if c.Sheet.BucketSeconds == 0 {
		c.Sheet.BucketSeconds = defaultBucketSeconds
	}
}

func (c *Config) normalizeOAuth() {
	c.OAuth.ClientID = strings.TrimSpace(c.OAuth.ClientID)
	if c.OAuth.ClientID == "" {
		c.OAuth.ClientID = lookupEnv("GOOGLE_CLIENT_ID", "VITE_GOOGLE_CLIENT_ID")
	}
	c.OAuth.ClientSecret = strings.TrimSpace(c.OAuth.ClientSecret)
	if c.OAuth.ClientSecret == "" {
		c.OAuth.ClientSecret = lookupEnv("GOOGLE_CLIENT_SECRET", "VITE_GOOGLE_CLIENT_SECRET")
	}
	c.OAuth.RedirectURL = strings.TrimSpace(c.OAuth.RedirectURL)
	if c.OAuth.RedirectURL == "" {
		c.OAuth.RedirectURL = defaultOAuthRedirectURL
	}
	c.OAuth.Scopes = normalizeList(c.OAuth.Scopes)
	if len(c.OAuth.Scopes) == 0 {
		c.OAuth.Scopes = append([]string(nil), defaultScopes...)
	}
	c.OAuth.AuthURL = strings.TrimSpace(c.OAuth.AuthURL)
	if c.OAuth.AuthURL == "" {
		c.OAuth.AuthURL = defaultOAuthAuthURL
	}
	c.OAuth.TokenURL = strings.TrimSpace(c.OAuth.TokenURL)
	if c.OAuth.TokenURL == "" {
		c.OAuth.TokenURL = defaultOAuthTokenURL
	}
	c.OAuth.UserinfoURL = strings.TrimSpace(c.OAuth.UserinfoURL)
	if c.OAuth.UserinfoURL == "" {
		c.OAuth.UserinfoURL = defaultOAuthUserinfoURL
	}
	if c.OAuth.ExpiryLeewaySeconds == 0 {
		c.OAuth.ExpiryLeewaySeconds = defaultExpiryLeewaySeconds
	}
}

func (c *Config) normalizeTransport() {
	c.Transport.CSVBaseURL = strings.TrimRight(strings.TrimSpace(c.Transport.CSVBaseURL), "/")
	if c.Transport.CSVBaseURL == "" {
		c.Transport.CSVBaseURL = defaultCSVBaseURL
	}
	c.Transport.APIBaseURL = strings.TrimSpace(c.Transport.APIBaseURL)
	if c.Transport.APIBaseURL == "" {
		c.Transport.APIBaseURL = defaultAPIBaseURL
	}
	if !strings.HasSuffix(c.Transport.APIBaseURL, "/") {
		c.Transport.APIBaseURL += "/"
	}
	if c.Transport.RequestTimeoutSeconds == 0 {
		c.Transport.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.Transport.RequestsPerSecond == 0 {
		c.Transport.RequestsPerSecond = defaultRequestsPerSecond
	}
}

func (c *Config) normalizeProbes() {
	c.Probes.DevURL = strings.TrimSpace(c.Probes.DevURL)
	c.Probes.ProdURL = strings.TrimSpace(c.Probes.ProdURL)
	if c.Probes.TimeoutSeconds == 0 {
		c.Probes.TimeoutSeconds = defaultProbeTimeoutSeconds
	}
}

func (c *Config) normalizeHistory() error {
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = filepath.Join(c.Paths.StateDir, historyFile)
	}
	var err error
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	if c.History.Keep == 0 {
		c.History.Keep = defaultHistoryKeep
	}
	return nil
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

func lookupEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func normalizeEnum(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
