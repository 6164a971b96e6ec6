package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable. A missing sheet_id is not an
// error here; ingestion reports it as a configuration diagnostic instead.
func (c *Config) Validate() error {
	if err := c.validateSheet(); err != nil {
		return err
	}
	if err := c.validateOAuth(); err != nil {
		return err
	}
	if err := c.validateTransport(); err != nil {
		return err
	}
	if err := c.validateProbes(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
		return fmt.Errorf("watch.schedule: %w", err)
	}
	return c.validateLogging()
}

func (c *Config) validateSheet() error {
	for _, layout := range []struct {
		key   string
		value string
	}{
		{"sheet.api_layout", c.Sheet.APILayout},
		{"sheet.csv_layout", c.Sheet.CSVLayout},
	} {
		switch layout.value {
		case LayoutKeyword, LayoutFixed:
		default:
			return fmt.Errorf("%s: unsupported value %q (expected keyword or fixed)", layout.key, layout.value)
		}
	}
	switch c.Sheet.GroupBy {
	case GroupByDescription, GroupByTimestamp, GroupByBucket:
	default:
		return fmt.Errorf("sheet.group_by: unsupported value %q (expected description, timestamp, or bucket)", c.Sheet.GroupBy)
	}
	if c.Sheet.BucketSeconds < 0 {
		return errors.New("sheet.bucket_seconds must be positive")
	}
	columns := map[string][]int{
		"number":      c.Sheet.Columns.Number,
		"duration":    c.Sheet.Columns.Duration,
		"timestamp":   c.Sheet.Columns.Timestamp,
		"description": c.Sheet.Columns.Description,
		"content":     c.Sheet.Columns.Content,
		"speaker":     c.Sheet.Columns.Speaker,
		"action":      c.Sheet.Columns.Action,
		"notes":       c.Sheet.Columns.Notes,
	}
	for role, indices := range columns {
		for _, idx := range indices {
			if idx < 0 {
				return fmt.Errorf("sheet.columns.%s: column index %d must be >= 0", role, idx)
			}
		}
	}
	if c.Sheet.CSVLayout == LayoutFixed || c.Sheet.APILayout == LayoutFixed {
		if len(c.Sheet.Columns.Timestamp) == 0 && len(c.Sheet.Columns.Duration) == 0 {
			return errors.New("sheet.columns: fixed layout needs a timestamp or duration column")
		}
	}
	return nil
}

func (c *Config) validateOAuth() error {
	if c.OAuth.ClientSecret != "" && c.OAuth.ClientID == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/mltscript/config.toml"
		}
		return fmt.Errorf("oauth.client_id is required when a client secret is set. Set GOOGLE_CLIENT_ID or edit %s", defaultPath)
	}
	for key, value := range map[string]string{
		"oauth.auth_url":     c.OAuth.AuthURL,
		"oauth.token_url":    c.OAuth.TokenURL,
		"oauth.userinfo_url": c.OAuth.UserinfoURL,
		"oauth.redirect_url": c.OAuth.RedirectURL,
	} {
		if err := validateHTTPURL(key, value); err != nil {
			return err
		}
	}
	if c.OAuth.ExpiryLeewaySeconds < 0 {
		return errors.New("oauth.expiry_leeway_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateTransport() error {
	if err := validateHTTPURL("transport.csv_base_url", c.Transport.CSVBaseURL); err != nil {
		return err
	}
	if err := validateHTTPURL("transport.api_base_url", c.Transport.APIBaseURL); err != nil {
		return err
	}
	if c.Transport.RequestTimeoutSeconds <= 0 {
		return errors.New("transport.request_timeout_seconds must be positive")
	}
	if c.Transport.RequestsPerSecond < 0 {
		return errors.New("transport.requests_per_second must be >= 0")
	}
	return nil
}

func (c *Config) validateProbes() error {
	if c.Probes.TimeoutSeconds <= 0 {
		return errors.New("probes.timeout_seconds must be positive")
	}
	if c.Probes.DevURL != "" {
		if err := validateHTTPURL("probes.dev_url", c.Probes.DevURL); err != nil {
			return err
		}
	}
	if c.Probes.ProdURL != "" {
		if err := validateHTTPURL("probes.prod_url", c.Probes.ProdURL); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateHistory() error {
	if c.History.Keep < 0 {
		return errors.New("history.keep must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validateHTTPURL(key, value string) error {
	parsed, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s: expected http(s) URL, got %q", key, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s: missing host in %q", key, value)
	}
	return nil
}
