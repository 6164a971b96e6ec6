package testsupport

import (
	"path/filepath"
	"testing"

	"mltscript/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Sheet.SheetID = "test-sheet"
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.History.Path = filepath.Join(base, "state", "history.db")
	cfgVal.Transport.RequestsPerSecond = 0
	cfgVal.Probes.DevURL = ""
	cfgVal.Probes.ProdURL = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSheetID overrides the spreadsheet identifier.
func WithSheetID(id string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sheet.SheetID = id
	}
}

// WithGIDs overrides the gid candidates.
func WithGIDs(gids ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sheet.GIDCandidates = append([]string(nil), gids...)
	}
}

// WithLayouts sets the decoding layout for both transports.
func WithLayouts(api, csv string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sheet.APILayout = api
		b.cfg.Sheet.CSVLayout = csv
	}
}

// WithHistory toggles the ingestion history store.
func WithHistory(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = enabled
	}
}

// WithFakeGoogle points every Google endpoint at the fake server and
// registers an OAuth client.
func WithFakeGoogle(f *FakeGoogle) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transport.CSVBaseURL = f.URL
		b.cfg.Transport.APIBaseURL = f.URL + "/"
		b.cfg.OAuth.ClientID = FakeClientID
		b.cfg.OAuth.ClientSecret = "secret"
		b.cfg.OAuth.AuthURL = f.URL + "/o/oauth2/auth"
		b.cfg.OAuth.TokenURL = f.URL + "/token"
		b.cfg.OAuth.UserinfoURL = f.URL + "/"
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
