package config

const (
	defaultStateDir              = "~/.local/share/mltscript"
	defaultLogDir                = "~/.local/share/mltscript/logs"
	defaultAPIBind               = "127.0.0.1:7488"
	defaultGID                   = "0"
	defaultAPILayout             = LayoutKeyword
	defaultCSVLayout             = LayoutFixed
	defaultGroupBy               = GroupByDescription
	defaultBucketSeconds         = 60
	defaultOAuthRedirectURL      = "http://localhost:5173/auth/callback"
	defaultOAuthAuthURL          = "https://accounts.google.com/o/oauth2/auth"
	defaultOAuthTokenURL         = "https://oauth2.googleapis.com/token"
	defaultOAuthUserinfoURL      = "https://www.googleapis.com/"
	defaultExpiryLeewaySeconds   = 60
	defaultCSVBaseURL            = "https://docs.google.com"
	defaultAPIBaseURL            = "https://sheets.googleapis.com/"
	defaultRequestTimeoutSeconds = 15
	defaultRequestsPerSecond     = 2.0
	defaultProbeDevURL           = "http://localhost:5173"
	defaultProbeTimeoutSeconds   = 5
	defaultHistoryKeep           = 500
	defaultWatchSchedule         = "@every 5m"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"

	credentialStorageFile = "local_storage.json"
	historyFile           = "history.db"
)

// Decoding layouts.
const (
	LayoutKeyword = "keyword"
	LayoutFixed   = "fixed"
)

// Grouping keys.
const (
	GroupByDescription = "description"
	GroupByTimestamp   = "timestamp"
	GroupByBucket      = "bucket"
)

var defaultScopes = []string{
	"https://www.googleapis.com/auth/spreadsheets.readonly",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// DefaultColumns returns the column layout of the VLU script sheet:
// STT, duration, scene description, two dialogue columns, notes, action.
func DefaultColumns() Columns {
	return Columns{
		Number:      []int{0},
		Duration:    []int{1},
		Description: []int{2},
		Content:     []int{3, 4},
		Notes:       []int{5},
		Action:      []int{6},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Sheet: Sheet{
			GIDCandidates: []string{defaultGID},
			APILayout:     defaultAPILayout,
			CSVLayout:     defaultCSVLayout,
			GroupBy:       defaultGroupBy,
			BucketSeconds: defaultBucketSeconds,
			Columns:       DefaultColumns(),
		},
		OAuth: OAuth{
			RedirectURL:         defaultOAuthRedirectURL,
			Scopes:              append([]string(nil), defaultScopes...),
			AuthURL:             defaultOAuthAuthURL,
			TokenURL:            defaultOAuthTokenURL,
			UserinfoURL:         defaultOAuthUserinfoURL,
			ExpiryLeewaySeconds: defaultExpiryLeewaySeconds,
		},
		Transport: Transport{
			CSVBaseURL:            defaultCSVBaseURL,
			APIBaseURL:            defaultAPIBaseURL,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			RequestsPerSecond:     defaultRequestsPerSecond,
		},
		Probes: Probes{
			DevURL:         defaultProbeDevURL,
			TimeoutSeconds: defaultProbeTimeoutSeconds,
		},
		History: History{
			Enabled: true,
			Keep:    defaultHistoryKeep,
		},
		Watch: Watch{
			Schedule: defaultWatchSchedule,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
