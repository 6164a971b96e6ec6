package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"mltscript/internal/logging"
	"mltscript/internal/services"
)

// APITransport reads a tab through the Sheets v4 API with a bearer token.
type APITransport struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAPITransport builds an APITransport. An empty baseURL uses Google's.
func NewAPITransport(baseURL string, httpClient *http.Client, logger *slog.Logger) *APITransport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &APITransport{
		baseURL:    strings.TrimSpace(baseURL),
		httpClient: httpClient,
		logger:     logging.NewComponentLogger(logger, "sheets-api"),
	}
}

// Fetch reads the first tab matching the gid candidates, or the first tab
// when none match. 401 and 403 responses map to services.ErrCredential.
func (t *APITransport) Fetch(ctx context.Context, ref SheetRef, accessToken string) (Table, error) {
	svc, err := t.service(ctx, accessToken)
	if err != nil {
		return Table{}, services.Wrap(services.ErrTransport, "sheets-api", "client", "build sheets client", err)
	}

	meta, err := svc.Spreadsheets.Get(ref.SheetID).
		Fields("sheets(properties(sheetId,title))").
		Context(ctx).Do()
	if err != nil {
		return Table{}, classifyAPIError("spreadsheet metadata", err)
	}
	tab, ok := selectTab(meta.Sheets, ref.GIDCandidates)
	if !ok {
		return Table{}, services.Wrap(services.ErrNotFound, "sheets-api", "spreadsheet metadata", "spreadsheet has no tabs", nil)
	}

	rng := a1Range(tab.Title, ref.Range)
	values, err := svc.Spreadsheets.Values.Get(ref.SheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return Table{}, classifyAPIError("values "+rng, err)
	}

	table := Table{
		GID:   strconv.FormatInt(tab.SheetId, 10),
		Title: tab.Title,
		Rows:  make([][]string, 0, len(values.Values)),
	}
	for _, row := range values.Values {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cast.ToString(v)
		}
		table.Rows = append(table.Rows, cells)
	}
	t.logger.Debug("sheets api values read",
		logging.String(logging.FieldGID, table.GID),
		logging.String("range", rng),
		logging.Int("rows_seen", len(table.Rows)))
	return table, nil
}

func (t *APITransport) service(ctx context.Context, accessToken string) (*sheetsapi.Service, error) {
	base := context.WithValue(ctx, oauth2.HTTPClient, t.httpClient)
	client := oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if t.baseURL != "" {
		opts = append(opts, option.WithEndpoint(t.baseURL))
	}
	return sheetsapi.NewService(ctx, opts...)
}

func selectTab(tabs []*sheetsapi.Sheet, gids []string) (*sheetsapi.SheetProperties, bool) {
	var first *sheetsapi.SheetProperties
	byID := make(map[int64]*sheetsapi.SheetProperties, len(tabs))
	for _, s := range tabs {
		if s == nil || s.Properties == nil {
			continue
		}
		if first == nil {
			first = s.Properties
		}
		byID[s.Properties.SheetId] = s.Properties
	}
	for _, gid := range gids {
		id, err := strconv.ParseInt(strings.TrimSpace(gid), 10, 64)
		if err != nil {
			continue
		}
		if p, ok := byID[id]; ok {
			return p, true
		}
	}
	return first, first != nil
}

func a1Range(title, configured string) string {
	configured = strings.TrimSpace(configured)
	if strings.Contains(configured, "!") {
		return configured
	}
	quoted := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	if configured == "" {
		return quoted
	}
	return quoted + "!" + configured
}

func classifyAPIError(operation string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := fmt.Sprintf("HTTP %d", gerr.Code)
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return services.Wrap(services.ErrCredential, "sheets-api", operation, msg, err)
		case http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, "sheets-api", operation, msg, err)
		}
		return services.Wrap(services.ErrTransport, "sheets-api", operation, msg, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "sheets-api", operation, "request timed out", err)
	}
	return services.Wrap(services.ErrTransport, "sheets-api", operation, "request failed", err)
}
