package sheets

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"mltscript/internal/logging"
	"mltscript/internal/services"
)

const (
	defaultCSVBaseURL = "https://docs.google.com"
	maxCSVBytes       = 32 << 20
)

// ErrHTMLResponse reports an export that answered with a web page instead of
// CSV, which is how Google signals a private sheet or a bad gid.
var ErrHTMLResponse = errors.New("export returned HTML instead of CSV")

var (
	utf8BOM     = []byte("\xef\xbb\xbf")
	htmlMarkers = [][]byte{[]byte("<!doctype html"), []byte("<html")}
)

// CSVTransport reads a tab through the unauthenticated CSV export.
type CSVTransport struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewCSVTransport builds a CSVTransport. requestsPerSecond <= 0 disables pacing.
func NewCSVTransport(baseURL string, httpClient *http.Client, requestsPerSecond float64, logger *slog.Logger) *CSVTransport {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultCSVBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &CSVTransport{
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logging.NewComponentLogger(logger, "sheets-csv"),
	}
}

// ExportURL returns the export address for one tab.
func (t *CSVTransport) ExportURL(sheetID, gid string) string {
	q := url.Values{}
	q.Set("format", "csv")
	q.Set("gid", gid)
	return fmt.Sprintf("%s/spreadsheets/d/%s/export?%s", t.baseURL, url.PathEscape(sheetID), q.Encode())
}

// Fetch downloads and parses one tab. A body that looks like HTML fails with
// ErrHTMLResponse even when the status is 200.
func (t *CSVTransport) Fetch(ctx context.Context, sheetID, gid string) (Table, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Table{}, services.Wrap(services.ErrTimeout, "sheets-csv", "rate limit", "wait cancelled", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.ExportURL(sheetID, gid), nil)
	if err != nil {
		return Table{}, services.Wrap(services.ErrTransport, "sheets-csv", "build request", "", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Table{}, services.Wrap(services.ErrTimeout, "sheets-csv", "export", "request timed out", err)
		}
		return Table{}, services.Wrap(services.ErrTransport, "sheets-csv", "export", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCSVBytes))
	if err != nil {
		return Table{}, services.Wrap(services.ErrTransport, "sheets-csv", "export", "read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrTransport
		if resp.StatusCode == http.StatusNotFound {
			marker = services.ErrNotFound
		}
		return Table{}, services.Wrap(marker, "sheets-csv", "export", fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}
	if LooksLikeHTML(body) || strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "text/html") {
		return Table{}, services.Wrap(services.ErrTransport, "sheets-csv", "export", "sheet is not shared as 'anyone with the link'", ErrHTMLResponse)
	}

	rows, err := ParseCSV(body)
	if err != nil {
		return Table{}, services.Wrap(services.ErrParse, "sheets-csv", "parse", "malformed csv", err)
	}
	t.logger.Debug("csv export read",
		logging.String(logging.FieldGID, gid),
		logging.Int("rows_seen", len(rows)),
		logging.Int("bytes", len(body)))
	return Table{GID: gid, Rows: rows}, nil
}

// LooksLikeHTML reports whether body opens like an HTML document. Only the
// prefix is inspected so cells quoting markup such as "<header>" stay CSV.
func LooksLikeHTML(body []byte) bool {
	head := bytes.TrimSpace(bytes.TrimPrefix(body, utf8BOM))
	for _, marker := range htmlMarkers {
		if len(head) >= len(marker) && bytes.EqualFold(head[:len(marker)], marker) {
			return true
		}
	}
	return false
}

// ParseCSV splits an export body into rows. Quoted fields may contain
// commas, quotes, and newlines; rows may have differing lengths.
func ParseCSV(body []byte) ([][]string, error) {
	body = bytes.TrimPrefix(body, utf8BOM)
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return rows, nil
}
