package sheets

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"mltscript/internal/logging"
	"mltscript/internal/services"
)

// Selector picks a read path for a sheet: the Sheets API when a credential
// is available, then the CSV export for each gid candidate in order.
type Selector struct {
	api    *APITransport
	csv    *CSVTransport
	creds  CredentialSource
	logger *slog.Logger
}

// NewSelector wires the transports. A nil api or creds disables the API path.
func NewSelector(api *APITransport, csv *CSVTransport, creds CredentialSource, logger *slog.Logger) *Selector {
	return &Selector{
		api:    api,
		csv:    csv,
		creds:  creds,
		logger: logging.NewComponentLogger(logger, "transport"),
	}
}

// FetchRows never returns an error. When every path fails the result has an
// empty Table, Transport set to TransportNone, and one Attempt per try.
//
// The CSV export is only requested when the API path was skipped, failed, or
// returned a tab without data rows; a successful API read is never paired
// with a CSV fetch. An empty API tab is still returned when every CSV gid
// also fails.
func (s *Selector) FetchRows(ctx context.Context, ref SheetRef) FetchResult {
	ctx = services.WithSheetID(ctx, ref.SheetID)
	result := FetchResult{Transport: TransportNone}

	gids := candidates(ref.GIDCandidates)
	apiAttempt, apiTable := s.tryAPI(ctx, ref, gids)
	result.Attempts = append(result.Attempts, apiAttempt)
	if apiAttempt.OK() && !apiTable.Empty() {
		result.Table = apiTable
		result.Transport = TransportAPI
		return result
	}

	if s.csv != nil {
		for _, gid := range gids {
			if ctx.Err() != nil {
				break
			}
			attempt, table := s.tryCSV(ctx, ref.SheetID, gid)
			result.Attempts = append(result.Attempts, attempt)
			if attempt.OK() {
				result.Table = table
				result.Transport = TransportCSV
				return result
			}
		}
	}

	if apiAttempt.OK() {
		// The API reached an empty tab and CSV could not do better.
		result.Table = apiTable
		result.Transport = TransportAPI
		return result
	}

	logging.WarnWithContext(logging.WithContext(ctx, s.logger), "no transport could read the sheet", "transport_exhausted",
		logging.Int("attempts", len(result.Attempts)),
		logging.String("gid_candidates", strings.Join(gids, ",")),
		logging.String(logging.FieldErrorHint, "share the sheet as 'anyone with the link can view' or sign in with mltscript auth login"),
		logging.String(logging.FieldImpact, "no scripts loaded"))
	return result
}

func (s *Selector) tryAPI(ctx context.Context, ref SheetRef, gids []string) (Attempt, Table) {
	attempt := Attempt{Transport: TransportAPI}
	ctx = services.WithTransport(ctx, string(TransportAPI))
	logger := logging.WithContext(ctx, s.logger)

	if s.api == nil || s.creds == nil {
		attempt.Skipped = true
		attempt.Reason = "api transport disabled"
		return attempt, Table{}
	}
	cred, err := s.creds.Credential(ctx)
	if err != nil {
		attempt.Skipped = true
		attempt.Reason = "credential unavailable"
		attempt.Err = err
		logging.WarnWithContext(logger, "credential lookup failed", "credential_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run mltscript auth status"),
			logging.String(logging.FieldImpact, "falling back to CSV export"))
		return attempt, Table{}
	}
	if cred == nil {
		attempt.Skipped = true
		attempt.Reason = "not signed in"
		logger.Debug("skipping sheets api", logging.String("reason", attempt.Reason))
		return attempt, Table{}
	}

	start := time.Now()
	table, err := s.api.Fetch(ctx, SheetRef{SheetID: ref.SheetID, GIDCandidates: gids, Range: ref.Range}, cred.AccessToken)
	attempt.Duration = time.Since(start)
	attempt.GID = table.GID
	if err != nil {
		attempt.Err = err
		if errors.Is(err, services.ErrCredential) {
			if invErr := s.creds.Invalidate(ctx, err); invErr != nil {
				logger.Debug("credential invalidation failed", logging.Error(invErr))
			}
		}
		logging.WarnWithContext(logger, "sheets api read failed", "api_read_failed",
			logging.Error(err),
			logging.String("kind", services.Kind(err)),
			logging.String(logging.FieldErrorHint, apiHint(err)),
			logging.String(logging.FieldImpact, "falling back to CSV export"))
		return attempt, Table{}
	}
	attempt.Rows = len(table.Body())
	logger.Info("sheets api read",
		logging.String(logging.FieldEventType, "api_read"),
		logging.String(logging.FieldGID, table.GID),
		logging.Int("rows_seen", attempt.Rows),
		logging.Duration("fetch_duration", attempt.Duration))
	return attempt, table
}

func (s *Selector) tryCSV(ctx context.Context, sheetID, gid string) (Attempt, Table) {
	ctx = services.WithGID(services.WithTransport(ctx, string(TransportCSV)), gid)
	logger := logging.WithContext(ctx, s.logger)
	attempt := Attempt{Transport: TransportCSV, GID: gid}

	start := time.Now()
	table, err := s.csv.Fetch(ctx, sheetID, gid)
	attempt.Duration = time.Since(start)
	if err != nil {
		attempt.Err = err
		logging.WarnWithContext(logger, "csv export failed", "csv_candidate_failed",
			logging.Error(err),
			logging.String("kind", services.Kind(err)),
			logging.String(logging.FieldErrorHint, csvHint(err)),
			logging.String(logging.FieldImpact, "trying next gid candidate"))
		return attempt, Table{}
	}
	attempt.Rows = len(table.Body())
	logger.Info("csv export read",
		logging.String(logging.FieldEventType, "csv_read"),
		logging.Int("rows_seen", attempt.Rows),
		logging.Duration("fetch_duration", attempt.Duration))
	return attempt, table
}

func candidates(gids []string) []string {
	out := make([]string, 0, len(gids))
	for _, gid := range gids {
		if gid = strings.TrimSpace(gid); gid != "" {
			out = append(out, gid)
		}
	}
	if len(out) == 0 {
		out = append(out, "0")
	}
	return out
}

func apiHint(err error) string {
	switch {
	case errors.Is(err, services.ErrCredential):
		return "token rejected; run mltscript auth login"
	case errors.Is(err, services.ErrNotFound):
		return "check sheet_id in the config"
	default:
		return "check network connectivity to sheets.googleapis.com"
	}
}

func csvHint(err error) string {
	switch {
	case errors.Is(err, ErrHTMLResponse):
		return "share the sheet as 'anyone with the link can view' and check the gid"
	case errors.Is(err, services.ErrNotFound):
		return "check sheet_id and gid_candidates in the config"
	case errors.Is(err, services.ErrParse):
		return "the export body is not valid CSV"
	default:
		return "check network connectivity to docs.google.com"
	}
}
