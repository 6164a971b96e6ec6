package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"mltscript/internal/config"
	"mltscript/internal/credentials"
	"mltscript/internal/decode"
	"mltscript/internal/history"
	"mltscript/internal/logging"
	"mltscript/internal/oauth"
	"mltscript/internal/scripts"
	"mltscript/internal/services"
	"mltscript/internal/sheets"
)

// Fetcher reads raw rows for a sheet. sheets.Selector implements it.
type Fetcher interface {
	FetchRows(ctx context.Context, ref sheets.SheetRef) sheets.FetchResult
}

// Option customises Service construction.
type Option func(*Service)

// WithFetcher replaces the transport selector.
func WithFetcher(f Fetcher) Option {
	return func(s *Service) { s.fetcher = f }
}

// WithSession replaces the OAuth session.
func WithSession(session *oauth.Session) Option {
	return func(s *Service) { s.session = session }
}

// WithHTTPClient sets the client used by every transport and the session.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.httpClient = client }
}

// WithHistoryStore injects an already opened history store. The service
// does not close injected stores.
func WithHistoryStore(store *history.Store) Option {
	return func(s *Service) {
		s.history = store
		s.ownsHistory = false
	}
}

// WithClock overrides the clock used for run timing and script timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service is the single entry point for loading scripts from the sheet.
// Construct it with New, call Init before use, and Dispose when done.
type Service struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpClient *http.Client
	session    *oauth.Session
	fetcher    Fetcher
	now        func() time.Time

	history     *history.Store
	ownsHistory bool

	mu        sync.RWMutex
	last      *Result
	firstSeen map[string]string
}

// New wires the pipeline from config. Nothing touches the network or disk
// until Init or LoadScripts.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "ingest"),
		now:         time.Now,
		ownsHistory: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.httpClient == nil {
		timeout := 15 * time.Second
		if cfg != nil && cfg.Transport.RequestTimeoutSeconds > 0 {
			timeout = time.Duration(cfg.Transport.RequestTimeoutSeconds) * time.Second
		}
		s.httpClient = &http.Client{Timeout: timeout}
	}
	if s.session == nil && cfg != nil {
		store := credentials.NewStore(
			credentials.NewFileStorage(cfg.CredentialStoragePath()),
			credentials.WithLeeway(time.Duration(cfg.OAuth.ExpiryLeewaySeconds)*time.Second),
			credentials.WithLogger(logger),
		)
		s.session = oauth.New(cfg.OAuth, store, oauth.WithHTTPClient(s.httpClient), oauth.WithLogger(logger))
	}
	if s.fetcher == nil && cfg != nil {
		api := sheets.NewAPITransport(cfg.Transport.APIBaseURL, s.httpClient, logger)
		csv := sheets.NewCSVTransport(cfg.Transport.CSVBaseURL, s.httpClient, cfg.Transport.RequestsPerSecond, logger)
		var creds sheets.CredentialSource
		if s.session != nil {
			creds = s.session
		}
		s.fetcher = sheets.NewSelector(api, csv, creds, logger)
	}
	return s
}

// Init opens the history store when enabled. A history failure is returned
// but leaves the service usable without history.
func (s *Service) Init(ctx context.Context) error {
	if s.cfg == nil || !s.cfg.History.Enabled || s.history != nil {
		return nil
	}
	store, err := history.Open(s.cfg.History.Path)
	if err != nil {
		logging.WarnWithContext(s.logger, "history store unavailable", "history_open_failed",
			logging.Error(err),
			logging.String("path", s.cfg.History.Path),
			logging.String(logging.FieldErrorHint, "check [history].path permissions or set history.enabled = false"),
			logging.String(logging.FieldImpact, "ingestion runs will not be recorded"))
		return services.Wrap(services.ErrConfiguration, "ingest", "init", "open history", err)
	}
	s.history = store
	s.ownsHistory = true
	return nil
}

// Dispose releases resources opened by Init.
func (s *Service) Dispose() error {
	if s.history == nil || !s.ownsHistory {
		return nil
	}
	err := s.history.Close()
	s.history = nil
	return err
}

// Session returns the OAuth session backing the API transport.
func (s *Service) Session() *oauth.Session { return s.session }

// History returns the history store, or nil when disabled or not initialised.
func (s *Service) History() *history.Store { return s.history }

// Last returns the most recent result.
func (s *Service) Last() (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

// LoadScripts fetches, decodes, and groups the sheet. It never fails: every
// problem becomes a Diagnostic and the result degrades to whatever could be
// assembled, down to an empty script list.
func (s *Service) LoadScripts(ctx context.Context) (result Result) {
	result = Result{
		RunID:     uuid.NewString(),
		Outcome:   OutcomeFailure,
		Scripts:   []scripts.Script{},
		Transport: sheets.TransportNone,
		StartedAt: s.now(),
	}
	ctx = services.WithRequestID(ctx, result.RunID)
	logger := logging.WithContext(ctx, s.logger)

	defer func() {
		if r := recover(); r != nil {
			result.Scripts = []scripts.Script{}
			result.Outcome = OutcomeFailure
			result.Diagnostics = append(result.Diagnostics, Diagnostic{Kind: KindInternal, Message: fmt.Sprintf("panic: %v", r)})
			logging.ErrorWithContext(logger, "ingestion panicked", "ingest_panic",
				logging.String("panic", fmt.Sprint(r)),
				logging.String(logging.FieldErrorHint, "report this as a bug with the sheet layout attached"))
		}
		result.FinishedAt = s.now()
		s.finish(ctx, logger, &result)
	}()

	if s.cfg == nil || !s.cfg.SheetConfigured() {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Kind:    KindConfiguration,
			Message: "sheet_id is not set",
		})
		return result
	}
	if s.fetcher == nil {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{Kind: KindConfiguration, Message: "no transport configured"})
		return result
	}

	ref := sheets.SheetRef{
		SheetID:       s.cfg.Sheet.SheetID,
		GIDCandidates: s.cfg.Sheet.GIDCandidates,
		Range:         s.cfg.Sheet.APIRange,
	}
	fetched := s.fetcher.FetchRows(services.WithSheetID(ctx, ref.SheetID), ref)
	for _, attempt := range fetched.Attempts {
		if attempt.Err == nil {
			continue
		}
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Kind:      diagnosticKind(attempt.Err),
			Transport: string(attempt.Transport),
			GID:       attempt.GID,
			Message:   attempt.Err.Error(),
		})
	}
	result.Transport = fetched.Transport
	result.GID = fetched.Table.GID

	if fetched.Transport == sheets.TransportNone {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Kind:    KindTotal,
			Message: fmt.Sprintf("every transport and gid candidate failed (%d attempts)", len(fetched.Attempts)),
		})
		return result
	}

	layout := s.cfg.Sheet.CSVLayout
	if fetched.Transport == sheets.TransportAPI {
		layout = s.cfg.Sheet.APILayout
	}
	decoder := decode.New(decode.StrategyFor(layout, s.cfg.Sheet.Columns), logger)
	candidates, stats := decoder.Decode(fetched.Table.Header(), fetched.Table.Body())
	result.Stats = stats
	if stats.Err != nil {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Kind:      KindParse,
			Transport: string(fetched.Transport),
			GID:       fetched.Table.GID,
			Message:   stats.Err.Error(),
		})
	} else if stats.Dropped > 0 {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Kind:      KindParse,
			Transport: string(fetched.Transport),
			GID:       fetched.Table.GID,
			Message:   fmt.Sprintf("%d of %d rows had no usable timestamp and were skipped", stats.Dropped, stats.RowsSeen),
		})
	}

	grouped := scripts.Group(candidates, scripts.GroupOptions{
		Key:     keyFunc(s.cfg.Sheet),
		Source:  string(fetched.Transport),
		SheetID: ref.SheetID,
		Tab:     fetched.Table.GID,
		Now:     s.now,
	})
	if grouped != nil {
		s.stampCreatedAt(ctx, logger, ref.SheetID, grouped)
		result.Scripts = grouped
	}

	switch {
	case stats.Err != nil:
		result.Outcome = OutcomeFailure
	case len(result.Diagnostics) == 0:
		result.Outcome = OutcomeOK
	default:
		result.Outcome = OutcomePartial
	}
	return result
}

func (s *Service) finish(ctx context.Context, logger *slog.Logger, result *Result) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "ingest_complete"),
		logging.String("outcome", string(result.Outcome)),
		logging.String(logging.FieldTransport, string(result.Transport)),
		logging.Int("script_count", len(result.Scripts)),
		logging.Int("scene_count", result.SceneCount()),
		logging.Int("rows_seen", result.Stats.RowsSeen),
		logging.Int("rows_kept", result.Stats.RowsKept),
		logging.Duration("load_duration", result.FinishedAt.Sub(result.StartedAt)),
	}
	if result.Outcome == OutcomeFailure {
		logging.WarnWithContext(logger, result.Summary(), "ingest_failed", append(attrs,
			logging.String(logging.FieldErrorHint, "run mltscript status for connectivity and configuration checks"),
			logging.String(logging.FieldImpact, "dashboard shows no scripts"))...)
	} else {
		logger.Info(result.Summary(), logging.Args(attrs...)...)
	}

	s.mu.Lock()
	snapshot := *result
	s.last = &snapshot
	s.mu.Unlock()

	if s.history == nil {
		return
	}
	// Recording must survive a cancelled load context.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.history.Record(recordCtx, result.historyRun(s.sheetID())); err != nil {
		logger.Debug("history record failed", logging.Error(err))
		return
	}
	if s.cfg != nil && s.cfg.History.Keep > 0 {
		if _, err := s.history.Prune(recordCtx, s.cfg.History.Keep); err != nil {
			logger.Debug("history prune failed", logging.Error(err))
		}
	}
}

// stampCreatedAt replaces each script's CreatedAt with the time its ID was
// first loaded, from history when enabled and from this process otherwise.
// UpdatedAt keeps the current load time.
func (s *Service) stampCreatedAt(ctx context.Context, logger *slog.Logger, sheetID string, list []scripts.Script) {
	if s.history != nil {
		ids := make([]string, len(list))
		for i, sc := range list {
			ids[i] = sc.ID
		}
		seen, err := s.history.FirstSeen(ctx, sheetID, ids, s.now())
		if err == nil {
			for i := range list {
				if at, ok := seen[list[i].ID]; ok && !at.IsZero() {
					list[i].CreatedAt = at.UTC().Format(time.RFC3339)
				}
			}
			return
		}
		logger.Debug("first-seen lookup failed, using process memory", logging.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstSeen == nil {
		s.firstSeen = make(map[string]string)
	}
	for i := range list {
		if created, ok := s.firstSeen[list[i].ID]; ok {
			list[i].CreatedAt = created
			continue
		}
		s.firstSeen[list[i].ID] = list[i].CreatedAt
	}
}

func (s *Service) sheetID() string {
	if s.cfg == nil {
		return ""
	}
	return s.cfg.Sheet.SheetID
}

func diagnosticKind(err error) string {
	switch {
	case errors.Is(err, services.ErrCredential):
		return KindCredential
	case errors.Is(err, services.ErrParse):
		return KindParse
	case errors.Is(err, services.ErrConfiguration):
		return KindConfiguration
	default:
		return KindTransport
	}
}

func keyFunc(sheet config.Sheet) scripts.KeyFunc {
	switch sheet.GroupBy {
	case config.GroupByTimestamp:
		return scripts.ByTimestamp
	case config.GroupByBucket:
		return scripts.ByTimestampBucket(time.Duration(sheet.BucketSeconds) * time.Second)
	default:
		return scripts.ByDescription
	}
}
