package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"mltscript/internal/api"
	"mltscript/internal/config"
	"mltscript/internal/ingest"
	"mltscript/internal/logging"
)

const lockFileName = "mltscript.lock"

// Option customises a Daemon.
type Option func(*Daemon)

// WithSchedule sets the cron spec for periodic reloads. An empty spec
// disables scheduling.
func WithSchedule(spec string) Option {
	return func(d *Daemon) { d.schedule = strings.TrimSpace(spec) }
}

// WithAPIServer serves the HTTP API for the daemon's lifetime.
func WithAPIServer(srv *api.Server) Option {
	return func(d *Daemon) { d.api = srv }
}

// WithLoadHook is called after every load, including the initial one.
func WithLoadHook(fn func(ingest.Result)) Option {
	return func(d *Daemon) { d.onLoad = fn }
}

// Daemon coordinates scheduled reloads and the API server, and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	svc      *ingest.Service
	api      *api.Server
	schedule string
	onLoad   func(ingest.Result)

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	scheduler *cron.Cron
	entry     cron.EntryID

	loads   atomic.Int64
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool      `json:"running"`
	LockFilePath string    `json:"lockFilePath"`
	Schedule     string    `json:"schedule,omitempty"`
	NextReload   time.Time `json:"nextReload,omitzero"`
	Loads        int64     `json:"loads"`
	APIAddress   string    `json:"apiAddress,omitempty"`
}

// New constructs a daemon around an initialised ingestion service.
func New(cfg *config.Config, svc *ingest.Service, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || svc == nil {
		return nil, errors.New("daemon requires config and ingestion service")
	}
	lockPath := filepath.Join(cfg.Paths.StateDir, lockFileName)
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		svc:      svc,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the lock, runs one load, then starts the scheduler and the
// API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mltscript daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.reload()

	if d.schedule != "" {
		scheduler := cron.New(
			cron.WithLogger(cronLogger{logger: d.logger}),
			cron.WithChain(cron.Recover(cronLogger{logger: d.logger}), cron.SkipIfStillRunning(cronLogger{logger: d.logger})),
		)
		entry, err := scheduler.AddFunc(d.schedule, d.reload)
		if err != nil {
			d.release()
			return fmt.Errorf("watch schedule %q: %w", d.schedule, err)
		}
		scheduler.Start()
		d.mu.Lock()
		d.scheduler, d.entry = scheduler, entry
		d.mu.Unlock()
	}

	if d.api != nil {
		if err := d.api.Start(d.ctx); err != nil {
			d.stopScheduler()
			d.release()
			return fmt.Errorf("start api: %w", err)
		}
	}

	d.running.Store(true)
	d.logger.Info("mltscript daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("schedule", d.schedule),
		logging.Bool("api", d.api != nil))
	return nil
}

// Stop halts scheduling, shuts the API down, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.stopScheduler()
	if d.api != nil {
		d.api.Stop()
	}
	d.release()
	d.running.Store(false)
	d.logger.Info("mltscript daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
		logging.Int64("loads", d.loads.Load()))
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	st := Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		Schedule:     d.schedule,
		Loads:        d.loads.Load(),
	}
	d.mu.Lock()
	if d.scheduler != nil {
		st.NextReload = d.scheduler.Entry(d.entry).Next
	}
	d.mu.Unlock()
	if d.api != nil {
		st.APIAddress = d.api.Addr()
	}
	return st
}

// Done is closed when the daemon's context ends.
func (d *Daemon) Done() <-chan struct{} {
	if d.ctx == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return d.ctx.Done()
}

func (d *Daemon) reload() {
	ctx := d.ctx
	if ctx == nil || ctx.Err() != nil {
		return
	}
	result := d.svc.LoadScripts(ctx)
	d.loads.Add(1)
	if d.onLoad != nil {
		d.onLoad(result)
	}
}

func (d *Daemon) stopScheduler() {
	d.mu.Lock()
	scheduler := d.scheduler
	d.scheduler = nil
	d.mu.Unlock()
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
}

func (d *Daemon) release() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}
