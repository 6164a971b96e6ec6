package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"mltscript/internal/config"
)

// ProbeStatus is the outcome of one connection probe.
type ProbeStatus string

const (
	ProbeOK      ProbeStatus = "ok"
	ProbeError   ProbeStatus = "error"
	ProbeTimeout ProbeStatus = "timeout"
)

// Target is a named URL to probe.
type Target struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ProbeResult reports one target's reachability.
type ProbeResult struct {
	Target
	Status     ProbeStatus   `json:"status"`
	HTTPStatus int           `json:"httpStatus,omitempty"`
	Latency    time.Duration `json:"latency"`
	Detail     string        `json:"detail,omitempty"`
}

// Prober issues bounded GET requests.
type Prober struct {
	client  *http.Client
	timeout time.Duration
}

// NewProber builds a Prober. timeout <= 0 means 5 seconds.
func NewProber(client *http.Client, timeout time.Duration) *Prober {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{client: client, timeout: timeout}
}

// Check probes a single target. Any HTTP response below 500 counts as
// reachable; a deadline hit reports ProbeTimeout rather than ProbeError.
func (p *Prober) Check(ctx context.Context, target Target) ProbeResult {
	result := ProbeResult{Target: target, Status: ProbeError}

	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, target.URL, nil)
	if err != nil {
		result.Detail = fmt.Sprintf("invalid url (%v)", err)
		return result
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		if isTimeout(checkCtx, err) {
			result.Status = ProbeTimeout
			result.Detail = fmt.Sprintf("no response within %s", p.timeout)
			return result
		}
		result.Detail = err.Error()
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	result.HTTPStatus = resp.StatusCode
	if resp.StatusCode >= http.StatusInternalServerError {
		result.Detail = fmt.Sprintf("server error (%d)", resp.StatusCode)
		return result
	}
	result.Status = ProbeOK
	result.Detail = "reachable"
	return result
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CheckSheetConfigured reports whether a spreadsheet ID is set.
func CheckSheetConfigured(cfg *config.Config) Result {
	const name = "Spreadsheet"
	if cfg == nil || !cfg.SheetConfigured() {
		return Result{Name: name, Detail: "sheet_id missing (set [sheet].sheet_id or GOOGLE_SHEET_ID)"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (gids %s)", cfg.Sheet.SheetID, strings.Join(cfg.Sheet.GIDCandidates, ", "))}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}
