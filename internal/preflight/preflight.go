package preflight

import (
	"context"
	"strings"
	"sync"
	"time"

	"mltscript/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the local checks that need no network access.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckSheetConfigured(cfg),
	}
	if cfg.OAuthConfigured() {
		results = append(results, Result{Name: "OAuth client", Passed: true, Detail: "configured"})
	} else {
		results = append(results, Result{Name: "OAuth client", Detail: "client_id missing (CSV export only)"})
	}
	return results
}

// Targets returns the connection status targets named in the config.
func Targets(cfg *config.Config) []Target {
	if cfg == nil {
		return nil
	}
	var targets []Target
	if u := strings.TrimSpace(cfg.Probes.DevURL); u != "" {
		targets = append(targets, Target{Name: "dev", URL: u})
	}
	if u := strings.TrimSpace(cfg.Probes.ProdURL); u != "" {
		targets = append(targets, Target{Name: "prod", URL: u})
	}
	return targets
}

// Probe checks every target concurrently, each under its own timeout, and
// returns results in target order.
func Probe(ctx context.Context, prober *Prober, targets []Target) []ProbeResult {
	results := make([]ProbeResult, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = prober.Check(ctx, target)
		}()
	}
	wg.Wait()
	return results
}

// Snapshot is the combined view served by `mltscript status` and /api/status.
type Snapshot struct {
	Checks      []Result      `json:"checks"`
	Probes      []ProbeResult `json:"probes"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

// Collect runs local checks and connection probes.
func Collect(ctx context.Context, cfg *config.Config, prober *Prober) Snapshot {
	if prober == nil {
		timeout := 5 * time.Second
		if cfg != nil && cfg.Probes.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.Probes.TimeoutSeconds) * time.Second
		}
		prober = NewProber(nil, timeout)
	}
	return Snapshot{
		Checks:      RunAll(cfg),
		Probes:      Probe(ctx, prober, Targets(cfg)),
		GeneratedAt: time.Now().UTC(),
	}
}
