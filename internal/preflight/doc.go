// Package preflight reports environment health: local directory and config
// checks, plus concurrent reachability probes against the dashboard's dev
// and prod URLs. A probe that exceeds its timeout is reported as "timeout",
// distinct from "error".
package preflight
