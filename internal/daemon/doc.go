// Package daemon hosts the long-running mltscript process.
//
// A Daemon holds a flock-based single-instance lock in the state directory,
// primes the ingestion cache with one load, then reloads on a cron schedule
// and optionally serves the HTTP API. Both `mltscript watch` and
// `mltscript serve` run through it; the CLI owns signal handling.
package daemon
