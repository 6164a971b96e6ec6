// Package ingest is the single entry point that turns the VLU-KỊCH BẢN sheet
// into Script aggregates.
//
// Service.LoadScripts runs the transport selector, the row decoder, and the
// scene grouper in sequence and never returns an error: failures are folded
// into Result.Diagnostics and Result.Outcome (ok, partial, failure). Each run
// is optionally recorded in the history store.
package ingest
