// Package services defines shared utilities consumed by the ingestion
// components and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp sheet IDs, tab gids, transport names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the diagnostic kinds reported by an ingestion run.
//
// Use these helpers when wiring new transport or decoding logic so error
// classification and observability stay uniform across the pipeline.
package services
