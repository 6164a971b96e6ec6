// Package history records every ingestion run in a SQLite database so the
// CLI and HTTP API can show when the sheet was last read, through which
// transport, and what went wrong.
package history
