// Package api serves the ingestion pipeline over HTTP for the dashboard.
//
// Routes are mounted on a chi router under /api: scripts (cached or freshly
// loaded), status (preflight checks, connection probes, session state),
// history (recent ingestion runs), and the auth endpoints that let the
// dashboard hand over an OAuth code or token. Every response uses the same
// {status,data,error} envelope.
package api
