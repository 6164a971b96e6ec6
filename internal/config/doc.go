// Package config loads, normalizes, and validates mltscript configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads .env files, and honours environment
// fallbacks such as GOOGLE_SHEET_ID and GOOGLE_CLIENT_ID. The Config type
// centralizes every knob the CLI and API server need so the sheet identity,
// OAuth client, and transport endpoints are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
