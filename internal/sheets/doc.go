// Package sheets reads raw rows from a Google spreadsheet.
//
// Two transports exist: APITransport uses the Sheets v4 API with an OAuth
// bearer token, and CSVTransport uses the public CSV export, which only works
// for sheets shared as "anyone with the link". Selector tries them in that
// order, invalidates the credential on 401/403, walks the configured gid
// candidates on the CSV path, and records every attempt so callers can tell
// "not connected" apart from "connected but empty".
package sheets
