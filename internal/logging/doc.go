// Package logging builds the slog loggers used by every mltscript component.
//
// Console output is a single line per record with the sheet, gid and
// transport folded into a short subject; JSON output is slog's own handler
// with a stable key set. WarnWithContext and ErrorWithContext guarantee the
// event_type, error_hint and impact keys operators filter on.
package logging
