// Package scripts defines the Script and Scene aggregates and groups decoded
// sheet rows into them.
//
// Grouping is keyed by a pluggable KeyFunc (scene description, raw timestamp,
// or fixed time buckets). Script and scene IDs are derived deterministically
// from the sheet, tab, key, and row so repeated loads of an unchanged sheet
// yield identical identifiers.
package scripts
