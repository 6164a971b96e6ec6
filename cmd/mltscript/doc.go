// Package main hosts the mltscript CLI entrypoint and command graph.
//
// The Cobra command tree loads scripts from the configured Google Sheet,
// manages the OAuth session, prints connection status and ingestion history,
// and runs the long-lived watch and serve modes. Configuration resolution and
// logger setup happen once in the command context so subcommands only deal
// with presentation.
package main
