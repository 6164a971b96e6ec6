package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mltscript/internal/oauth"
	"mltscript/internal/preflight"
)

type statusReport struct {
	preflight.Snapshot
	Session oauth.Status `json:"session"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration checks, connection probes, and the Google session",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := ctx.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Dispose()

			report := statusReport{
				Snapshot: preflight.Collect(cmd.Context(), cfg, nil),
				Session:  svc.Session().Status(),
			}
			if asJSON {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Configuration", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, check := range report.Checks {
				fmt.Fprintln(out, checkLine(check, colorize))
			}
			fmt.Fprintln(out, sessionLine(report.Session, colorize))

			if len(report.Probes) > 0 {
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Connections", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, probe := range report.Probes {
					fmt.Fprintln(out, probeLine(probe, colorize))
				}
			}

			if store := svc.History(); store != nil {
				runs, err := store.Recent(cmd.Context(), 1)
				if err == nil && len(runs) > 0 {
					last := runs[0]
					fmt.Fprintln(out)
					for _, line := range renderSectionHeader("Last load", colorize) {
						fmt.Fprintln(out, line)
					}
					msg := fmt.Sprintf("%s via %s, %d scripts, %s ago", last.Outcome, last.Transport, last.ScriptCount, time.Since(last.FinishedAt).Round(time.Second))
					fmt.Fprintln(out, renderStatusLine("Outcome", runOutcomeKind(last.Outcome), msg, colorize))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status report as JSON")
	return cmd
}
