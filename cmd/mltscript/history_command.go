package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mltscript/internal/history"
	"mltscript/internal/ingest"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent ingestion runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			svc, _, err := ctx.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Dispose()

			store := svc.History()
			if store == nil {
				return errors.New("ingestion history is disabled or unavailable (see [history] in the config)")
			}
			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}
			if asJSON {
				if runs == nil {
					runs = []history.Run{}
				}
				return writeJSON(cmd, runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No ingestion runs recorded yet")
				return nil
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				Headers: []string{"Started", "Outcome", "Transport", "GID", "Rows", "Scripts", "Scenes", "Took", "Warnings"},
				Aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
			}, historyRows(runs)))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print runs as JSON")
	return cmd
}

func historyRows(runs []history.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Outcome,
			run.Transport,
			run.GID,
			fmt.Sprintf("%d/%d", run.RowsKept, run.RowsSeen),
			strconv.Itoa(run.ScriptCount),
			strconv.Itoa(run.SceneCount),
			run.Duration().Round(time.Millisecond).String(),
			strconv.Itoa(len(run.Diagnostics)),
		})
	}
	return rows
}

func runOutcomeKind(outcome string) statusKind {
	return outcomeKind(ingest.Outcome(outcome))
}
