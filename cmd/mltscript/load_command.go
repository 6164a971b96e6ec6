package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mltscript/internal/ingest"
	"mltscript/internal/scripts"
)

func newLoadCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var showScenes bool
	var strict bool

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Fetch the sheet and print the scripts it contains",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := ctx.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Dispose()

			result := svc.LoadScripts(cmd.Context())
			if asJSON {
				if err := writeJSON(cmd, result); err != nil {
					return err
				}
			} else {
				printLoadResult(cmd, result, showScenes)
			}
			if strict && result.Outcome == ingest.OutcomeFailure {
				return errors.New(result.Summary())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVar(&showScenes, "scenes", false, "List every scene under its script")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when no transport could read the sheet")
	return cmd
}

func printLoadResult(cmd *cobra.Command, result ingest.Result, showScenes bool) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintln(out, renderStatusLine("Load", outcomeKind(result.Outcome), result.Summary(), colorize))
	for _, line := range diagnosticLines(result.Diagnostics, colorize) {
		fmt.Fprintln(out, line)
	}
	if len(result.Scripts) == 0 {
		return
	}

	rows := make([][]string, 0, len(result.Scripts))
	for i, s := range result.Scripts {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			s.Title,
			strconv.Itoa(len(s.Scenes)),
			s.TotalDuration,
			strings.Join(s.Tags, ", "),
		})
	}
	fmt.Fprintln(out, renderTable(tableSpec{
		Headers: []string{"#", "Script", "Scenes", "Duration", "Tags"},
		Aligns:  []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft},
		Widths:  []int{0, 40, 0, 0, 40},
	}, rows))

	if !showScenes {
		return
	}
	for _, s := range result.Scripts {
		fmt.Fprintln(out, renderTable(sceneTableSpec(s), sceneRows(s)))
	}
}

func sceneTableSpec(s scripts.Script) tableSpec {
	return tableSpec{
		Title:   s.Title,
		Headers: []string{"#", "Time", "Speaker", "Content", "Notes"},
		Aligns:  []columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft},
		Widths:  []int{0, 0, 20, 60, 30},
	}
}

func sceneRows(s scripts.Script) [][]string {
	rows := make([][]string, 0, len(s.Scenes))
	for _, scene := range s.Scenes {
		rows = append(rows, []string{
			strconv.Itoa(scene.SceneNumber),
			scene.TimestampString,
			scene.Speaker,
			scene.Content,
			scene.Notes,
		})
	}
	return rows
}
