package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mltscript/internal/api"
	"mltscript/internal/daemon"
	"mltscript/internal/ingest"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload the sheet on a schedule and print each result",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			hook := func(result ingest.Result) {
				label := result.FinishedAt.Local().Format("15:04:05")
				fmt.Fprintln(out, renderStatusLine(label, outcomeKind(result.Outcome), result.Summary(), colorize))
			}
			return runDaemon(cmd, ctx, schedule, false, hook)
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron spec for reloads (defaults to [watch].schedule)")
	return cmd
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var schedule string
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API for the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			if noWatch {
				schedule = "-"
			}
			return runDaemon(cmd, ctx, schedule, true, nil)
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron spec for background reloads (defaults to [watch].schedule)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Only load when the API asks for a refresh")
	return cmd
}

// runDaemon runs until SIGINT/SIGTERM. A schedule of "-" disables reloads.
func runDaemon(cmd *cobra.Command, ctx *commandContext, schedule string, serveAPI bool, hook func(ingest.Result)) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, cfg, err := ctx.openService(signalCtx)
	if err != nil {
		return err
	}
	defer svc.Dispose()
	logger := ctx.loggerFor(cfg)

	schedule = strings.TrimSpace(schedule)
	switch schedule {
	case "":
		schedule = cfg.Watch.Schedule
	case "-":
		schedule = ""
	}

	opts := []daemon.Option{daemon.WithSchedule(schedule)}
	if hook != nil {
		opts = append(opts, daemon.WithLoadHook(hook))
	}
	if serveAPI {
		opts = append(opts, daemon.WithAPIServer(api.NewServer(cfg, svc, logger)))
	}
	d, err := daemon.New(cfg, svc, logger, opts...)
	if err != nil {
		return err
	}
	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer d.Stop()

	if serveAPI {
		fmt.Fprintf(cmd.OutOrStdout(), "Serving API on http://%s (Ctrl+C to stop)\n", d.Status().APIAddress)
	}
	<-d.Done()
	return nil
}
