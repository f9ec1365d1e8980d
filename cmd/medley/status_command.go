package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"medley/internal/jobs"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var showContent bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			view, err := client.GetJob(args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderStatusLine("Job", statusInfo, view.JobID, colorize))
			fmt.Fprintln(out, renderStatusLine("Status", statusKindFor(view.Status), humanizeStatus(view.Status), colorize))
			if view.Filename != "" {
				fmt.Fprintln(out, renderStatusLine("Filename", statusInfo, view.Filename, colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Created", statusInfo, formatTime(view.CreatedAt), colorize))
			if view.CompletedAt != nil {
				fmt.Fprintln(out, renderStatusLine("Completed", statusOK, formatTime(*view.CompletedAt), colorize))
				fmt.Fprintln(out, renderStatusLine("Duration", statusInfo,
					fmt.Sprintf("%.1fs", view.ProcessingTime(*view.CompletedAt)), colorize))
			}
			if view.ErrorInfo != nil {
				fmt.Fprintln(out, renderStatusLine("Error", statusError,
					fmt.Sprintf("%s (%s)", view.ErrorInfo.Message, view.ErrorInfo.Category), colorize))
			}
			if view.Content != "" && showContent {
				fmt.Fprintln(out)
				fmt.Fprintln(out, view.Content)
			} else if view.Content != "" {
				fmt.Fprintln(out, renderStatusLine("Content", statusOK,
					fmt.Sprintf("%d bytes extracted (use --content to print)", len(view.Content)), colorize))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the job as JSON")
	cmd.Flags().BoolVar(&showContent, "content", false, "Print extracted content for completed jobs")
	return cmd
}

func statusKindFor(status jobs.Status) statusKind {
	switch status {
	case jobs.StatusCompleted:
		return statusOK
	case jobs.StatusFailed:
		return statusError
	default:
		return statusInfo
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
