package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List your jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			records, err := client.ListJobs()
			if err != nil {
				return err
			}
			if statusFilter != "" {
				filtered := records[:0]
				for _, record := range records {
					if string(record.Status) == statusFilter || humanizeStatus(record.Status) == statusFilter {
						filtered = append(filtered, record)
					}
				}
				records = filtered
			}
			if jsonOut {
				return writeJSON(cmd, records)
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No jobs found")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				completed := "-"
				if record.CompletedAt != nil {
					completed = formatTime(*record.CompletedAt)
				}
				rows = append(rows, []string{
					record.JobID,
					humanizeStatus(record.Status),
					record.Filename,
					formatTime(record.CreatedAt),
					completed,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job ID", "Status", "Filename", "Created", "Completed"},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit jobs as JSON")
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show jobs with this status")
	return cmd
}
