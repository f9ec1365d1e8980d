package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show daemon and pipeline health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			health, err := client.Health()
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, health)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			runningKind := statusError
			if health.Running {
				runningKind = statusOK
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", runningKind, yesNo(health.Running), colorize))

			names := make([]string, 0, len(health.Steps))
			for name := range health.Steps {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				step := health.Steps[name]
				kind := statusError
				message := step.Detail
				if step.Ready {
					kind = statusOK
					message = "ready"
				}
				fmt.Fprintln(out, renderStatusLine(name, kind, message, colorize))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit health as JSON")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
