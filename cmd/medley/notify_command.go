package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"medley/internal/resolver"
)

// newNotifyCommand reports an analysis outcome for jobs started with the
// manual invoker, where an external analyzer replaces the managed service.
func newNotifyCommand(ctx *commandContext) *cobra.Command {
	var failed bool
	var message string

	cmd := &cobra.Command{
		Use:   "notify <operation-id>",
		Short: "Report an analysis outcome for a pending operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			n := resolver.Notification{
				OperationID:  args[0],
				Succeeded:    !failed,
				ErrorMessage: message,
			}
			if err := client.Notify(n); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Notification delivered for %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "Report the operation as failed")
	cmd.Flags().StringVar(&message, "message", "", "Failure detail to attach")
	return cmd
}
