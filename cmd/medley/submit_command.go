package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"medley/internal/config"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Upload a media file and create a processing job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("inspect file %q: %w", path, err)
			}
			if info.IsDir() {
				return fmt.Errorf("%q is a directory", path)
			}

			media, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			contentType := mime.TypeByExtension(filepath.Ext(path))
			record, err := client.SubmitJob(filepath.Base(path), media, contentType)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, record)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %s created for %s\n", record.JobID, record.Filename)
			fmt.Fprintf(out, "Track progress with `medley status %s`\n", record.JobID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the created job as JSON")
	return cmd
}
