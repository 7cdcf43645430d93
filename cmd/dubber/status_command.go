package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dubber/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [JOB_ID]",
		Short: "Show queue summary or details for one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showJob(ctx, cmd, args[0], jsonOutput)
			}
			return ctx.withStore(func(store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, stats)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStatsTable(stats))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")
	return cmd
}

func showJob(ctx *commandContext, cmd *cobra.Command, id string, jsonOutput bool) error {
	return ctx.withStore(func(store *queue.Store) error {
		job, err := store.GetByID(cmd.Context(), id)
		if err != nil {
			return err
		}
		logs, err := store.LogsForJob(cmd.Context(), id)
		if err != nil {
			return err
		}

		if jsonOutput {
			return writeJSON(cmd, map[string]any{"job": job, "logs": logs})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Job %s\n", job.ID)
		fmt.Fprintf(out, "  source:    %s\n", job.SourceAsset)
		fmt.Fprintf(out, "  language:  %s\n", job.TargetLanguage)
		fmt.Fprintf(out, "  status:    %s\n", job.Status)
		if job.Stage != "" {
			fmt.Fprintf(out, "  stage:     %s\n", job.Stage)
		}
		if job.OutputAsset != "" {
			fmt.Fprintf(out, "  output:    %s\n", job.OutputAsset)
		}
		if job.ErrorMessage != "" {
			fmt.Fprintf(out, "  error:     %s\n", job.ErrorMessage)
		}
		fmt.Fprintf(out, "  created:   %s\n", job.CreatedAt.Local().Format(time.DateTime))
		if job.CompletedAt != nil {
			fmt.Fprintf(out, "  completed: %s\n", job.CompletedAt.Local().Format(time.DateTime))
		}

		if len(logs) > 0 {
			fmt.Fprintln(out, "\nProgress:")
			for _, entry := range logs {
				fmt.Fprintf(out, "  %s  [%s] %s\n", entry.CreatedAt.Local().Format(time.TimeOnly), entry.Stage, entry.Message)
			}
		}
		return nil
	})
}
