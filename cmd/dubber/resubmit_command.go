package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"dubber/internal/queue"
)

func newResubmitCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "resubmit JOB_ID",
		Short: "Queue a fresh job from a failed one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			var job apiJob
			err := ctx.apiPost("/api/jobs/"+id+"/resubmit", nil, &job)
			if err == nil {
				return printResubmitted(cmd, id, job, jsonOutput)
			}
			if !errors.Is(err, errDaemonUnreachable) {
				return err
			}

			return ctx.withStore(func(store *queue.Store) error {
				created, err := store.Resubmit(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printResubmitted(cmd, id, apiJob{
					ID:             created.ID,
					SourceAsset:    created.SourceAsset,
					TargetLanguage: created.TargetLanguage,
					Status:         string(created.Status),
				}, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the created job as JSON")
	return cmd
}

func printResubmitted(cmd *cobra.Command, originalID string, job apiJob, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(cmd, job)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Resubmitted %s as new job %s\n", originalID, job.ID)
	return nil
}
