package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dubber/internal/language"
	"dubber/internal/queue"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var targetLanguage string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "submit SOURCE_ASSET",
		Short: "Submit a dubbing job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := strings.TrimSpace(args[0])
			if source == "" {
				return errors.New("source asset is required")
			}
			if strings.TrimSpace(targetLanguage) == "" {
				return errors.New("--language is required")
			}
			lang, err := language.Normalize(targetLanguage)
			if err != nil {
				return fmt.Errorf("%q is not a recognized language tag", targetLanguage)
			}

			var job apiJob
			err = ctx.apiPost("/api/jobs", map[string]string{
				"source_asset":    source,
				"target_language": lang,
			}, &job)
			if err == nil {
				return printSubmitted(cmd, job, jsonOutput, true)
			}
			if !errors.Is(err, errDaemonUnreachable) {
				return err
			}

			// Daemon down: persist directly, the next daemon start picks it up.
			return ctx.withStore(func(store *queue.Store) error {
				created, err := store.NewJob(cmd.Context(), source, lang)
				if err != nil {
					return err
				}
				return printSubmitted(cmd, apiJob{
					ID:             created.ID,
					SourceAsset:    created.SourceAsset,
					TargetLanguage: created.TargetLanguage,
					Status:         string(created.Status),
				}, jsonOutput, false)
			})
		},
	}

	cmd.Flags().StringVarP(&targetLanguage, "language", "l", "", "Target language tag (for example \"es\" or \"pt-BR\")")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the created job as JSON")
	return cmd
}

func printSubmitted(cmd *cobra.Command, job apiJob, jsonOutput, viaDaemon bool) error {
	if jsonOutput {
		return writeJSON(cmd, job)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s (target %s)\n", job.ID, language.Describe(job.TargetLanguage))
	if !viaDaemon {
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running; the job will start when dubberd comes up.")
	}
	return nil
}
