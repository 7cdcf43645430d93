package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"dubber/internal/logging"
	"dubber/internal/notifications"
	"dubber/internal/queue"
	"dubber/internal/workflow"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check daemon, database, and provider readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			var health apiHealth
			err := ctx.apiGet("/api/health", &health)
			if err == nil {
				return printHealth(cmd, health, true, jsonOutput)
			}
			if !errors.Is(err, errDaemonUnreachable) {
				return err
			}
			// Daemon down: run the same checks in-process.
			local, err := localHealth(ctx, cmd)
			if err != nil {
				return err
			}
			return printHealth(cmd, local, false, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")
	return cmd
}

func localHealth(ctx *commandContext, cmd *cobra.Command) (apiHealth, error) {
	var health apiHealth
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return health, err
	}

	err = ctx.withStore(func(store *queue.Store) error {
		db, err := store.CheckHealth(cmd.Context())
		if err != nil {
			return err
		}
		summary, err := store.Health(cmd.Context())
		if err != nil {
			return err
		}

		health.Healthy = db.Healthy
		health.Database.DBPath = db.DBPath
		health.Database.DatabaseExists = db.DatabaseExists
		health.Database.Healthy = db.Healthy
		health.Database.Error = db.Error
		health.Queue.Total = summary.Total
		health.Queue.Pending = summary.Pending
		health.Queue.Running = summary.Running
		health.Queue.Done = summary.Done
		health.Queue.Failed = summary.Failed

		manager := workflow.NewManager(cfg, store, logging.NewNop(), notifications.Noop())
		for _, h := range manager.Health(cmd.Context()) {
			health.Stages = append(health.Stages, struct {
				Name   string `json:"name"`
				Ready  bool   `json:"ready"`
				Detail string `json:"detail,omitempty"`
			}{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
			if !h.Ready {
				health.Healthy = false
			}
		}
		return nil
	})
	return health, err
}

func printHealth(cmd *cobra.Command, health apiHealth, viaDaemon, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(cmd, health)
	}

	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	if viaDaemon {
		fmt.Fprintln(out, "Daemon: running")
	} else {
		fmt.Fprintln(out, "Daemon: not running (checks performed locally)")
	}

	dbDetail := health.Database.DBPath
	if health.Database.Error != "" {
		dbDetail = health.Database.Error
	}
	fmt.Fprintln(out, renderReadiness("database", health.Database.Healthy, dbDetail, colorize))
	for _, stg := range health.Stages {
		fmt.Fprintln(out, renderReadiness(stg.Name, stg.Ready, stg.Detail, colorize))
	}

	fmt.Fprintf(out, "\nJobs: %d total, %d pending, %d running, %d done, %d failed\n",
		health.Queue.Total, health.Queue.Pending, health.Queue.Running, health.Queue.Done, health.Queue.Failed)

	if !health.Healthy {
		return errors.New("one or more health checks failed")
	}
	return nil
}
