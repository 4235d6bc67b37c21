package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/openmined/journalsync/internal/sync"
)

func newPushCmd(a *app) *cobra.Command {
	var mode string
	var force bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:     "push",
		Short:   "Upload new and changed files to the remote store",
		Args:    cobra.NoArgs,
		PreRunE: a.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			pushMode, err := sync.ParsePushMode(mode)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if err := a.ws.Lock(); err != nil {
				return err
			}
			defer a.ws.Unlock()

			var journal sync.Journal
			pj := sync.NewPushJournal(a.ws.JournalPath)
			if err := pj.Open(); err != nil {
				slog.Warn("push journal unavailable", "path", a.ws.JournalPath, "error", err)
			} else {
				defer pj.Close()
				journal = pj
			}

			engine, err := a.newEngine(cmd.OutOrStdout(), journal)
			if err != nil {
				return err
			}

			result, err := engine.Push(cmd.Context(), sync.PushOptions{
				Mode:   pushMode,
				Force:  force,
				DryRun: dryRun,
			})
			if err != nil {
				return err
			}
			if result.HasErrors() {
				return fmt.Errorf("%w: %d failed", errPushIncomplete, len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVar(&mode, "mode", sync.ModeIncremental.String(), "Push mode: incremental or all")
	cmd.Flags().BoolVar(&force, "force", false, "Upload every selected file without comparing against the remote")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be uploaded without uploading")
	cmd.Flags().Int("concurrency", sync.DefaultConcurrency, "Parallel uploads (1-16)")
	return cmd
}
