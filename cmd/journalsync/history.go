package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/openmined/journalsync/internal/sync"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	var files bool

	cmd := &cobra.Command{
		Use:     "history",
		Short:   "List recent pushes",
		Args:    cobra.NoArgs,
		PreRunE: a.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			journal := sync.NewPushJournal(a.ws.JournalPath)
			if err := journal.Open(); err != nil {
				return err
			}
			defer journal.Close()

			runs, err := journal.Runs(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no pushes recorded")
				return nil
			}

			for _, run := range runs {
				fmt.Fprintf(out, "%s  %-16s %-11s %-8s %d uploaded, %d skipped, %s, %d errors\n",
					shortID(run.ID),
					humanize.Time(run.StartedAt),
					run.Mode,
					statusLabel(run.Status),
					run.Uploaded,
					run.Skipped,
					humanize.Bytes(uint64(run.Bytes)),
					run.Errors,
				)
				if !files {
					continue
				}
				records, err := journal.Files(run.ID)
				if err != nil {
					return err
				}
				for _, f := range records {
					line := fmt.Sprintf("    %s %s %s", f.Status, f.Key, humanize.Bytes(uint64(f.Size)))
					if f.Error != "" {
						line += ": " + f.Error
					}
					fmt.Fprintln(out, line)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of pushes to show")
	cmd.Flags().BoolVar(&files, "files", false, "Show the outcome of every file")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func statusLabel(status string) string {
	switch status {
	case sync.RunStatusOK:
		return green(status)
	case sync.RunStatusFailed, sync.RunStatusPartial:
		return red(status)
	default:
		return cyan(status)
	}
}
