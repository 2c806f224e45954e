package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/garana/filededup/internal/engine"
)

func newRecoverCmd(stdout io.Writer) *cobra.Command {
	var (
		journalPath string
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Repair merges left unfinished by an interrupted run",
		Long: `recover replays the journal written by a previous run with --journal.
For every pending entry the original path is restored from its scratch
copy when it is missing, or the redundant scratch copy is removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if journalPath == "" {
				return errors.New("--journal is required")
			}
			if _, err := os.Stat(journalPath); err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			j, err := engine.OpenJournal(journalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			outcomes, err := engine.Recover(ctx, j, dryRun, logger)
			failed := printOutcomes(stdout, outcomes)
			if err != nil {
				return err
			}
			if failed > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&journalPath, "journal", "", "journal database written by a previous run")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "report what would be repaired without changing anything")
	return cmd
}

func printOutcomes(w io.Writer, outcomes []engine.RecoverOutcome) int {
	failed := 0
	for _, o := range outcomes {
		switch o.Action {
		case engine.Failed:
			failed++
			fmt.Fprintf(w, "%s: %s: %v\n", o.Action, o.Entry.Original, o.Err)
		case engine.Restored:
			fmt.Fprintf(w, "%s: %s <- %s\n", o.Action, o.Entry.Original, o.Entry.Scratch)
		default:
			fmt.Fprintf(w, "%s: %s\n", o.Action, o.Entry.Scratch)
		}
	}
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "journal is empty")
	}
	return failed
}
