package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/tkrause/paperclip/internal/engine"
)

func workerCmd() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process pending precision search jobs",
		Long: `Claims pending queue items and runs the matching pipeline over them.

Without --follow, processes the current backlog once and exits.
With --follow, keeps polling for new work until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			suggester, err := initSuggester()
			if err != nil {
				return fmt.Errorf("failed to initialize suggestion client: %w", err)
			}

			runner := engine.NewRunner(store, suggester, runnerConfig())

			if !follow {
				return processBacklog(cmd, runner)
			}

			ticker := time.NewTicker(pollInterval())
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
				if _, err := runner.ProcessPending(ctx, 0); err != nil && ctx.Err() == nil {
					slog.Error("Worker pass failed", "error", err)
				}
			}
		},
	}

	cmd.Flags().BoolVar(&follow, "follow", false, "keep polling for new work")

	return cmd
}

func processBacklog(cmd *cobra.Command, runner *engine.Runner) error {
	ctx := cmd.Context()

	items, err := runner.PendingCount(ctx)
	if err != nil {
		return err
	}
	if items == 0 {
		fmt.Println("No pending precision searches.")
		return nil
	}

	bar := progressbar.NewOptions(items,
		progressbar.OptionSetDescription("Processing searches"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	stats, err := runner.ProcessPendingWithProgress(ctx, 0, func() {
		_ = bar.Add(1)
	})
	if err != nil {
		return err
	}

	var matches, files int
	for _, s := range stats {
		matches += s.TransactionsWithMatches
		files += s.TotalFilesConnected
	}

	fmt.Printf("Processed %d search(es): %d transaction(s) matched, %d file(s) connected.\n",
		len(stats), matches, files)
	return nil
}
