package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tkrause/paperclip/internal/engine"
	"github.com/tkrause/paperclip/internal/schedule"
	"github.com/tkrause/paperclip/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger endpoint, the worker and the schedulers",
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

			dispatcher := engine.NewDispatcher(store)
			runner := engine.NewRunner(store, suggester, runnerConfig())

			scheduler, err := schedule.New(store, dispatcher, runner, schedule.Config{
				RetryCron:     viper.GetString("schedule.retry_cron"),
				StaleAfter:    staleAfter(),
				SweepInterval: viper.GetDuration("schedule.sweep_interval"),
			})
			if err != nil {
				return err
			}
			go scheduler.Run(ctx)

			// Poll for pending work alongside the event triggers so
			// manually inserted items are picked up too.
			go func() {
				ticker := time.NewTicker(pollInterval())
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
					}
					if _, err := runner.ProcessPending(ctx, 0); err != nil && ctx.Err() == nil {
						slog.Error("Worker pass failed", "error", err)
					}
				}
			}()

			addr := viper.GetString("server.addr")
			if addr == "" {
				addr = ":8080"
			}

			srv := server.New(addr, dispatcher, store)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default :8080)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func pollInterval() time.Duration {
	if interval := viper.GetDuration("worker.poll_interval"); interval > 0 {
		return interval
	}
	return 5 * time.Second
}
