package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tkrause/paperclip/internal/engine"
	"github.com/tkrause/paperclip/internal/model"
)

func triggerCmd() *cobra.Command {
	var (
		userID        string
		scope         string
		transactionID string
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Enqueue a precision search for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			dispatcher := engine.NewDispatcher(store)
			result, err := dispatcher.Trigger(ctx, engine.TriggerRequest{
				UserID:        userID,
				Scope:         model.SearchScope(scope),
				TransactionID: transactionID,
				TriggeredBy:   model.TriggerManual,
				Author:        model.AuthorUser,
				AuthorUserID:  userID,
			})
			if err != nil {
				return err
			}

			if result.Created {
				fmt.Printf("Enqueued precision search %s\n", result.QueueItemID)
			} else {
				fmt.Printf("Search %s is already in flight for this user\n", result.QueueItemID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user to search for (required)")
	cmd.Flags().StringVar(&scope, "scope", string(model.ScopeAllIncomplete), "search scope (all_incomplete, single_transaction)")
	cmd.Flags().StringVar(&transactionID, "transaction", "", "transaction id (required for single_transaction scope)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
