package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tkrause/paperclip/internal/model"
)

func statusCmd() *cobra.Command {
	var (
		userID string
		itemID string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a precision search",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if userID == "" && itemID == "" {
				return fmt.Errorf("either --user or --id is required")
			}

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			var item *model.QueueItem
			if itemID != "" {
				item, err = store.GetQueueItem(ctx, itemID)
				if err != nil {
					return err
				}
			} else {
				item, err = store.GetActiveQueueItemForUser(ctx, userID)
				if err != nil {
					return err
				}
				if item == nil {
					fmt.Printf("No active precision search for user %s\n", userID)
					return nil
				}
			}

			printQueueItem(item)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "show the user's active search")
	cmd.Flags().StringVar(&itemID, "id", "", "show a specific queue item")

	return cmd
}

func printQueueItem(item *model.QueueItem) {
	fmt.Printf("Queue item:    %s\n", item.ID)
	fmt.Printf("User:          %s\n", item.UserID)
	fmt.Printf("Status:        %s\n", item.Status)
	fmt.Printf("Scope:         %s\n", item.Scope)
	if item.TransactionID != "" {
		fmt.Printf("Transaction:   %s\n", item.TransactionID)
	}
	fmt.Printf("Triggered by:  %s (%s)\n", item.TriggeredBy, item.TriggeredByAuthor)
	fmt.Printf("Progress:      %d/%d transactions, strategy %d/%d\n",
		item.TransactionsProcessed, item.TransactionsToProcess,
		item.CurrentStrategyIndex+1, len(item.Strategies))
	fmt.Printf("Matches:       %d transactions, %d files connected\n",
		item.TransactionsWithMatches, item.TotalFilesConnected)
	if item.RetryCount > 0 || item.Status == model.StatusFailed {
		fmt.Printf("Retries:       %d/%d\n", item.RetryCount, item.MaxRetries)
	}
	if len(item.Errors) > 0 {
		fmt.Printf("Errors:        %d\n", len(item.Errors))
		for _, e := range item.Errors {
			fmt.Printf("  - ")
			if e.TransactionID != "" {
				fmt.Printf("txn %s ", e.TransactionID)
			}
			if e.StrategyID != "" {
				fmt.Printf("[%s] ", e.StrategyID)
			}
			fmt.Printf("%s\n", e.Message)
		}
	}
	fmt.Printf("Created:       %s\n", item.CreatedAt.Format("2006-01-02 15:04:05"))
	if item.CompletedAt != nil {
		fmt.Printf("Completed:     %s\n", item.CompletedAt.Format("2006-01-02 15:04:05"))
	}
}
