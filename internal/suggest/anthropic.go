package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tkrause/paperclip/internal/common"
	"github.com/tkrause/paperclip/internal/service"
)

const defaultModel = "claude-3-5-haiku-latest"

const systemPrompt = "You generate short search queries for locating receipt " +
	"documents in a mailbox. Respond only with a JSON array of query strings, " +
	"most promising first."

// anthropicClient implements Client against the Anthropic API.
type anthropicClient struct {
	client      anthropic.Client
	model       string
	timeout     time.Duration
	maxTokens   int
	temperature float64
}

// newAnthropicClient creates a new Anthropic-backed suggestion client.
func newAnthropicClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}

	return &anthropicClient{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       model,
		timeout:     timeout,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Suggest asks the model for ranked search queries.
func (c *anthropicClient) Suggest(ctx context.Context, txn TransactionSummary, partner *PartnerSummary, maxQueries int) ([]string, error) {
	if maxQueries <= 0 {
		maxQueries = 3
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var message *anthropic.Message
	err := common.WithRetry(ctx, func() error {
		var reqErr error
		message, reqErr = c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: int64(c.maxTokens),
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(c.buildPrompt(txn, partner, maxQueries))),
			},
		})
		return reqErr
	}, service.RetryOptions{MaxAttempts: 2, InitialDelay: 500 * time.Millisecond})
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return parseQueries(block.Text, maxQueries)
		}
	}

	return nil, fmt.Errorf("no text content in anthropic response")
}

func (c *anthropicClient) buildPrompt(txn TransactionSummary, partner *PartnerSummary, maxQueries int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Transaction:\n")
	fmt.Fprintf(&b, "- booking text: %s\n", txn.Name)
	if txn.Description != "" {
		fmt.Fprintf(&b, "- description: %s\n", txn.Description)
	}
	if txn.Reference != "" {
		fmt.Fprintf(&b, "- reference: %s\n", txn.Reference)
	}
	fmt.Fprintf(&b, "- amount: %.2f %s\n", txn.Amount, txn.Currency)
	fmt.Fprintf(&b, "- date: %s\n", txn.Date.Format("2006-01-02"))

	if partner != nil {
		fmt.Fprintf(&b, "Counterparty:\n")
		fmt.Fprintf(&b, "- name: %s\n", partner.Name)
		if partner.Website != "" {
			fmt.Fprintf(&b, "- website: %s\n", partner.Website)
		}
		if len(partner.Domains) > 0 {
			fmt.Fprintf(&b, "- email domains: %s\n", strings.Join(partner.Domains, ", "))
		}
	}

	fmt.Fprintf(&b, "\nReturn at most %d queries.", maxQueries)

	return b.String()
}

// parseQueries extracts the JSON array of query strings, tolerating
// surrounding prose or code fences.
func parseQueries(content string, maxQueries int) ([]string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var queries []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &queries); err != nil {
		return nil, fmt.Errorf("failed to parse suggestion response: %w", err)
	}

	cleaned := make([]string, 0, len(queries))
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			cleaned = append(cleaned, q)
		}
		if len(cleaned) == maxQueries {
			break
		}
	}

	return cleaned, nil
}
