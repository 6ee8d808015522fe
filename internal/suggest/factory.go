package suggest

import (
	"fmt"
	"strings"
)

// NewClient creates a query-suggestion client based on the provided
// configuration.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "anthropic":
		return newAnthropicClient(cfg)
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported suggestion provider: %s", cfg.Provider)
	}
}
