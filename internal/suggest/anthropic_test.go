package suggest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueries(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		want       []string
		maxQueries int
		wantErr    bool
	}{
		{
			name:       "plain array",
			content:    `["acme invoice", "hosting march"]`,
			maxQueries: 3,
			want:       []string{"acme invoice", "hosting march"},
		},
		{
			name:       "array in code fence",
			content:    "```json\n[\"acme invoice\"]\n```",
			maxQueries: 3,
			want:       []string{"acme invoice"},
		},
		{
			name:       "array with surrounding prose",
			content:    `Here are the queries: ["acme", "invoice 4711"] as requested.`,
			maxQueries: 3,
			want:       []string{"acme", "invoice 4711"},
		},
		{
			name:       "truncated to max queries",
			content:    `["a", "b", "c", "d"]`,
			maxQueries: 2,
			want:       []string{"a", "b"},
		},
		{
			name:       "blank entries dropped",
			content:    `["  ", "acme", ""]`,
			maxQueries: 3,
			want:       []string{"acme"},
		},
		{
			name:       "no array",
			content:    "I cannot help with that.",
			maxQueries: 3,
			wantErr:    true,
		},
		{
			name:       "malformed json",
			content:    `["unterminated]`,
			maxQueries: 3,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseQueries(tt.content, tt.maxQueries)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewClient(t *testing.T) {
	// Default provider requires an API key.
	_, err := NewClient(Config{})
	require.Error(t, err)

	client, err := NewClient(Config{Provider: "anthropic", APIKey: "test-key"})
	require.NoError(t, err)
	assert.NotNil(t, client)

	mock, err := NewClient(Config{Provider: "mock"})
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, mock)

	_, err = NewClient(Config{Provider: "openai"})
	require.Error(t, err)
}

func TestMockClient(t *testing.T) {
	mock := NewMockClient()
	mock.SetQueries("a", "b", "c", "d")

	queries, err := mock.Suggest(context.Background(), TransactionSummary{}, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, queries)
	assert.Equal(t, 1, mock.Calls())

	mock.SetError(assert.AnError)
	_, err = mock.Suggest(context.Background(), TransactionSummary{}, nil, 2)
	require.Error(t, err)
	assert.Equal(t, 2, mock.Calls())
}
