package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	t.Setenv("PAPERCLIP_TEST_DIR", "/var/data")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "absolute unchanged", in: "/tmp/db.sqlite", want: "/tmp/db.sqlite"},
		{name: "tilde prefix", in: "~/data/db.sqlite", want: filepath.Join(home, "data/db.sqlite")},
		{name: "bare tilde", in: "~", want: home},
		{name: "env var", in: "$PAPERCLIP_TEST_DIR/db.sqlite", want: "/var/data/db.sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestDatabasePath(t *testing.T) {
	assert.Equal(t, "/tmp/paperclip.db", DatabasePath("/tmp/paperclip.db"))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("HOME", home)
	assert.Equal(t, filepath.Join(home, ".local/share/paperclip/paperclip.db"), DatabasePath(""))
}
