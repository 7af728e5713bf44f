package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(Migrations, "*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"00001_users.sql",
		"00002_refresh_tokens.sql",
		"00003_files.sql",
		"00004_shares.sql",
	}, names)

	for _, n := range names {
		b, err := fs.ReadFile(Migrations, n)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(b), "-- +goose Up"), n)
		assert.True(t, strings.Contains(string(b), "-- +goose Down"), n)
	}
}
