package db

import (
	"io/fs"
	"strings"
	"testing"

	"typestake/internal/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreGooseFiles(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_duel_results.sql", "002_duel_records.sql", "003_audit_logs.sql"}, files)

	for _, name := range files {
		body, err := fs.ReadFile(migrations.FS, name)
		require.NoError(t, err)
		text := string(body)
		assert.True(t, strings.HasPrefix(text, "-- +goose Up\n"), name)
		assert.Contains(t, text, "-- +goose Down\n", name)
	}
}
