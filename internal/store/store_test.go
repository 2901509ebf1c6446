package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/config"
	"github.com/AutonomosCdM/first-court-sub000/internal/store/jsonfile"
	"github.com/AutonomosCdM/first-court-sub000/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Export.Backend = backend
	return &cfg
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		s, err := Open(testConfig(t, config.BackendNone))
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("json", func(t *testing.T) {
		s, err := Open(testConfig(t, config.BackendJSON))
		require.NoError(t, err)
		assert.IsType(t, &jsonfile.HistoryStore{}, s)
		require.NoError(t, s.Save(ctx, "judge", nil))
		require.NoError(t, s.Close())
	})

	t.Run("sqlite in nested path", func(t *testing.T) {
		cfg := testConfig(t, config.BackendSQLite)
		cfg.Export.Path = filepath.Join(cfg.DataDir, "exports", "run.db")

		s, err := Open(cfg)
		require.NoError(t, err)
		assert.IsType(t, &sqlite.HistoryStore{}, s)
		require.NoError(t, s.Save(ctx, "judge", nil))

		ids, err := s.Agents(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"judge"}, ids)
		require.NoError(t, s.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Open(testConfig(t, "s3"))
		assert.Error(t, err)
	})
}
