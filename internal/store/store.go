// Package store opens the history export backend selected by the config.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/config"
	"github.com/AutonomosCdM/first-court-sub000/internal/core/history"
	"github.com/AutonomosCdM/first-court-sub000/internal/store/jsonfile"
	"github.com/AutonomosCdM/first-court-sub000/internal/store/sqlite"
)

// Open returns the configured history store. It returns a nil store and
// a nil error when export is disabled.
func Open(cfg *config.Config) (history.Store, error) {
	path := cfg.ExportPath()

	switch cfg.Export.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendJSON:
		return jsonfile.NewHistoryStore(path, cfg.Export.Compress), nil
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create export directory: %w", err)
		}
		s, err := sqlite.NewHistoryStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown export backend %q", cfg.Export.Backend)
	}
}
