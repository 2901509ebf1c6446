package commands

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/config"
	"github.com/AutonomosCdM/first-court-sub000/internal/core/history"
	"github.com/AutonomosCdM/first-court-sub000/internal/store"
)

// ErrExportDisabled is returned by commands that read exported histories
// when the export backend is "none".
var ErrExportDisabled = errors.New("history export is disabled (export.backend: none)")

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config

	historyStore history.Store
}

// HistoryStore opens the configured export backend on first use. The
// store is nil when export is disabled.
func (f *Flags) HistoryStore() (history.Store, error) {
	if f.historyStore != nil {
		return f.historyStore, nil
	}
	s, err := store.Open(f.Config)
	if err != nil {
		return nil, err
	}
	f.historyStore = s
	return s, nil
}

// Close releases the history store if one was opened.
func (f *Flags) Close() error {
	if f.historyStore == nil {
		return nil
	}
	err := f.historyStore.Close()
	f.historyStore = nil
	return err
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "court", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "court")
}
