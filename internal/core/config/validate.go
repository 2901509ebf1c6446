package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// Validate checks the values Load needs to hand back a usable config.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if c.DataDir == "" {
		errs = errs.Append("data_dir", fmt.Errorf("data directory cannot be empty"))
	}
	if c.Agents.RequestTTL < 0 {
		errs = errs.Append("agents.request_ttl", fmt.Errorf("must not be negative"))
	}
	if c.History.MaxEntries < 0 {
		errs = errs.Append("history.max_entries", fmt.Errorf("must not be negative"))
	}
	if !isValidBackend(c.Export.Backend) {
		errs = errs.Append("export.backend", fmt.Errorf("invalid backend %q (use %s, %s or %s)", c.Export.Backend, BackendJSON, BackendSQLite, BackendNone))
	}
	if c.Export.IntervalSteps < 0 {
		errs = errs.Append("export.interval_steps", fmt.Errorf("must not be negative"))
	}
	if !isValidFormat(c.Report.Format) {
		errs = errs.Append("report.format", fmt.Errorf("invalid format %q (use %s or %s)", c.Report.Format, FormatText, FormatJSON))
	}

	return errs.ToError()
}

// ValidateDeep performs comprehensive validation of the configuration.
// Unlike Validate(), this also checks file access for the config file,
// the data directory and the export target.
func (c *Config) ValidateDeep(configPath string) error {
	var errs criterio.FieldErrorsBuilder

	if err := c.Validate(); err != nil {
		var fieldErrs criterio.FieldErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs = errs.Append(fe.Field, fe.Err)
		}
	}

	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil {
			if info.IsDir() {
				errs = errs.Append("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
			}
		} else if !os.IsNotExist(err) {
			errs = errs.Append("config_file", fmt.Errorf("cannot access %s: %w", configPath, err))
		}
	}

	if c.DataDir != "" {
		if info, err := os.Stat(c.DataDir); err == nil {
			if !info.IsDir() {
				errs = errs.Append("data_dir", fmt.Errorf("%s exists but is not a directory", c.DataDir))
			}
		} else if !os.IsNotExist(err) {
			errs = errs.Append("data_dir", fmt.Errorf("cannot access %s: %w", c.DataDir, err))
		}
	}

	switch c.Export.Backend {
	case BackendJSON:
		if info, err := os.Stat(c.ExportPath()); err == nil && !info.IsDir() {
			errs = errs.Append("export.path", fmt.Errorf("%s exists but is not a directory", c.ExportPath()))
		}
	case BackendSQLite:
		if info, err := os.Stat(c.ExportPath()); err == nil && info.IsDir() {
			errs = errs.Append("export.path", fmt.Errorf("%s is a directory, not a database file", c.ExportPath()))
		}
		if info, err := os.Stat(filepath.Dir(c.ExportPath())); err == nil && !info.IsDir() {
			errs = errs.Append("export.path", fmt.Errorf("parent of %s is not a directory", c.ExportPath()))
		}
	}

	return errs.ToError()
}

// Warnings returns settings that are accepted but have no effect.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Export.Compress && c.Export.Backend != BackendJSON {
		warnings = append(warnings, ValidationWarning{
			Category: "Export",
			Item:     "compress",
			Message:  fmt.Sprintf("compression only applies to the %s backend", BackendJSON),
		})
	}
	if c.Export.Backend == BackendNone && c.Export.IntervalSteps > 0 {
		warnings = append(warnings, ValidationWarning{
			Category: "Export",
			Item:     "interval_steps",
			Message:  "export is disabled; interval_steps is ignored",
		})
	}
	if c.Export.Backend == BackendNone && c.Export.Path != "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Export",
			Item:     "path",
			Message:  "export is disabled; path is ignored",
		})
	}

	return warnings
}
