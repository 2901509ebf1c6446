package doctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/config"
	"github.com/hay-kot/criterio"
)

// ConfigCheck validates the loaded configuration and its paths.
type ConfigCheck struct {
	config     *config.Config
	configPath string
}

func NewConfigCheck(cfg *config.Config, configPath string) *ConfigCheck {
	return &ConfigCheck{config: cfg, configPath: configPath}
}

func (c *ConfigCheck) Name() string {
	return "Configuration"
}

func (c *ConfigCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	if c.config == nil {
		result.add("Config loaded", StatusFail, "configuration not loaded")
		return result
	}

	if err := c.config.ValidateDeep(c.configPath); err != nil {
		var fieldErrs criterio.FieldErrors
		if !errors.As(err, &fieldErrs) {
			fieldErrs = criterio.FieldErrors{{Field: "validation", Err: err}}
		}
		for _, fe := range fieldErrs {
			result.add(fe.Field, StatusFail, fe.Err.Error())
		}
	} else {
		detail := c.config.Export.Backend
		if path := c.config.ExportPath(); path != "" {
			detail = fmt.Sprintf("%s at %s", detail, path)
		}
		result.add("Config valid", StatusPass, detail)
	}

	for _, w := range c.config.Warnings() {
		label := w.Category
		if w.Item != "" {
			label += " (" + w.Item + ")"
		}
		result.add(label, StatusWarn, w.Message)
	}

	return result
}
