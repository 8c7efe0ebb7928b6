// Package daemonconfig loads and validates plumberd's own process
// configuration (log settings, scheduler pool and queue sizes, and the
// service-graph file path), independent of
// the service-graph document (see graphconfig).
package daemonconfig

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	pkgerrors "github.com/hoohou/plumber/pkg/errors"
)

// Config is plumberd's top-level process configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" validate:"required"`
	Scheduler SchedulerConfig `yaml:"scheduler" validate:"required"`
	// GraphFile points at the service-graph document (graphconfig.Document)
	// this daemon will serve.
	GraphFile string `yaml:"graph_file" validate:"required"`
}

// LogConfig controls internal/plog's construction.
type LogConfig struct {
	Level        string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format       string `yaml:"format" validate:"omitempty,oneof=text json"`
	ReportCaller bool   `yaml:"report_caller"`
}

// SchedulerConfig mirrors scheduler.Config's fields in their yaml/validated
// form.
type SchedulerConfig struct {
	Workers        int `yaml:"workers" validate:"required,gt=0"`
	AsyncPoolSize  int `yaml:"async_pool_size" validate:"required,gt=0"`
	EqueueCapacity int `yaml:"equeue_capacity" validate:"gte=0"`
}

// Load reads, parses, and validates a daemon config file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.NewParseError(path, 0, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, pkgerrors.NewParseError(path, extractLine(err), err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return pkgerrors.NewValidationError("config", "configuration is nil", nil)
	}
	if err := validatorInstance().Struct(cfg); err != nil {
		return convertValidationError(err)
	}
	return nil
}

func convertValidationError(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return pkgerrors.NewValidationError(fe.Namespace(), fmt.Sprintf("failed on %q", fe.Tag()), err)
	}
	return pkgerrors.NewValidationError("config", err.Error(), err)
}
