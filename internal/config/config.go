package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/newthinker/confluence/internal/confluence"
	"github.com/newthinker/confluence/internal/core"
	"github.com/newthinker/confluence/internal/ensemble"
	"github.com/newthinker/confluence/internal/gate"
	"github.com/newthinker/confluence/internal/regime"
	"github.com/newthinker/confluence/internal/router"
	"github.com/spf13/viper"
)

// Config is the root configuration document
type Config struct {
	Log        LogConfig         `mapstructure:"log"`
	DSL        DSLConfig         `mapstructure:"dsl"`
	Regime     regime.Classifier `mapstructure:"regime"`
	Confluence ConfluenceConfig  `mapstructure:"confluence"`
	Gate       gate.Config       `mapstructure:"gate"`
	Ensemble   EnsembleConfig    `mapstructure:"ensemble"`
	Router     router.Config     `mapstructure:"router"`
	Sinks      SinksConfig       `mapstructure:"sinks"`
	Pipeline   PipelineConfig    `mapstructure:"pipeline"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
}

// LogConfig selects the logger encoding and level
type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" default:"info" validate:"oneof=debug info warn error"`
}

// DSLConfig locates the strategy rule document
type DSLConfig struct {
	Path string `mapstructure:"path" default:"configs/strategies.yaml"`
}

// ConfluenceConfig holds the confluence score weights used by the gate
type ConfluenceConfig struct {
	Weights confluence.Weights `mapstructure:"weights"`
}

// EnsembleConfig holds the ensemble weights and toggles the playbooks
type EnsembleConfig struct {
	Weights   ensemble.Weights `mapstructure:"weights"`
	Playbooks bool             `mapstructure:"playbooks" default:"true"`
}

// SinksConfig enables the built-in sinks
type SinksConfig struct {
	Log  bool `mapstructure:"log" default:"true"`
	JSON bool `mapstructure:"json"`
}

// PipelineConfig bounds batch parallelism
type PipelineConfig struct {
	Workers int `mapstructure:"workers" default:"4" validate:"gte=1,lte=256"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled" default:"true"`
	Textfile string `mapstructure:"textfile"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their config key
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Load reads configuration from file on top of Defaults. Keys absent from
// the file keep their default; explicit zeros are kept as written.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("reading config: %w", err))
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unmarshaling config: %w", err))
	}

	return cfg, nil
}

// Defaults returns a config with every default tag applied
func Defaults() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// default tags are static; a failure here is a programming error
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return core.WrapError(core.ErrConfigInvalid, errors.New(strings.Join(msgs, "; ")))
		}
		return core.WrapError(core.ErrConfigInvalid, err)
	}

	if err := c.Confluence.Weights.Validate(); err != nil {
		return err
	}
	if err := c.Ensemble.Weights.Validate(); err != nil {
		return err
	}

	return nil
}

func fieldMessage(fe validator.FieldError) string {
	// Namespace starts with the root type name
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
