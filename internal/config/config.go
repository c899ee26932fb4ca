// Package config implements the exporter's layered option resolution:
// defaults, configuration file, environment, and explicit option maps, with
// strict unknown-key rejection.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/aimonitor-exporter/internal/bytesize"
)

// EnvInstrumentationKey is the environment variable consulted for the
// instrumentation key when Options does not carry one. It is read once at
// construction, never at transmit time.
const EnvInstrumentationKey = "APPINSIGHTS_INSTRUMENTATIONKEY"

// ErrUnknownOption is returned (wrapped) when an option map or config file
// carries a key this package does not recognize.
var ErrUnknownOption = errors.New("config: unknown option")

// Options is the recognized exporter configuration.
//
// Configuration sources:
//   - Load fills Options from a YAML file over the defaults. An AIMONITOR_*
//     environment variable overrides a key only when the file also sets
//     that key; with no file, no AIMONITOR_* variable is read.
//   - FromMap fills Options from an option map over the defaults.
//   - In both, an empty instrumentation key is taken from
//     APPINSIGHTS_INSTRUMENTATIONKEY, so a key set in the file or map wins
//     over that variable.
type Options struct {
	// InstrumentationKey identifies the tenant at the ingestion service.
	// Format: GUID (8-4-4-4-12 hex). Required to transmit; defaults from
	// the APPINSIGHTS_INSTRUMENTATIONKEY environment variable.
	InstrumentationKey string `mapstructure:"instrumentation_key" validate:"omitempty,uuid" yaml:"instrumentation_key"`

	// Endpoint is the ingestion endpoint URL. Empty means the Application
	// Insights default (https://dc.services.visualstudio.com/v2/track).
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url" yaml:"endpoint"`

	// Timeout bounds each HTTP request to the ingestion endpoint.
	// Plain numbers in config files are interpreted as seconds.
	Timeout time.Duration `mapstructure:"timeout" validate:"omitempty,gt=0" yaml:"timeout"`

	// StoragePath is the spool directory shared by exporters.
	StoragePath string `mapstructure:"storage_path" yaml:"storage_path"`

	// StorageMaxSize bounds the total size of committed blobs.
	// Supports human-readable formats: "50MB", "1Gi", or plain byte counts.
	StorageMaxSize bytesize.ByteSize `mapstructure:"storage_max_size" yaml:"storage_max_size,omitempty"`

	// StorageMaintenancePeriod is the interval between maintenance sweeps.
	StorageMaintenancePeriod time.Duration `mapstructure:"storage_maintenance_period" validate:"omitempty,gt=0" yaml:"storage_maintenance_period"`

	// StorageRetentionPeriod is how long a blob may live before eviction.
	StorageRetentionPeriod time.Duration `mapstructure:"storage_retention_period" validate:"omitempty,gt=0" yaml:"storage_retention_period"`

	// Proxies maps URL scheme to proxy URL for the HTTP client.
	Proxies map[string]string `mapstructure:"proxies" yaml:"proxies,omitempty"`

	// MinimumRetryInterval is the backoff floor between drain attempts
	// after a whole-batch retryable failure.
	MinimumRetryInterval time.Duration `mapstructure:"minimum_retry_interval" validate:"omitempty,gt=0" yaml:"minimum_retry_interval"`

	// Logging controls the exporter's own diagnostic log output.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics controls whether Prometheus metrics are collected.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls diagnostic logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig configures Prometheus metrics collection.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port a host application should serve /metrics on
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads options from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string skips the file layer)
//
// Returns:
//   - *Options: Loaded and validated options
//   - error: Loading or validation error; unknown keys in the file wrap
//     ErrUnknownOption
func Load(configPath string) (*Options, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v, configPath)
	if err != nil {
		return nil, err
	}

	opts := DefaultOptions()
	if configFileFound {
		// UnmarshalExact rejects keys that do not map to a known Options
		// field, satisfying the "unknown option names MUST cause
		// construction to fail" contract for the file layer too.
		if err := v.UnmarshalExact(opts, viper.DecodeHook(configDecodeHooks())); err != nil {
			if strings.Contains(err.Error(), "invalid keys") {
				return nil, fmt.Errorf("%w: %v", ErrUnknownOption, err)
			}
			return nil, fmt.Errorf("config: unmarshal: %w", err)
		}
	}

	ApplyDefaults(opts)

	if err := Validate(opts); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return opts, nil
}

// FromMap builds Options from a raw option map, the programmatic analogue of
// keyword construction. Unknown keys are a hard failure wrapping
// ErrUnknownOption.
func FromMap(raw map[string]any) (*Options, error) {
	opts := DefaultOptions()

	dc := &mapstructure.DecoderConfig{
		Result:      opts,
		DecodeHook:  configDecodeHooks(),
		ErrorUnused: true,
	}
	dec, err := mapstructure.NewDecoder(dc)
	if err != nil {
		return nil, fmt.Errorf("config: decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		if strings.Contains(err.Error(), "invalid keys") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownOption, err)
		}
		return nil, fmt.Errorf("config: decode options: %w", err)
	}

	ApplyDefaults(opts)

	if err := Validate(opts); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return opts, nil
}

// Save writes the options to path in YAML form, in the same shape Load
// reads back: durations as Go duration strings, sizes as byte counts.
func Save(opts *Options, path string) error {
	doc := map[string]any{
		"instrumentation_key":        opts.InstrumentationKey,
		"endpoint":                   opts.Endpoint,
		"timeout":                    opts.Timeout.String(),
		"storage_path":               opts.StoragePath,
		"storage_max_size":           opts.StorageMaxSize.Uint64(),
		"storage_maintenance_period": opts.StorageMaintenancePeriod.String(),
		"storage_retention_period":   opts.StorageRetentionPeriod.String(),
		"minimum_retry_interval":     opts.MinimumRetryInterval.String(),
		"logging": map[string]any{
			"level":  opts.Logging.Level,
			"format": opts.Logging.Format,
			"output": opts.Logging.Output,
		},
		"metrics": map[string]any{
			"enabled": opts.Metrics.Enabled,
			"port":    opts.Metrics.Port,
		},
	}
	if len(opts.Proxies) > 0 {
		doc["proxies"] = opts.Proxies
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the AIMONITOR_ prefix and underscores
	// Example: AIMONITOR_STORAGE_PATH=/var/spool/aimonitor
	v.SetEnvPrefix("AIMONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
}

// readConfigFile reads the configuration file if one was specified and
// exists. Returns (fileFound, error).
func readConfigFile(v *viper.Viper, configPath string) (bool, error) {
	if configPath == "" {
		return false, nil
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize so
// config files can use human-readable sizes like "50MB", "1Gi", or plain
// byte counts.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings and numbers to time.Duration. Strings
// use Go duration syntax ("30s", "5m"); bare numbers are interpreted as
// seconds, matching the wire option contract (timeout, retention, and
// maintenance periods are second counts).
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}
