package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/aimonitor-exporter/internal/bytesize"
)

// Default option values.
const (
	// DefaultTimeout bounds each HTTP request to the ingestion endpoint.
	DefaultTimeout = 10 * time.Second

	// DefaultStorageMaxSize caps the spool directory at 50 MiB.
	DefaultStorageMaxSize = bytesize.ByteSize(50 * 1024 * 1024)

	// DefaultStorageMaintenancePeriod is the interval between sweeps.
	DefaultStorageMaintenancePeriod = 60 * time.Second

	// DefaultStorageRetentionPeriod is how long a blob may live unspooled.
	DefaultStorageRetentionPeriod = 7 * 24 * time.Hour

	// DefaultMinimumRetryInterval is the backoff floor between drain
	// attempts after a whole-batch retryable failure.
	DefaultMinimumRetryInterval = 60 * time.Second

	// DefaultMetricsPort is the port a host application should serve
	// /metrics on when metrics are enabled.
	DefaultMetricsPort = 9090
)

// DefaultOptions returns Options populated with defaults. The
// instrumentation key is resolved from the environment here, at
// construction, never at transmit time.
func DefaultOptions() *Options {
	opts := &Options{}
	ApplyDefaults(opts)
	return opts
}

// DefaultStoragePath returns the default spool directory: the fixed
// subdirectory "aimonitor-exporter" of the system temp directory. The name
// does not depend on the user, so every exporter on the host that uses the
// default shares it and cross-process leasing applies.
func DefaultStoragePath() string {
	return filepath.Join(os.TempDir(), "aimonitor-exporter")
}

// ApplyDefaults sets default values for any unspecified option fields.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(opts *Options) {
	if opts.InstrumentationKey == "" {
		opts.InstrumentationKey = os.Getenv(EnvInstrumentationKey)
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.StoragePath == "" {
		opts.StoragePath = DefaultStoragePath()
	}
	if opts.StorageMaxSize == 0 {
		opts.StorageMaxSize = DefaultStorageMaxSize
	}
	if opts.StorageMaintenancePeriod == 0 {
		opts.StorageMaintenancePeriod = DefaultStorageMaintenancePeriod
	}
	if opts.StorageRetentionPeriod == 0 {
		opts.StorageRetentionPeriod = DefaultStorageRetentionPeriod
	}
	if opts.MinimumRetryInterval == 0 {
		opts.MinimumRetryInterval = DefaultMinimumRetryInterval
	}

	applyLoggingDefaults(&opts.Logging)
	applyMetricsDefaults(&opts.Metrics)

	// Note: Endpoint deliberately has no default here; the transmitter
	// substitutes the Application Insights ingestion default when empty.
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in)
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}
