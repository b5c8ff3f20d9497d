// Package config loads the nexusd server configuration from environment
// variables and a YAML/TOML config file, in that order of precedence, over
// built-in defaults, layering viper and mapstructure.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/marmos91/nexus/internal/bytesize"
	"github.com/marmos91/nexus/internal/store"
)

// Config is the static configuration of a nexusd process.
//
// Dynamic configuration (which Nexuses exist, their children) is managed
// through the Control Plane API and persisted in the Topology Store,
// separate from this static server config.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (NEXUS_*) (highest priority)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// No CLI flag is bound into Config.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database configures the Topology Store's backing database.
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains Control Plane API server configuration.
	API APIConfig `mapstructure:"api" yaml:"api"`

	// LabelCache configures the badger-backed label probe cache.
	LabelCache LabelCacheConfig `mapstructure:"label_cache" yaml:"label_cache"`

	// Registry configures the Backing Device Registry backend; the one
	// selected backend serves every child URI.
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls continuous profiling via Pyroscope.
type ProfilingConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	ServerAddress   string `mapstructure:"server_address" yaml:"server_address"`
	ApplicationName string `mapstructure:"application_name" yaml:"application_name"`
}

// MetricsConfig contains Prometheus metrics server configuration.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// APIConfig contains Control Plane API server configuration.
type APIConfig struct {
	// Addr is the listen address, e.g. ":8443".
	Addr string `mapstructure:"addr" validate:"required" yaml:"addr"`

	// JWTSecret signs and verifies operator bearer tokens. Must be at
	// least 32 characters.
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32" yaml:"jwt_secret"`

	// RequestTimeout bounds how long a single API request may run.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// LabelCacheConfig configures the badger-backed label probe cache.
type LabelCacheConfig struct {
	Dir string        `mapstructure:"dir" yaml:"dir"`
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// RegistryConfig selects and configures the default Backing Device Registry
// backend.
type RegistryConfig struct {
	// DefaultBackend is one of "aio", "nvmf", "s3".
	DefaultBackend string `mapstructure:"default_backend" validate:"omitempty,oneof=aio nvmf s3" yaml:"default_backend"`

	// NvmfDefaultBlockLen/NumBlocks/Alignment seed the in-memory nvmf
	// registry's default geometry for newly created devices.
	NvmfDefaultBlockLen  bytesize.ByteSize `mapstructure:"nvmf_default_block_len" yaml:"nvmf_default_block_len"`
	NvmfDefaultNumBlocks uint64            `mapstructure:"nvmf_default_num_blocks" yaml:"nvmf_default_num_blocks"`
	NvmfDefaultAlignment bytesize.ByteSize `mapstructure:"nvmf_default_alignment" yaml:"nvmf_default_alignment"`

	// S3Region/Endpoint/ForcePathStyle/ChunkSize configure the s3 backend,
	// when selected.
	S3Region         string            `mapstructure:"s3_region" yaml:"s3_region"`
	S3Endpoint       string            `mapstructure:"s3_endpoint" yaml:"s3_endpoint"`
	S3ForcePathStyle bool              `mapstructure:"s3_force_path_style" yaml:"s3_force_path_style"`
	S3ChunkSize      bytesize.ByteSize `mapstructure:"s3_chunk_size" yaml:"s3_chunk_size"`
}

// Default returns a Config populated with development-friendly defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "INFO", Format: "text", Output: "stdout"},
		Telemetry: TelemetryConfig{
			Enabled: false, Endpoint: "localhost:4317", Insecure: true, SampleRate: 1.0,
		},
		ShutdownTimeout: 30 * time.Second,
		Database:        store.Config{Type: store.DatabaseTypeSQLite, SQLitePath: "nexus-topology.db"},
		Metrics:         MetricsConfig{Enabled: true, Port: 9090},
		API:             APIConfig{Addr: ":8443", RequestTimeout: 30 * time.Second},
		LabelCache:      LabelCacheConfig{Dir: "nexus-labelcache", TTL: 5 * time.Minute},
		Registry: RegistryConfig{
			DefaultBackend:       "nvmf",
			NvmfDefaultBlockLen:  512,
			NvmfDefaultNumBlocks: 131072,
			NvmfDefaultAlignment: 4096,
		},
	}
}

// Load reads configuration from the built-in defaults, path (if non-empty),
// and environment variables prefixed NEXUS_, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	cfg := Default()
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		byteSizeHook,
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// byteSizeHook lets bytesize.ByteSize fields accept human-readable strings
// ("64Mi", "512") as well as raw numbers.
func byteSizeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
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
	case float64:
		return bytesize.ByteSize(v), nil
	default:
		return data, nil
	}
}

// WriteSample writes a commented sample config file to path, failing if it
// already exists unless force is set.
func WriteSample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config: %q already exists (use --force to overwrite)", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %q: %w", dir, err)
		}
	}
	return os.WriteFile(path, []byte(sampleConfigYAML), 0o644)
}

const sampleConfigYAML = `# nexusd sample configuration
logging:
  level: INFO
  format: text
  output: stdout

telemetry:
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0

shutdown_timeout: 30s

database:
  type: sqlite
  sqlite_path: nexus-topology.db

metrics:
  enabled: true
  port: 9090

api:
  addr: ":8443"
  jwt_secret: "change-me-to-a-random-32-byte-value"
  request_timeout: 30s

label_cache:
  dir: nexus-labelcache
  ttl: 5m

registry:
  default_backend: nvmf
  nvmf_default_block_len: 512
  nvmf_default_num_blocks: 131072
  nvmf_default_alignment: 4096
`
