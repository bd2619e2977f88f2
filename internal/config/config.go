package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/sharedmods/internal/observability"
)

// Introspector kinds
const (
	IntrospectorNode   = "node"
	IntrospectorStatic = "static"
	IntrospectorChain  = "chain"
)

// Config represents the bundler configuration
type Config struct {
	Project   ProjectConfig              `mapstructure:"project"`
	Bundler   BundlerConfig              `mapstructure:"bundler"`
	Storage   StorageConfig              `mapstructure:"storage"`
	Metrics   MetricsConfig              `mapstructure:"metrics"`
	Tracing   observability.TracerConfig `mapstructure:"tracing"`
	Debug     bool                       `mapstructure:"debug"`
	LogFormat string                     `mapstructure:"log_format"` // console or json
}

// ProjectConfig locates the consumer packages and the build output
type ProjectConfig struct {
	Root string `mapstructure:"root"`
	// Consumers are glob patterns of plugin and theme directories, relative to Root.
	Consumers []string `mapstructure:"consumers"`
	OutputDir string   `mapstructure:"output_dir"`
	PublicDir string   `mapstructure:"public_dir"`
}

// BundlerConfig contains the build settings
type BundlerConfig struct {
	Workers           int           `mapstructure:"workers"`
	CollapseThreshold float64       `mapstructure:"collapse_threshold"`
	Production        bool          `mapstructure:"production"`
	Rebundle          bool          `mapstructure:"rebundle"`
	NodePath          string        `mapstructure:"node_path"`
	Introspector      string        `mapstructure:"introspector"`
	Install           InstallConfig `mapstructure:"install"`
}

// InstallConfig controls the package-manager step run before a walk
type InstallConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Command string `mapstructure:"command"`
}

// StorageConfig contains artifact publishing settings
type StorageConfig struct {
	Provider    string `mapstructure:"provider"` // local or s3
	LocalPath   string `mapstructure:"local_path"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Region    string `mapstructure:"s3_region"`
	S3UseSSL    bool   `mapstructure:"s3_use_ssl"`
	Bucket      string `mapstructure:"bucket"`
	Prefix      string `mapstructure:"prefix"`
}

// MetricsConfig controls the Prometheus textfile export
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"`
}

// Load loads configuration from file and environment variables. An empty
// configFile searches the default locations.
func Load(configFile string) (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("sharedmods")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/sharedmods")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("SHAREDMODS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from the first .env file found
func loadEnvFile() error {
	for _, location := range []string{".env", ".env.local"} {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Debug().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Project defaults
	v.SetDefault("project.root", ".")
	v.SetDefault("project.consumers", []string{"plugins/*", "themes/*"})
	v.SetDefault("project.output_dir", ".sharedmods/built_modules")
	v.SetDefault("project.public_dir", "")

	// Bundler defaults
	v.SetDefault("bundler.workers", DefaultWorkers())
	v.SetDefault("bundler.collapse_threshold", 0.8)
	v.SetDefault("bundler.production", false)
	v.SetDefault("bundler.rebundle", false)
	v.SetDefault("bundler.node_path", "")
	v.SetDefault("bundler.introspector", IntrospectorChain)
	v.SetDefault("bundler.install.enabled", false)
	v.SetDefault("bundler.install.command", "pnpm install")

	// Storage defaults
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local_path", "./storage")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_use_ssl", true)
	v.SetDefault("storage.bucket", "shared-modules")
	v.SetDefault("storage.prefix", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfile", "")

	// Tracing defaults
	tracing := observability.DefaultTracerConfig()
	v.SetDefault("tracing.enabled", tracing.Enabled)
	v.SetDefault("tracing.endpoint", tracing.Endpoint)
	v.SetDefault("tracing.service_name", tracing.ServiceName)
	v.SetDefault("tracing.environment", tracing.Environment)
	v.SetDefault("tracing.sample_rate", tracing.SampleRate)
	v.SetDefault("tracing.insecure", tracing.Insecure)

	// General defaults
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "console")
}

// DefaultWorkers returns the number of physical CPU cores, or the logical
// count when that cannot be read.
func DefaultWorkers() int {
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Project.Validate(); err != nil {
		return fmt.Errorf("project configuration error: %w", err)
	}
	if err := c.Bundler.Validate(); err != nil {
		return fmt.Errorf("bundler configuration error: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage configuration error: %w", err)
	}
	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return fmt.Errorf("metrics.textfile is required when metrics are enabled")
	}
	if c.Tracing.Enabled && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be 'console' or 'json'")
	}
	return nil
}

// Validate validates project configuration
func (pc *ProjectConfig) Validate() error {
	if pc.Root == "" {
		return fmt.Errorf("root is required")
	}
	if pc.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	return nil
}

// OutputPath returns the output directory, relative paths taken from Root
func (pc *ProjectConfig) OutputPath() string {
	return pc.resolve(pc.OutputDir)
}

// PublicPath returns the public directory, or "" when none is configured
func (pc *ProjectConfig) PublicPath() string {
	if pc.PublicDir == "" {
		return ""
	}
	return pc.resolve(pc.PublicDir)
}

func (pc *ProjectConfig) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(pc.Root, p)
}

// Validate validates bundler configuration
func (bc *BundlerConfig) Validate() error {
	if bc.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if bc.CollapseThreshold <= 0 || bc.CollapseThreshold > 1 {
		return fmt.Errorf("collapse_threshold must be in (0, 1]")
	}
	switch bc.Introspector {
	case IntrospectorNode, IntrospectorStatic, IntrospectorChain:
	default:
		return fmt.Errorf("introspector must be 'node', 'static' or 'chain'")
	}
	if bc.Install.Enabled && strings.TrimSpace(bc.Install.Command) == "" {
		return fmt.Errorf("install.command is required when install is enabled")
	}
	return nil
}

// Validate validates storage configuration
func (sc *StorageConfig) Validate() error {
	if sc.Provider != "local" && sc.Provider != "s3" {
		return fmt.Errorf("storage provider must be 'local' or 's3'")
	}
	if sc.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if sc.Provider == "local" && sc.LocalPath == "" {
		return fmt.Errorf("local_path is required for local storage")
	}
	if sc.Provider == "s3" {
		if sc.S3Endpoint == "" || sc.S3AccessKey == "" || sc.S3SecretKey == "" {
			return fmt.Errorf("S3 configuration is incomplete")
		}
	}
	return nil
}
