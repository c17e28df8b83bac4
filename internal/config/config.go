package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the bootstrapper. Every knob has a
// static default and can be overridden by YAML file or FWDBOOT_* env var;
// the one value deliberately NOT here is the bind port, which must come from
// the PORT env var at launch time (see launch package).
type Config struct {
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Install   InstallConfig   `mapstructure:"install"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Migrate   MigrateConfig   `mapstructure:"migrate"`
	Launch    LaunchConfig    `mapstructure:"launch"`
	Preflight PreflightConfig `mapstructure:"preflight"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type RuntimeConfig struct {
	// Candidates is the ordered interpreter probe list; first hit wins.
	Candidates []string `mapstructure:"candidates"`
}

type InstallConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	Manifest       string        `mapstructure:"manifest"`
	CorePackages   []string      `mapstructure:"core_packages"`
	SystemPackages []string      `mapstructure:"system_packages"`
}

type PathsConfig struct {
	UploadDir    string `mapstructure:"upload_dir"`
	TmpUploadDir string `mapstructure:"tmp_upload_dir"`
	Mode         uint32 `mapstructure:"mode"`
}

type MigrateConfig struct {
	Tool    string        `mapstructure:"tool"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LaunchConfig struct {
	Module    string        `mapstructure:"module"`
	Host      string        `mapstructure:"host"`
	Workers   int           `mapstructure:"workers"`
	KeepAlive time.Duration `mapstructure:"keep_alive"`
	LogLevel  string        `mapstructure:"log_level"`
}

type PreflightConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
	// PostgresURL / RedisURL fall back to the platform-injected DATABASE_URL
	// and REDIS_URL env vars when empty (see cmd wiring).
	PostgresURL string `mapstructure:"postgres_url"`
	RedisURL    string `mapstructure:"redis_url"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the FWDBOOT_ prefix (e.g. FWDBOOT_LAUNCH_WORKERS).
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("FWDBOOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("runtime.candidates", []string{"python3.11", "python3.10", "python3", "python"})

	v.SetDefault("install.max_attempts", 3)
	v.SetDefault("install.attempt_timeout", 5*time.Minute)
	v.SetDefault("install.retry_backoff", 2*time.Second)
	v.SetDefault("install.manifest", "requirements.txt")
	v.SetDefault("install.core_packages", []string{})
	v.SetDefault("install.system_packages", []string{})

	v.SetDefault("paths.upload_dir", "uploads")
	v.SetDefault("paths.tmp_upload_dir", "/tmp/uploads")
	v.SetDefault("paths.mode", 0o755)

	v.SetDefault("migrate.tool", "alembic")
	v.SetDefault("migrate.args", []string{"upgrade", "head"})
	v.SetDefault("migrate.timeout", 2*time.Minute)

	v.SetDefault("launch.module", "app.main:app")
	v.SetDefault("launch.host", "0.0.0.0")
	// Single worker suits the resource-constrained tiers this targets; bump
	// via FWDBOOT_LAUNCH_WORKERS on larger instances.
	v.SetDefault("launch.workers", 1)
	v.SetDefault("launch.keep_alive", 65*time.Second)
	v.SetDefault("launch.log_level", "info")

	v.SetDefault("preflight.enabled", true)
	v.SetDefault("preflight.timeout", 10*time.Second)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "forwarder-bootstrap")
	v.SetDefault("telemetry.log_level", "info")
}

func validate(cfg *Config) error {
	if len(cfg.Runtime.Candidates) == 0 {
		return fmt.Errorf("runtime.candidates must not be empty")
	}
	if cfg.Install.MaxAttempts < 1 {
		return fmt.Errorf("install.max_attempts must be >= 1, got %d", cfg.Install.MaxAttempts)
	}
	if cfg.Install.AttemptTimeout <= 0 {
		return fmt.Errorf("install.attempt_timeout must be > 0, got %s", cfg.Install.AttemptTimeout)
	}
	if cfg.Launch.Workers < 1 {
		return fmt.Errorf("launch.workers must be >= 1, got %d", cfg.Launch.Workers)
	}
	return nil
}
