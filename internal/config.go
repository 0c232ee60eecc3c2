package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/stencil/internal/cache"
	"github.com/starford/stencil/internal/scheduler"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Catalog   CatalogConfig     `yaml:"catalog"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Pipeline  PipelineConfig    `yaml:"pipeline"`
	Cache     cache.Config      `yaml:"cache"`
	Scheduler SchedulerConfig   `yaml:"scheduler"`
	Alerts    AlertsConfig      `yaml:"alerts"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Catalog.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	return c.Alerts.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	LogFile  LogFile    `yaml:"log_file"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.LogFile.Validate(); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// LogFile enables a rotated JSON log file next to stdout logging.
type LogFile struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Validate validates the log file configuration.
func (c *LogFile) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
		validation.Field(&c.MaxAgeDays, validation.Min(0)),
	)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CatalogConfig holds the path to the template catalog directory.
type CatalogConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration. The catalog index and
// the job store live in separate files.
type SQLiteConfig struct {
	Path     string `yaml:"path"`
	JobsPath string `yaml:"jobs_path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.JobsPath, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// PipelineConfig points the package patch step at the host project.
// Empty paths skip the corresponding reconciliation. AutoImport imports
// every compile into the catalog.
type PipelineConfig struct {
	PackageJSONPath    string `yaml:"package_json_path"`
	TailwindConfigPath string `yaml:"tailwind_config_path"`
	AutoImport         bool   `yaml:"auto_import"`
}

// SchedulerConfig wraps the cron settings with an on/off switch.
type SchedulerConfig struct {
	Enabled          bool `yaml:"enabled"`
	scheduler.Config `yaml:",inline"`
}

// Validate validates the scheduler configuration when enabled.
func (c *SchedulerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return c.Config.Validate()
}

// AlertsConfig configures alert sinks beyond the log sink.
type AlertsConfig struct {
	SNS SNSConfig `yaml:"sns"`
}

// Validate validates the alerts configuration.
func (c *AlertsConfig) Validate() error {
	return c.SNS.Validate()
}

// SNSConfig configures the AWS SNS alert sink.
type SNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Region   string `yaml:"region"`
	TopicARN string `yaml:"topic_arn"`
}

// Validate validates the SNS configuration when enabled.
func (c *SNSConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Region, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.TopicARN, validation.When(c.Enabled, validation.Required)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			LogFile: LogFile{
				MaxSizeMB:  50,
				MaxBackups: 5,
				MaxAgeDays: 14,
			},
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Catalog: CatalogConfig{
			Path:  "./catalog",
			Watch: true,
		},
		SQLite: SQLiteConfig{
			Path:     "./stencil.db",
			JobsPath: "./stencil-jobs.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Cache: cache.DefaultConfig(),
		Scheduler: SchedulerConfig{
			Enabled: true,
			Config:  scheduler.DefaultConfig(),
		},
	}
}
