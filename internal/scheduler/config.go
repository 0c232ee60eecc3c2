package scheduler

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/robfig/cron/v3"
)

// Config holds the schedules and sweep limits.
type Config struct {
	Timezone     string `yaml:"timezone"`
	ReportCron   string `yaml:"report_cron"`
	RetryCron    string `yaml:"retry_cron"`
	StaleMinutes int    `yaml:"stale_minutes"`
	BatchSize    int    `yaml:"batch_size"`
}

// DefaultConfig: weekly report Monday 09:00, sweep every 15 minutes, UTC.
func DefaultConfig() Config {
	return Config{
		Timezone:     "UTC",
		ReportCron:   "0 9 * * 1",
		RetryCron:    "*/15 * * * *",
		StaleMinutes: 30,
		BatchSize:    20,
	}
}

// Validate validates the scheduler configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timezone, validation.Required, validation.By(validTimezone)),
		validation.Field(&c.ReportCron, validation.Required, validation.By(validCron)),
		validation.Field(&c.RetryCron, validation.Required, validation.By(validCron)),
		validation.Field(&c.StaleMinutes, validation.Required, validation.Min(1)),
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
	)
}

func validTimezone(v any) error {
	_, err := time.LoadLocation(v.(string))
	return err
}

func validCron(v any) error {
	_, err := cron.ParseStandard(v.(string))
	return err
}
