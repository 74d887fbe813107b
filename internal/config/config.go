// Package config loads medremind settings from a YAML file, MEDREMIND_*
// environment variables and built-in defaults, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/medremind/internal/medication"
	"github.com/roach88/medremind/internal/model"
)

// EnvPrefix is prepended to every environment override, e.g. MEDREMIND_LOG_LEVEL.
const EnvPrefix = "MEDREMIND"

// Config is the top-level configuration.
type Config struct {
	Database      string              `mapstructure:"database"`
	Medications   string              `mapstructure:"medications"`
	Queue         string              `mapstructure:"queue"`
	Timezone      string              `mapstructure:"timezone"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Checkin       CheckinConfig       `mapstructure:"checkin"`
	Dismissal     DismissalConfig     `mapstructure:"dismissal"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Defaults      DefaultsConfig      `mapstructure:"defaults"`
	Log           LogConfig           `mapstructure:"log"`
}

// NotificationsConfig sizes the alert budget.
type NotificationsConfig struct {
	Cap            int `mapstructure:"cap"`
	ReservedSlots  int `mapstructure:"reserved_slots"`
	MinDays        int `mapstructure:"min_days"`
	MaxDays        int `mapstructure:"max_days"`
	TopUpThreshold int `mapstructure:"top_up_threshold"`
}

// CheckinConfig controls daily check-in alerts.
type CheckinConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Time    string `mapstructure:"time"`
	Days    int    `mapstructure:"days"`
}

// DismissalConfig holds the tolerances of the fallback dismissal strategies.
type DismissalConfig struct {
	TimeWindow     time.Duration `mapstructure:"time_window"`
	CategoryWindow time.Duration `mapstructure:"category_window"`
}

// WorkerConfig controls the maintenance loop.
type WorkerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// DefaultsConfig is the global notification settings used when a medication
// has no override.
type DefaultsConfig struct {
	TimeSensitive  bool   `mapstructure:"time_sensitive"`
	CriticalAlerts bool   `mapstructure:"critical_alerts"`
	FollowUpDelay  string `mapstructure:"follow_up_delay"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultDir returns ~/.config/medremind, or "." if the home dir is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "medremind")
}

// DefaultConfigPath returns the config file used when none is given.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	dir := DefaultDir()
	v.SetDefault("database", filepath.Join(dir, "medremind.db"))
	v.SetDefault("medications", filepath.Join(dir, "medications.yaml"))
	v.SetDefault("queue", filepath.Join(dir, "queue.yaml"))
	v.SetDefault("timezone", "Local")

	v.SetDefault("notifications.cap", 64)
	v.SetDefault("notifications.reserved_slots", 10)
	v.SetDefault("notifications.min_days", 3)
	v.SetDefault("notifications.max_days", 14)
	v.SetDefault("notifications.top_up_threshold", 3)

	v.SetDefault("checkin.enabled", true)
	v.SetDefault("checkin.time", "20:00")
	v.SetDefault("checkin.days", 7)

	v.SetDefault("dismissal.time_window", 5*time.Minute)
	v.SetDefault("dismissal.category_window", 30*time.Minute)

	v.SetDefault("worker.interval", 15*time.Minute)

	v.SetDefault("defaults.time_sensitive", false)
	v.SetDefault("defaults.critical_alerts", false)
	v.SetDefault("defaults.follow_up_delay", medication.DelayOff)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the config file at path (DefaultConfigPath if empty). A missing
// file is not an error: defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	n := c.Notifications
	if n.Cap <= 0 {
		return fmt.Errorf("notifications.cap must be positive, got %d", n.Cap)
	}
	if n.ReservedSlots < 0 || n.ReservedSlots >= n.Cap {
		return fmt.Errorf("notifications.reserved_slots must be in [0, %d), got %d", n.Cap, n.ReservedSlots)
	}
	if n.MinDays < 1 || n.MinDays > n.MaxDays {
		return fmt.Errorf("notifications.min_days (%d) must be between 1 and max_days (%d)", n.MinDays, n.MaxDays)
	}
	if n.TopUpThreshold < 0 {
		return fmt.Errorf("notifications.top_up_threshold must not be negative, got %d", n.TopUpThreshold)
	}
	if c.Checkin.Days < 0 || c.Checkin.Days > n.ReservedSlots {
		return fmt.Errorf("checkin.days (%d) must fit in reserved_slots (%d)", c.Checkin.Days, n.ReservedSlots)
	}
	if _, _, err := model.ParseClock(c.Checkin.Time); err != nil {
		return fmt.Errorf("checkin.time: %w", err)
	}
	if c.Dismissal.TimeWindow < 0 || c.Dismissal.CategoryWindow < 0 {
		return errors.New("dismissal windows must not be negative")
	}
	if c.Worker.Interval <= 0 {
		return fmt.Errorf("worker.interval must be positive, got %s", c.Worker.Interval)
	}
	if _, err := medication.ParseFollowUpDelay(c.Defaults.FollowUpDelay); err != nil {
		return fmt.Errorf("defaults.follow_up_delay: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DefaultSettings converts the defaults section into model.Settings.
// Validate must have succeeded.
func (c *Config) DefaultSettings() model.Settings {
	delay, _ := medication.ParseFollowUpDelay(c.Defaults.FollowUpDelay)
	return model.Settings{
		TimeSensitive:  c.Defaults.TimeSensitive,
		CriticalAlerts: c.Defaults.CriticalAlerts,
		FollowUpDelay:  delay,
	}
}
