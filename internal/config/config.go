// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Runtime modes. Only production enables outbound alerting and enforces the
// presence of required external configuration.
const (
	ModeDevelopment = "development"
	ModeStaging     = "staging"
	ModeProduction  = "production"
)

// Config captures every service knob loaded via Viper.
type Config struct {
	Mode     string         `mapstructure:"mode"`
	Source   SourceConfig   `mapstructure:"source"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	DB       DBConfig       `mapstructure:"db"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Server   ServerConfig   `mapstructure:"server"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// SourceConfig describes the one site this service scrapes.
type SourceConfig struct {
	URL               string `mapstructure:"url"`
	UserAgent         string `mapstructure:"user_agent"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	ExpectedMinJobs   int    `mapstructure:"expected_min_jobs"`
	HeadlessFallback  bool   `mapstructure:"headless_fallback"`
	RowSelector       string `mapstructure:"row_selector"`
	ContainerSelector string `mapstructure:"container_selector"`
}

// ScrapeConfig governs pipeline pacing and the run lock.
type ScrapeConfig struct {
	PolitenessDelaySeconds int `mapstructure:"politeness_delay_seconds"`
	LockTTLMinutes         int `mapstructure:"lock_ttl_minutes"`
	MaxRunMinutes          int `mapstructure:"max_run_minutes"`
}

// DBConfig selects and configures the document store backend.
type DBConfig struct {
	Provider string `mapstructure:"provider"` // memory | postgres
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// BlobConfig selects where raw documents are archived.
type BlobConfig struct {
	Provider string `mapstructure:"provider"` // none | local | gcs | memory
	Dir      string `mapstructure:"dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// AlertsConfig selects the outbound alert sink.
type AlertsConfig struct {
	Provider  string `mapstructure:"provider"` // log | pubsub
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ScheduleConfig controls the cron loop.
type ScheduleConfig struct {
	Spec string `mapstructure:"spec"`
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SIKKIMJOBS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sikkimjobs/")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeDevelopment)
	v.SetDefault("source.url", "https://spsc.sikkim.gov.in/Advertisement")
	v.SetDefault("source.user_agent", "sikkimjobs-bot/1.0 (+https://github.com/Abishekkhanal/sikkimjobs)")
	v.SetDefault("source.timeout_seconds", 30)
	v.SetDefault("source.expected_min_jobs", 1)
	v.SetDefault("source.headless_fallback", false)
	v.SetDefault("scrape.politeness_delay_seconds", 2)
	v.SetDefault("scrape.lock_ttl_minutes", 30)
	v.SetDefault("scrape.max_run_minutes", 30)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("blob.provider", "none")
	v.SetDefault("blob.prefix", "pdfs")
	v.SetDefault("alerts.provider", "log")
	v.SetDefault("server.port", 8080)
	v.SetDefault("schedule.spec", "@every 6h")
}

// Validate enforces limits everywhere and required external configuration in
// production, where refusing to start beats silently degraded operation.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeDevelopment, ModeStaging, ModeProduction:
	default:
		return fmt.Errorf("mode must be one of %s, %s, %s", ModeDevelopment, ModeStaging, ModeProduction)
	}
	if c.Source.URL == "" {
		return fmt.Errorf("source.url is required")
	}
	if c.Scrape.LockTTLMinutes <= 0 {
		return fmt.Errorf("scrape.lock_ttl_minutes must be > 0")
	}
	if c.Scrape.MaxRunMinutes > c.Scrape.LockTTLMinutes {
		return fmt.Errorf("scrape.max_run_minutes must not exceed scrape.lock_ttl_minutes")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}

	if c.Mode != ModeProduction {
		return nil
	}
	if c.DB.Provider != "postgres" || c.DB.DSN == "" {
		return fmt.Errorf("production requires db.provider=postgres with db.dsn set")
	}
	if c.Alerts.Provider == "pubsub" && (c.Alerts.ProjectID == "" || c.Alerts.TopicID == "") {
		return fmt.Errorf("alerts.provider=pubsub requires alerts.project_id and alerts.topic_id")
	}
	if c.Blob.Provider == "gcs" && c.Blob.Bucket == "" {
		return fmt.Errorf("blob.provider=gcs requires blob.bucket")
	}
	return nil
}

// PolitenessDelay returns the fixed inter-record pause.
func (c Config) PolitenessDelay() time.Duration {
	return time.Duration(c.Scrape.PolitenessDelaySeconds) * time.Second
}

// LockTTL returns the run lock lifetime.
func (c Config) LockTTL() time.Duration {
	return time.Duration(c.Scrape.LockTTLMinutes) * time.Minute
}

// MaxRunAge returns the longest plausible run duration, used to flag stuck
// runs.
func (c Config) MaxRunAge() time.Duration {
	return time.Duration(c.Scrape.MaxRunMinutes) * time.Minute
}

// SourceTimeout returns the page fetch budget.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}
