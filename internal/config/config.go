package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	DB struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"db"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`

	NATS struct {
		URL             string `yaml:"url"`
		Subject         string `yaml:"subject"`
		PublishRetryMax int    `yaml:"publish_retry_max"`
	} `yaml:"nats"`

	Ingest struct {
		ChannelCapacity    int `yaml:"channel_capacity"`
		MaxBatchSize       int `yaml:"max_batch_size"`
		MaxBatchIntervalMs int `yaml:"max_batch_interval_ms"`
		FlushRetryMax      int `yaml:"flush_retry_max"`
		FlushBackoffMs     int `yaml:"flush_backoff_ms"`
		DedupMaxKeys       int `yaml:"dedup_max_keys"`
		DedupTTLSeconds    int `yaml:"dedup_ttl_seconds"`
	} `yaml:"ingest"`

	Report struct {
		Enabled     bool   `yaml:"enabled"`
		WakeTime    string `yaml:"wake_time"`     // "05:00"
		WindowStart string `yaml:"window_start"`  // "22:00", previous day
		WindowEnd   string `yaml:"window_end"`    // "04:50", wake day
		ObjectClass string `yaml:"object_class"`  // "person"
		Timezone    string `yaml:"timezone"`      // IANA name
		Recipient   string `yaml:"recipient"`     // messenger target
	} `yaml:"report"`

	Stats struct {
		CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	} `yaml:"stats"`
}

// Load reads the YAML file and applies environment overrides for anything
// deploy-specific (DB credentials, service addresses, port).
func Load(path string) (*Config, error) {
	cfg := &Config{}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.DB.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		c.DB.Port = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.DB.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.DB.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.DB.Name = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("NIGHTLY_REPORT_RECIPIENT"); v != "" {
		c.Report.Recipient = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.DB.Host == "" {
		c.DB.Host = "localhost"
	}
	if c.DB.Port == "" {
		c.DB.Port = "5432"
	}
	if c.DB.SSLMode == "" {
		c.DB.SSLMode = "disable"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Report.WakeTime == "" {
		c.Report.WakeTime = "05:00"
	}
	if c.Report.WindowStart == "" {
		c.Report.WindowStart = "22:00"
	}
	if c.Report.WindowEnd == "" {
		c.Report.WindowEnd = "04:50"
	}
	if c.Report.ObjectClass == "" {
		c.Report.ObjectClass = "person"
	}
	if c.Report.Timezone == "" {
		c.Report.Timezone = "Africa/Nairobi"
	}
	if c.Stats.CacheTTLSeconds == 0 {
		c.Stats.CacheTTLSeconds = 60
	}
}

// DSN builds the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

// ParseClock splits "HH:MM" into its components.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
