package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Amadeus  AmadeusConfig  `yaml:"amadeus"`
	Telegram TelegramConfig `yaml:"telegram"`
	Email    EmailConfig    `yaml:"email"`
	Search   SearchConfig   `yaml:"search"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	CacheTTL int    `yaml:"cache_ttl_seconds"`
}

type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	DealsTopic string   `yaml:"deals_topic"`
	GroupID    string   `yaml:"group_id"`
}

type AmadeusConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	Currency   string `yaml:"currency"`
	MaxResults int    `yaml:"max_results"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type EmailConfig struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
}

func (e EmailConfig) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

type RouteConfig struct {
	Origin      string `yaml:"origin"`
	Destination string `yaml:"destination"`
}

type SearchConfig struct {
	Routes           []RouteConfig `yaml:"routes"`
	DayOffsets       []int         `yaml:"day_offsets"`
	StayDays         int           `yaml:"stay_days"`
	CheapestDateMode bool          `yaml:"cheapest_date_mode"`
	PriceThreshold   float64       `yaml:"price_threshold"`
	AlertWindowHours int           `yaml:"alert_window_hours"`
	IntervalMinutes  int           `yaml:"interval_minutes"`
	RequestDelayMs   int           `yaml:"request_delay_ms"`
	NotifyDelayMs    int           `yaml:"notify_delay_ms"`
	TopN             int           `yaml:"top_n"`
}

func (s SearchConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

func (s SearchConfig) AlertWindow() time.Duration {
	return time.Duration(s.AlertWindowHours) * time.Hour
}

func (s SearchConfig) RequestDelay() time.Duration {
	return time.Duration(s.RequestDelayMs) * time.Millisecond
}

func (s SearchConfig) NotifyDelay() time.Duration {
	return time.Duration(s.NotifyDelayMs) * time.Millisecond
}

type WorkerConfig struct {
	RetentionDays     int `yaml:"retention_days"`
	PruneSweepMinutes int `yaml:"prune_sweep_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnv lets credentials come from the environment so the config file
// can be committed without secrets.
func (c *Config) applyEnv() {
	overrideString(&c.Database.Path, "DATABASE_PATH")
	overrideString(&c.Amadeus.APIKey, "AMADEUS_API_KEY")
	overrideString(&c.Amadeus.APISecret, "AMADEUS_API_SECRET")
	overrideString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	overrideString(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	overrideString(&c.Email.Username, "SMTP_USERNAME")
	overrideString(&c.Email.Password, "SMTP_PASSWORD")
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "flight_deals.db"
	}
	if c.Amadeus.Currency == "" {
		c.Amadeus.Currency = "USD"
	}
	if c.Amadeus.MaxResults <= 0 {
		c.Amadeus.MaxResults = 5
	}
	if len(c.Search.DayOffsets) == 0 {
		c.Search.DayOffsets = []int{7, 14, 21}
	}
	if c.Search.PriceThreshold <= 0 {
		c.Search.PriceThreshold = 400
	}
	if c.Search.AlertWindowHours <= 0 {
		c.Search.AlertWindowHours = 24
	}
	if c.Search.IntervalMinutes <= 0 {
		c.Search.IntervalMinutes = 360
	}
	if c.Search.RequestDelayMs <= 0 {
		c.Search.RequestDelayMs = 2000
	}
	if c.Search.NotifyDelayMs <= 0 {
		c.Search.NotifyDelayMs = 500
	}
	if c.Search.TopN <= 0 {
		c.Search.TopN = 3
	}
	if c.Redis.CacheTTL <= 0 {
		c.Redis.CacheTTL = 300
	}
	if c.Worker.RetentionDays <= 0 {
		c.Worker.RetentionDays = 90
	}
	if c.Worker.PruneSweepMinutes <= 0 {
		c.Worker.PruneSweepMinutes = 60
	}
}

func overrideString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}
