package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rewired-gh/polywhale/internal/polymarket"
	"github.com/rewired-gh/polywhale/internal/state"
)

// MinCooldown is the shortest allowed gap between two insights for the same event.
const MinCooldown = 6 * time.Hour

// Config represents the complete application configuration
type Config struct {
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Whale      WhaleConfig      `mapstructure:"whale"`
	Collector  CollectorConfig  `mapstructure:"collector"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Analyst    AnalystConfig    `mapstructure:"analyst"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// PolymarketConfig holds Polymarket API configuration
type PolymarketConfig struct {
	GammaAPIURL   string                       `mapstructure:"gamma_api_url"`
	DataAPIURL    string                       `mapstructure:"data_api_url"`
	PollInterval  time.Duration                `mapstructure:"poll_interval"`
	Window        time.Duration                `mapstructure:"window"` // events must resolve within this horizon
	EventLimit    int                          `mapstructure:"event_limit"`
	Timeout       time.Duration                `mapstructure:"timeout"`
	RatePerSecond float64                      `mapstructure:"rate_per_second"`
	Categories    []polymarket.CategoryMatcher `mapstructure:"categories"` // empty = no category filter
}

// WhaleConfig holds single-trade alert thresholds
type WhaleConfig struct {
	Threshold     float64 `mapstructure:"threshold"`
	MegaThreshold float64 `mapstructure:"mega_threshold"`
}

// CollectorConfig holds candidate collection thresholds
type CollectorConfig struct {
	VolumeThreshold float64       `mapstructure:"volume_threshold"`
	MoveThreshold   float64       `mapstructure:"move_threshold"`
	MoveWeight      float64       `mapstructure:"move_weight"`
	CandidateTTL    time.Duration `mapstructure:"candidate_ttl"`
}

// SchedulerConfig holds the daily analysis budget and admission rules
type SchedulerConfig struct {
	MaxPerDay       int           `mapstructure:"max_per_day"`
	MinInterval     time.Duration `mapstructure:"min_interval"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	CategoryPenalty float64       `mapstructure:"category_penalty"`
	SendPause       time.Duration `mapstructure:"send_pause"`
	Timezone        string        `mapstructure:"timezone"` // budget day boundary
}

// AnalystConfig holds text-generation and web search configuration
type AnalystConfig struct {
	DeepSeekAPIKey string        `mapstructure:"deepseek_api_key"`
	DeepSeekURL    string        `mapstructure:"deepseek_url"`
	Model          string        `mapstructure:"model"`
	Temperature    float64       `mapstructure:"temperature"`
	TavilyAPIKey   string        `mapstructure:"tavily_api_key"`
	TavilyURL      string        `mapstructure:"tavily_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken   string        `mapstructure:"bot_token"`
	ChatIDs    []string      `mapstructure:"chat_ids"`
	Enabled    bool          `mapstructure:"enabled"`
	Commands   bool          `mapstructure:"commands"` // answer /ping and /chatid
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// Active reports whether messages go to Telegram rather than the log.
func (t TelegramConfig) Active() bool {
	return t.Missing() == ""
}

// Missing names the first setting that keeps Telegram inactive, or "" when it is active.
func (t TelegramConfig) Missing() string {
	switch {
	case !t.Enabled:
		return "telegram.enabled"
	case t.BotToken == "":
		return "telegram.bot_token"
	case len(t.ChatIDs) == 0:
		return "telegram.chat_ids"
	}
	return ""
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath          string `mapstructure:"db_path"`
	MaxAlerts       int    `mapstructure:"max_alerts"`
	LegacyStatePath string `mapstructure:"legacy_state_path"` // imported once when the database is empty
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// legacyEnv maps config keys to the bare variable names older deployments use.
var legacyEnv = map[string][]string{
	"telegram.bot_token":       {"TELEGRAM_BOT_TOKEN"},
	"telegram.chat_ids":        {"TELEGRAM_CHAT_IDS", "TELEGRAM_CHAT_ID"},
	"whale.threshold":          {"WHALE_THRESHOLD"},
	"analyst.deepseek_api_key": {"DEEPSEEK_API_KEY"},
	"analyst.tavily_api_key":   {"TAVILY_API_KEY"},
}

// Load reads configuration from .env, the config file and environment variables.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("POLYWHALE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		prefixed := "POLYWHALE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Telegram.ChatIDs = normalizeList(cfg.Telegram.ChatIDs)

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Polymarket defaults
	v.SetDefault("polymarket.gamma_api_url", polymarket.DefaultGammaURL)
	v.SetDefault("polymarket.data_api_url", polymarket.DefaultDataURL)
	v.SetDefault("polymarket.poll_interval", "60s")
	v.SetDefault("polymarket.window", "24h")
	v.SetDefault("polymarket.event_limit", 100)
	v.SetDefault("polymarket.timeout", "10s")
	v.SetDefault("polymarket.rate_per_second", 5.0)
	v.SetDefault("polymarket.categories", polymarket.DefaultCategories())

	// Whale defaults
	v.SetDefault("whale.threshold", 10000.0)
	v.SetDefault("whale.mega_threshold", 50000.0)

	// Collector defaults
	v.SetDefault("collector.volume_threshold", 5000.0)
	v.SetDefault("collector.move_threshold", 0.05)
	v.SetDefault("collector.move_weight", 10000.0)
	v.SetDefault("collector.candidate_ttl", "1h")

	// Scheduler defaults: 13 insights a day, burst mode
	v.SetDefault("scheduler.max_per_day", 13)
	v.SetDefault("scheduler.min_interval", "30s")
	v.SetDefault("scheduler.cooldown", "6h")
	v.SetDefault("scheduler.category_penalty", 50.0)
	v.SetDefault("scheduler.send_pause", "2s")
	v.SetDefault("scheduler.timezone", "UTC")

	// Analyst defaults
	v.SetDefault("analyst.deepseek_api_key", "")
	v.SetDefault("analyst.deepseek_url", "https://api.deepseek.com/chat/completions")
	v.SetDefault("analyst.model", "deepseek-chat")
	v.SetDefault("analyst.temperature", 0.3)
	v.SetDefault("analyst.tavily_api_key", "")
	v.SetDefault("analyst.tavily_url", "https://api.tavily.com/search")
	v.SetDefault("analyst.timeout", "30s")

	// Telegram defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_ids", []string{})
	v.SetDefault("telegram.enabled", true)
	v.SetDefault("telegram.commands", true)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/polywhale.db")
	v.SetDefault("storage.max_alerts", 10000)
	v.SetDefault("storage.legacy_state_path", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// normalizeList trims entries, splits comma lists and drops empties.
func normalizeList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Location returns the time zone that defines the budget day.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Scheduler.Timezone)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Polymarket config
	if c.Polymarket.GammaAPIURL == "" {
		return fmt.Errorf("polymarket.gamma_api_url is required")
	}
	if c.Polymarket.DataAPIURL == "" {
		return fmt.Errorf("polymarket.data_api_url is required")
	}
	if c.Polymarket.PollInterval < 10*time.Second {
		return fmt.Errorf("polymarket.poll_interval must be at least 10 seconds")
	}
	if c.Polymarket.Window < time.Minute {
		return fmt.Errorf("polymarket.window must be at least 1 minute")
	}
	if c.Polymarket.EventLimit < 1 || c.Polymarket.EventLimit > 500 {
		return fmt.Errorf("polymarket.event_limit must be between 1 and 500")
	}
	if c.Polymarket.RatePerSecond <= 0 {
		return fmt.Errorf("polymarket.rate_per_second must be positive")
	}
	for i, m := range c.Polymarket.Categories {
		if m.Name == "" || len(m.Tags) == 0 {
			return fmt.Errorf("polymarket.categories[%d] needs a name and at least one tag", i)
		}
	}

	// Validate Whale config
	if c.Whale.Threshold <= 0 {
		return fmt.Errorf("whale.threshold must be positive")
	}
	if c.Whale.MegaThreshold < c.Whale.Threshold {
		return fmt.Errorf("whale.mega_threshold must not be below whale.threshold")
	}

	// Validate Collector config
	if c.Collector.VolumeThreshold < 0 || c.Collector.MoveThreshold < 0 || c.Collector.MoveWeight < 0 {
		return fmt.Errorf("collector thresholds must not be negative")
	}
	if c.Collector.CandidateTTL < time.Minute {
		return fmt.Errorf("collector.candidate_ttl must be at least 1 minute")
	}

	// Validate Scheduler config
	if c.Scheduler.MaxPerDay < 0 {
		return fmt.Errorf("scheduler.max_per_day must not be negative")
	}
	if c.Scheduler.MinInterval < 0 || c.Scheduler.SendPause < 0 {
		return fmt.Errorf("scheduler durations must not be negative")
	}
	// Cleanup purges cooldowns after state.CooldownRetention, so a longer cooldown would not hold.
	if c.Scheduler.Cooldown < MinCooldown || c.Scheduler.Cooldown > state.CooldownRetention {
		return fmt.Errorf("scheduler.cooldown must be between %v and %v", MinCooldown, state.CooldownRetention)
	}
	if c.Scheduler.CategoryPenalty < 0 {
		return fmt.Errorf("scheduler.category_penalty must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("scheduler.timezone is invalid: %w", err)
	}

	// Validate Telegram config
	if c.Telegram.MaxRetries < 1 {
		return fmt.Errorf("telegram.max_retries must be at least 1")
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxAlerts < 1 {
		return fmt.Errorf("storage.max_alerts must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
