// ABOUTME: Configuration loading and parsing for inbox-console
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete inbox-console configuration
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Feed     FeedConfig     `yaml:"feed"`
	Debounce DebounceConfig `yaml:"debounce"`
	List     ListConfig     `yaml:"list"`
	Channels ChannelsConfig `yaml:"channels"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BackendConfig holds the query API connection settings
type BackendConfig struct {
	BaseURL  string `yaml:"base_url"`
	ClientID string `yaml:"client_id"`
	APIToken string `yaml:"api_token"`
}

// FeedConfig holds the push-event feed settings
type FeedConfig struct {
	URL string `yaml:"url"`

	ReconnectMin time.Duration `yaml:"-"`
	ReconnectMax time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReconnectMinRaw string `yaml:"reconnect_min"`
	ReconnectMaxRaw string `yaml:"reconnect_max"`
}

// DebounceConfig holds the fetch debounce windows. Search keystrokes settle
// longer than other filter fields so a fetch fires once per typed phrase.
type DebounceConfig struct {
	Search time.Duration `yaml:"-"`
	Filter time.Duration `yaml:"-"`

	SearchRaw string `yaml:"search"`
	FilterRaw string `yaml:"filter"`
}

// ListConfig holds conversation list behavior
type ListConfig struct {
	PageSize     int           `yaml:"page_size"`
	HighlightTTL time.Duration `yaml:"-"`

	HighlightTTLRaw string `yaml:"highlight_ttl"`
}

// ChannelsConfig holds per-channel transport credentials
type ChannelsConfig struct {
	Facebook  MetaChannelConfig     `yaml:"facebook"`
	Instagram MetaChannelConfig     `yaml:"instagram"`
	Telegram  TelegramChannelConfig `yaml:"telegram"`
	WhatsApp  MetaChannelConfig     `yaml:"whatsapp"`
}

// MetaChannelConfig holds Graph-API-style channel credentials
type MetaChannelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	AccessToken string `yaml:"access_token"`
}

// TelegramChannelConfig holds Telegram bot credentials
type TelegramChannelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when fields are absent from the file.
const (
	defaultPageSize     = 20
	defaultSearchDelay  = 300 * time.Millisecond
	defaultFilterDelay  = 200 * time.Millisecond
	defaultHighlightTTL = 5 * time.Second
	defaultReconnectMin = time.Second
	defaultReconnectMax = 30 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.ClientID == "" {
		return fmt.Errorf("backend.client_id is required")
	}

	if c.List.PageSize <= 0 {
		return fmt.Errorf("list.page_size must be positive")
	}

	if c.Channels.Facebook.Enabled && c.Channels.Facebook.AccessToken == "" {
		return fmt.Errorf("channels.facebook.access_token is required when facebook is enabled")
	}
	if c.Channels.Instagram.Enabled && c.Channels.Instagram.AccessToken == "" {
		return fmt.Errorf("channels.instagram.access_token is required when instagram is enabled")
	}
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.BotToken == "" {
		return fmt.Errorf("channels.telegram.bot_token is required when telegram is enabled")
	}
	if c.Channels.WhatsApp.Enabled && c.Channels.WhatsApp.AccessToken == "" {
		return fmt.Errorf("channels.whatsapp.access_token is required when whatsapp is enabled")
	}

	return nil
}

// applyDefaults fills zero-valued optional fields
func applyDefaults(cfg *Config) {
	if cfg.List.PageSize == 0 {
		cfg.List.PageSize = defaultPageSize
	}
	if cfg.List.HighlightTTL == 0 {
		cfg.List.HighlightTTL = defaultHighlightTTL
	}
	if cfg.Debounce.Search == 0 {
		cfg.Debounce.Search = defaultSearchDelay
	}
	if cfg.Debounce.Filter == 0 {
		cfg.Debounce.Filter = defaultFilterDelay
	}
	if cfg.Feed.ReconnectMin == 0 {
		cfg.Feed.ReconnectMin = defaultReconnectMin
	}
	if cfg.Feed.ReconnectMax == 0 {
		cfg.Feed.ReconnectMax = defaultReconnectMax
	}
	if cfg.Feed.URL == "" && cfg.Backend.BaseURL != "" {
		cfg.Feed.URL = cfg.Backend.BaseURL + "/events"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{cfg.Debounce.SearchRaw, &cfg.Debounce.Search, "debounce.search"},
		{cfg.Debounce.FilterRaw, &cfg.Debounce.Filter, "debounce.filter"},
		{cfg.List.HighlightTTLRaw, &cfg.List.HighlightTTL, "list.highlight_ttl"},
		{cfg.Feed.ReconnectMinRaw, &cfg.Feed.ReconnectMin, "feed.reconnect_min"},
		{cfg.Feed.ReconnectMaxRaw, &cfg.Feed.ReconnectMax, "feed.reconnect_max"},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
