package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type DiscordConfig struct {
	Token     string `yaml:"token"`      // usually via DISCORD_TOKEN instead
	ChannelID string `yaml:"channel_id"` // channel for the daily post
	Prefix    string `yaml:"prefix"`     // command prefix, default "!"
}

type ScheduleConfig struct {
	Hour     int    `yaml:"hour"`   // daily post time, local to Timezone
	Minute   int    `yaml:"minute"`
	Timezone string `yaml:"timezone"` // e.g. Europe/Sofia
}

type CommonHTTP struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type ElectricityConfig struct {
	BaseURL    string        `yaml:"base_url"`    // ERM Zapad avplan endpoint
	RegionCode string        `yaml:"region_code"` // e.g. "SOF" (Sofia-grad)
	HTTP       CommonHTTP    `yaml:"http"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	MaxRetries int           `yaml:"max_retries"` // list-page attempts
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

type WaterConfig struct {
	URL            string        `yaml:"url"` // Sofia Water info center (JS-rendered)
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`   // ceiling on the whole browser sequence
	OverlayTimeout time.Duration `yaml:"overlay_timeout"` // bounded wait for the splash screen
	SettleDelay    time.Duration `yaml:"settle_delay"`    // script-render settle pauses
}

type HistoryConfig struct {
	BaseURL    string     `yaml:"base_url"`
	HTTP       CommonHTTP `yaml:"http"`
	EventCount int        `yaml:"event_count"` // events per daily post
}

type AIConfig struct {
	Model     string `yaml:"model"` // OpenAI chat model
	MaxTokens int    `yaml:"max_tokens"`
}

type MetricsConfig struct {
	Enable bool   `yaml:"enable"`
	Addr   string `yaml:"addr"` // e.g. :9102
}

type Config struct {
	Discord     DiscordConfig     `yaml:"discord"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Electricity ElectricityConfig `yaml:"electricity"`
	Water       WaterConfig       `yaml:"water"`
	History     HistoryConfig     `yaml:"history"`
	AI          AIConfig          `yaml:"ai"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	LogLevel    string            `yaml:"log_level"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, err
	}
	c.applyEnv()
	c.applyDefaults()
	if c.Discord.Token == "" {
		return c, errors.New("discord token not set (DISCORD_TOKEN or discord.token)")
	}
	if c.Discord.ChannelID == "" {
		return c, errors.New("discord channel not set (DISCORD_CHANNEL_ID or discord.channel_id)")
	}
	return c, nil
}

// applyEnv lets secrets and deployment-specific values come from the
// environment so the YAML file can be committed without them.
func (c *Config) applyEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("DISCORD_CHANNEL_ID"); v != "" {
		c.Discord.ChannelID = v
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		c.Schedule.Timezone = v
	}
}

func (c *Config) applyDefaults() {
	if c.Discord.Prefix == "" {
		c.Discord.Prefix = "!"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Europe/Sofia"
	}
	if c.Schedule.Hour == 0 && c.Schedule.Minute == 0 {
		c.Schedule.Hour, c.Schedule.Minute = 12, 10
	}
	if c.Electricity.BaseURL == "" {
		c.Electricity.BaseURL = "https://info.ermzapad.bg/webint/vok/avplan.php"
	}
	if c.Electricity.RegionCode == "" {
		c.Electricity.RegionCode = "SOF"
	}
	if c.Water.URL == "" {
		c.Water.URL = "https://gispx.sofiyskavoda.bg/WebApp.InfoCenter/?a=0&tab=0"
	}
	if c.History.BaseURL == "" {
		c.History.BaseURL = "https://history.muffinlabs.com/date"
	}
	if c.History.EventCount <= 0 {
		c.History.EventCount = 10
	}
	if c.AI.Model == "" {
		c.AI.Model = "gpt-4o-mini"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9102"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
