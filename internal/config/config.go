// Package config loads and validates the bridge configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the whole config.json. The Discord endpoint is side A, the
// Spacebar endpoint side B.
type Config struct {
	Discord  EndpointConfig `json:"discord"`
	Spacebar EndpointConfig `json:"spacebar"`

	DiscordGuildID  string `json:"discord_guild_id"`
	SpacebarGuildID string `json:"spacebar_guild_id"`

	Bridges []BridgeConfig `json:"bridges"`

	CustomStatus      string          `json:"custom_status"`
	CustomStatusEmoji json.RawMessage `json:"custom_status_emoji"`

	Database DatabaseConfig `json:"database"`

	// MetricsAddr enables the /metrics listener when set, e.g.
	// "127.0.0.1:9190".
	MetricsAddr string `json:"metrics_addr"`
}

// EndpointConfig identifies one backend.
type EndpointConfig struct {
	Host    string `json:"host"`
	CDNHost string `json:"cdn_host"`
	Token   string `json:"token"`
}

// BridgeConfig is one mirrored channel pair.
type BridgeConfig struct {
	DiscordChannelID  string `json:"discord_channel_id"`
	SpacebarChannelID string `json:"spacebar_channel_id"`
}

// DatabaseConfig selects the pair store backend. An empty
// postgresql_host means SQLite files under dir_path.
type DatabaseConfig struct {
	DirPath            string `json:"dir_path"`
	PostgresqlHost     string `json:"postgresql_host"`
	PostgresqlUser     string `json:"postgresql_user"`
	PostgresqlPassword string `json:"postgresql_password"`
	CleanupDays        int    `json:"cleanup_days"`
	PairLifetimeDays   int    `json:"pair_lifetime_days"`
}

// Load reads, defaults and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.PairLifetimeDays <= 0 {
		c.Database.PairLifetimeDays = 30
	}
	if c.Database.CleanupDays <= 0 {
		c.Database.CleanupDays = 1
	}
	if c.Database.DirPath == "" {
		c.Database.DirPath = "."
	}
}

// Validate rejects configs the bridge cannot run with.
func (c *Config) Validate() error {
	if c.Discord.Host == "" || c.Discord.Token == "" {
		return fmt.Errorf("config: discord host and token are required")
	}
	if c.Spacebar.Host == "" || c.Spacebar.Token == "" {
		return fmt.Errorf("config: spacebar host and token are required")
	}
	if len(c.Bridges) == 0 {
		return fmt.Errorf("config: at least one bridge is required")
	}
	for i, b := range c.Bridges {
		if b.DiscordChannelID == "" || b.SpacebarChannelID == "" {
			return fmt.Errorf("config: bridge %d is missing a channel id", i)
		}
	}
	if c.Database.CleanupDays > c.Database.PairLifetimeDays {
		return fmt.Errorf("config: cleanup_days must not exceed pair_lifetime_days")
	}
	return nil
}

// UsePostgres reports whether the PostgreSQL pair store is configured.
func (c *Config) UsePostgres() bool {
	return c.Database.PostgresqlHost != ""
}

// DiscordBridgeMap maps Discord source channels to Spacebar targets.
func (c *Config) DiscordBridgeMap() map[string]string {
	m := make(map[string]string, len(c.Bridges))
	for _, b := range c.Bridges {
		m[b.DiscordChannelID] = b.SpacebarChannelID
	}
	return m
}

// SpacebarBridgeMap maps Spacebar source channels to Discord targets.
func (c *Config) SpacebarBridgeMap() map[string]string {
	m := make(map[string]string, len(c.Bridges))
	for _, b := range c.Bridges {
		m[b.SpacebarChannelID] = b.DiscordChannelID
	}
	return m
}
