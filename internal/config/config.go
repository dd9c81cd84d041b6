// Package config provides YAML-based configuration loading for Groupforge.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Groupforge configuration, loaded from config.yaml.
// Secret-bearing fields may be overridden by environment variables so the
// file itself can stay token-free (GF_PASSPHRASE, GF_TELEGRAM_BOT_TOKEN,
// GF_DISCORD_BOT_TOKEN, GF_APP_ID, GF_APP_HASH).
type Config struct {
	Passphrase string          `yaml:"passphrase"`
	Platform   string          `yaml:"platform"` // "telegram" or "discord"
	Telegram   TelegramConfig  `yaml:"telegram"`
	Discord    DiscordConfig   `yaml:"discord"`
	Account    AccountConfig   `yaml:"account"`
	Provision  ProvisionConfig `yaml:"provision"`
	DB         DBConfig        `yaml:"db"`
	Dashboard  DashboardConfig `yaml:"dashboard"`
	SweepCron  string          `yaml:"sweep_cron"` // 5-field cron for session/run expiry
}

// TelegramConfig holds credentials for the Telegram front-end bot.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds credentials for the Discord front-end bot.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// AccountConfig holds the messaging-platform application credentials used
// when opening operator account sessions, plus the directory for on-disk
// session artifacts.
type AccountConfig struct {
	AppID       int    `yaml:"app_id"`
	AppHash     string `yaml:"app_hash"`
	SessionsDir string `yaml:"sessions_dir"`
}

// AuxAccount is one of the fixed accounts invited into every created group.
type AuxAccount struct {
	Username         string `yaml:"username"`
	GrantAdmins      bool   `yaml:"grant_admins"`       // broader rights set: may promote others
	RemoveAfterGrant bool   `yaml:"remove_after_grant"` // expelled (not banned) right after promotion
}

// ProvisionConfig controls the batch group-creation worker.
type ProvisionConfig struct {
	GroupCount   int          `yaml:"group_count"`
	DelaySeconds int          `yaml:"delay_seconds"`
	AuxAccounts  []AuxAccount `yaml:"aux_accounts"`
}

// DBConfig selects the database backend. Driver "sqlite" uses Path; driver
// "mysql" uses Host/Port/Database.
type DBConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// DashboardConfig controls the status HTTP server.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// Load reads a YAML config file from path and returns a validated Config
// with environment overrides applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secret-bearing fields from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("GF_PASSPHRASE"); v != "" {
		c.Passphrase = v
	}
	if v := os.Getenv("GF_TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("GF_DISCORD_BOT_TOKEN"); v != "" {
		c.Discord.BotToken = v
	}
	if v := os.Getenv("GF_APP_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			c.Account.AppID = id
		}
	}
	if v := os.Getenv("GF_APP_HASH"); v != "" {
		c.Account.AppHash = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = "telegram"
	}
	if c.Account.SessionsDir == "" {
		c.Account.SessionsDir = "sessions"
	}
	if c.Provision.GroupCount == 0 {
		c.Provision.GroupCount = 50
	}
	if c.Provision.DelaySeconds == 0 {
		c.Provision.DelaySeconds = 1
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Path == "" {
		c.DB.Path = "groupforge.db"
	}
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.Database == "" {
		c.DB.Database = "groupforge"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.SweepCron == "" {
		c.SweepCron = "*/10 * * * *"
	}
}

// validate checks that all required fields are present and consistent.
// A config error must stop the process at startup, never surface as a
// mid-conversation failure.
func (c *Config) validate() error {
	var errs []string
	if c.Passphrase == "" {
		errs = append(errs, "passphrase is required (or set GF_PASSPHRASE)")
	}
	switch c.Platform {
	case "telegram":
		if c.Telegram.BotToken == "" {
			errs = append(errs, "telegram.bot_token is required (or set GF_TELEGRAM_BOT_TOKEN)")
		}
	case "discord":
		if c.Discord.BotToken == "" {
			errs = append(errs, "discord.bot_token is required (or set GF_DISCORD_BOT_TOKEN)")
		}
	default:
		errs = append(errs, fmt.Sprintf("platform %q is not supported (telegram, discord)", c.Platform))
	}
	if c.Account.AppID == 0 {
		errs = append(errs, "account.app_id is required (or set GF_APP_ID)")
	}
	if c.Account.AppHash == "" {
		errs = append(errs, "account.app_hash is required (or set GF_APP_HASH)")
	}
	if len(c.Provision.AuxAccounts) == 0 {
		errs = append(errs, "at least one provision.aux_accounts entry is required")
	}
	for i, a := range c.Provision.AuxAccounts {
		if a.Username == "" {
			errs = append(errs, fmt.Sprintf("provision.aux_accounts[%d].username is required", i))
		}
	}
	if c.DB.Driver != "sqlite" && c.DB.Driver != "mysql" {
		errs = append(errs, fmt.Sprintf("db.driver %q is not supported (sqlite, mysql)", c.DB.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
