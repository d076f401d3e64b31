// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the telegramshell
// service.
//
// Configuration is loaded from a single YAML file specified by:
//   - the TELEGRAMSHELL_CONFIG environment variable, or
//   - the --config flag passed to the binary
//
// There are no fallbacks or automatic discovery; the file is the single
// source of truth. The only expansion performed is ${VAR} and
// ${VAR:-default} substitution in path fields, for portability across
// home directories.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration.
type Config struct {
	// Telegram configures the Bot API transport.
	Telegram TelegramConfig `yaml:"telegram"`

	// Auth configures sender authentication.
	Auth AuthConfig `yaml:"auth"`

	// Credentials configures optional at-rest encryption of the token
	// and password files.
	Credentials CredentialsConfig `yaml:"credentials"`

	// Audit configures the append-only command log.
	Audit AuditConfig `yaml:"audit"`

	// Stream configures output batching and delivery.
	Stream StreamConfig `yaml:"stream"`

	// Commands configures the classification rule tables.
	Commands CommandsConfig `yaml:"commands"`

	// Log configures service diagnostics.
	Log LogConfig `yaml:"log"`
}

// TelegramConfig configures the Bot API transport.
type TelegramConfig struct {
	// APIURL is the Bot API base URL. Override for self-hosted Bot API
	// servers or tests.
	APIURL string `yaml:"api_url"`

	// TokenFile is the path of the bot token file ("-" reads stdin).
	// With credentials.identity_file set, the file holds sealed
	// ciphertext instead of the plain token.
	TokenFile string `yaml:"token_file"`

	// PollTimeoutSeconds is the getUpdates long-poll window.
	PollTimeoutSeconds int `yaml:"poll_timeout_seconds"`

	// Webhook switches update delivery from long polling to an HTTP
	// receiver.
	Webhook WebhookConfig `yaml:"webhook"`
}

// WebhookConfig configures webhook update delivery.
type WebhookConfig struct {
	// Enabled turns the webhook receiver on and long polling off.
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the receiver's listen address.
	ListenAddr string `yaml:"listen_addr"`

	// SecretTokenFile holds the secret compared against Telegram's
	// X-Telegram-Bot-Api-Secret-Token header on every delivery.
	SecretTokenFile string `yaml:"secret_token_file"`
}

// AuthConfig configures sender authentication.
type AuthConfig struct {
	// AllowedUsers are the Telegram user ids permitted to use the
	// gateway. An empty list locks the gateway.
	AllowedUsers []int64 `yaml:"allowed_users"`

	// PasswordFile is the path of the shared secret file. The secret
	// may be plaintext or a bcrypt hash from "telegramshell
	// hash-password". With credentials.identity_file set, the file
	// holds sealed ciphertext.
	PasswordFile string `yaml:"password_file"`
}

// CredentialsConfig configures sealed credentials.
type CredentialsConfig struct {
	// IdentityFile is an age identity (from "telegramshell keygen").
	// When set, token_file and password_file are age-encrypted (from
	// "telegramshell seal") and unsealed at startup.
	IdentityFile string `yaml:"identity_file"`
}

// AuditConfig configures the command audit log.
type AuditConfig struct {
	// LogFile is the append-only audit file path.
	LogFile string `yaml:"log_file"`
}

// StreamConfig configures output batching.
type StreamConfig struct {
	// UpdateIntervalSeconds is the default flush cadence for
	// continuous commands whose pattern does not set its own.
	UpdateIntervalSeconds int `yaml:"update_interval_seconds"`

	// ChunkThresholdBytes triggers a flush when the buffered output
	// reaches this size. Bounded by the transport's 4096-byte message
	// ceiling.
	ChunkThresholdBytes int `yaml:"chunk_threshold_bytes"`

	// MergeStderr drops the "!" tag on stderr lines, interleaving them
	// indistinguishably with stdout.
	MergeStderr bool `yaml:"merge_stderr"`
}

// CommandsConfig configures classification rules.
type CommandsConfig struct {
	// RulesFile is an optional JSONC file replacing the built-in
	// rewrite/elevation/continuous tables.
	RulesFile string `yaml:"rules_file"`
}

// LogConfig configures service diagnostics.
type LogConfig struct {
	// Level is the minimum level: debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is text, json, or auto (text on a terminal, json
	// otherwise).
	Format string `yaml:"format"`
}

// Default returns the default configuration, used as the base before
// the config file is merged in. The token and password files have no
// defaults — the file must name them.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{
			APIURL:             "https://api.telegram.org",
			PollTimeoutSeconds: 30,
			Webhook: WebhookConfig{
				ListenAddr: ":8443",
			},
		},
		Audit: AuditConfig{
			LogFile: "command_log.txt",
		},
		Stream: StreamConfig{
			UpdateIntervalSeconds: 5,
			ChunkThresholdBytes:   3500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the TELEGRAMSHELL_CONFIG environment
// variable. Fails if the variable is unset — there is no default
// location.
func Load() (*Config, error) {
	configPath := os.Getenv("TELEGRAMSHELL_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("TELEGRAMSHELL_CONFIG environment variable not set; " +
			"set it to the path of your telegramshell.yaml config file, or use --config")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging over
// Default() and expanding ${VAR} references in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Telegram.TokenFile = expandVars(c.Telegram.TokenFile, vars)
	c.Telegram.Webhook.SecretTokenFile = expandVars(c.Telegram.Webhook.SecretTokenFile, vars)
	c.Auth.PasswordFile = expandVars(c.Auth.PasswordFile, vars)
	c.Credentials.IdentityFile = expandVars(c.Credentials.IdentityFile, vars)
	c.Audit.LogFile = expandVars(c.Audit.LogFile, vars)
	c.Commands.RulesFile = expandVars(c.Commands.RulesFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration. All problems are reported
// together.
func (c *Config) Validate() error {
	var errs []error

	if c.Telegram.APIURL == "" {
		errs = append(errs, fmt.Errorf("telegram.api_url is required"))
	}
	if c.Telegram.TokenFile == "" {
		errs = append(errs, fmt.Errorf("telegram.token_file is required"))
	}
	if c.Telegram.PollTimeoutSeconds < 1 || c.Telegram.PollTimeoutSeconds > 60 {
		errs = append(errs, fmt.Errorf("telegram.poll_timeout_seconds must be between 1 and 60, got %d", c.Telegram.PollTimeoutSeconds))
	}
	if c.Telegram.Webhook.Enabled {
		if c.Telegram.Webhook.ListenAddr == "" {
			errs = append(errs, fmt.Errorf("telegram.webhook.listen_addr is required when the webhook is enabled"))
		}
		if c.Telegram.Webhook.SecretTokenFile == "" {
			errs = append(errs, fmt.Errorf("telegram.webhook.secret_token_file is required when the webhook is enabled"))
		}
	}

	if c.Auth.PasswordFile == "" {
		errs = append(errs, fmt.Errorf("auth.password_file is required"))
	}

	if c.Audit.LogFile == "" {
		errs = append(errs, fmt.Errorf("audit.log_file is required"))
	}

	if c.Stream.UpdateIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("stream.update_interval_seconds must be positive, got %d", c.Stream.UpdateIntervalSeconds))
	}
	if c.Stream.ChunkThresholdBytes <= 0 || c.Stream.ChunkThresholdBytes > 4096 {
		errs = append(errs, fmt.Errorf("stream.chunk_threshold_bytes must be between 1 and 4096, got %d", c.Stream.ChunkThresholdBytes))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json", "auto":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text, json, or auto, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// PollTimeout returns the long-poll window as a duration.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Telegram.PollTimeoutSeconds) * time.Second
}

// UpdateInterval returns the default flush cadence as a duration.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.Stream.UpdateIntervalSeconds) * time.Second
}

// SlogLevel maps the configured level name onto a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
