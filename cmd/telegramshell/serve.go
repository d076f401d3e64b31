// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/seedfourtytwo/telegramshell/lib/auditlog"
	"github.com/seedfourtytwo/telegramshell/lib/auth"
	"github.com/seedfourtytwo/telegramshell/lib/classify"
	"github.com/seedfourtytwo/telegramshell/lib/clock"
	"github.com/seedfourtytwo/telegramshell/lib/config"
	"github.com/seedfourtytwo/telegramshell/lib/dispatch"
	"github.com/seedfourtytwo/telegramshell/lib/sealed"
	"github.com/seedfourtytwo/telegramshell/lib/secret"
	"github.com/seedfourtytwo/telegramshell/lib/stream"
	"github.com/seedfourtytwo/telegramshell/lib/supervise"
	"github.com/seedfourtytwo/telegramshell/messaging"
)

// runServe loads configuration and credentials, wires the gateway
// together, and runs it until SIGINT or SIGTERM.
func runServe(args []string) error {
	var configPath string

	flagSet := pflag.NewFlagSet("telegramshell serve", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to telegramshell.yaml (default: $TELEGRAMSHELL_CONFIG)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printServeHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printServeHelp(flagSet)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Credentials. With an identity configured, the token and password
	// files hold age ciphertext from "telegramshell seal".
	var identity *secret.Buffer
	if cfg.Credentials.IdentityFile != "" {
		identity, err = sealed.ReadIdentity(cfg.Credentials.IdentityFile)
		if err != nil {
			return err
		}
		defer identity.Close()
	}

	token, err := loadCredential(cfg.Telegram.TokenFile, identity)
	if err != nil {
		return fmt.Errorf("loading bot token: %w", err)
	}
	defer token.Close()

	password, err := loadCredential(cfg.Auth.PasswordFile, identity)
	if err != nil {
		return fmt.Errorf("loading password: %w", err)
	}
	defer password.Close()

	// Collaborators, innermost first.
	rules := classify.DefaultRules()
	if cfg.Commands.RulesFile != "" {
		rules, err = classify.LoadRules(cfg.Commands.RulesFile)
		if err != nil {
			return err
		}
	}
	classifier, err := classify.New(rules)
	if err != nil {
		return err
	}

	authenticator, err := auth.New(auth.Config{
		AllowedUsers: cfg.Auth.AllowedUsers,
		Secret:       password,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	audit, err := auditlog.Open(cfg.Audit.LogFile)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer audit.Close()

	supervisor := supervise.New(logger, clock.Real())

	streamer := stream.New(stream.Config{
		Logger:         logger,
		ChunkThreshold: cfg.Stream.ChunkThresholdBytes,
		UpdateInterval: cfg.UpdateInterval(),
		MergeStderr:    cfg.Stream.MergeStderr,
	})

	client, err := messaging.NewClient(messaging.ClientConfig{
		APIBaseURL: cfg.Telegram.APIURL,
		Token:      token,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	transport := &telegramTransport{client: client}

	dispatcher, err := dispatch.New(dispatch.Config{
		Logger:     logger,
		Auth:       authenticator,
		Classifier: classifier,
		Supervisor: supervisor,
		Streamer:   streamer,
		Audit:      audit,
		Transport:  transport,
	})
	if err != nil {
		return err
	}

	var webhook *messaging.WebhookReceiver
	if cfg.Telegram.Webhook.Enabled {
		webhookSecret, err := loadCredential(cfg.Telegram.Webhook.SecretTokenFile, identity)
		if err != nil {
			return fmt.Errorf("loading webhook secret: %w", err)
		}
		defer webhookSecret.Close()

		webhook, err = messaging.NewWebhookReceiver(messaging.WebhookConfig{
			SecretToken: webhookSecret,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
	}

	gateway, err := newBot(botConfig{
		Logger:      logger,
		Client:      client,
		Transport:   transport,
		Auth:        authenticator,
		Supervisor:  supervisor,
		Dispatcher:  dispatcher,
		Webhook:     webhook,
		WebhookAddr: cfg.Telegram.Webhook.ListenAddr,
		PollTimeout: cfg.PollTimeout(),
	})
	if err != nil {
		return err
	}

	logger.Info("starting gateway",
		"allowed_users", len(cfg.Auth.AllowedUsers),
		"webhook", cfg.Telegram.Webhook.Enabled,
		"audit_log", cfg.Audit.LogFile)

	return gateway.run(ctx)
}

// loadCredential reads a credential file, unsealing it when an age
// identity is configured.
func loadCredential(path string, identity *secret.Buffer) (*secret.Buffer, error) {
	if identity == nil {
		return secret.ReadFromPath(path)
	}
	return sealed.UnsealFile(path, identity)
}

// newLogger builds the service logger from the log configuration.
// "auto" format follows the terminal: human-readable text when stderr
// is a terminal, JSON when piped or redirected (systemd, scripts).
func newLogger(cfg *config.Config) *slog.Logger {
	options := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	format := cfg.Log.Format
	if format == "auto" {
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "text"
		} else {
			format = "json"
		}
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

func printServeHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Run the command-execution gateway.

Reads telegramshell.yaml (from --config or $TELEGRAMSHELL_CONFIG),
connects to the Telegram Bot API, and executes commands from allowed,
authenticated senders. Updates arrive over long polling by default;
set telegram.webhook.enabled to serve them over HTTPS instead.

Usage:
  telegramshell serve [flags]

Examples:
  # Run with an explicit config file
  telegramshell serve --config /etc/telegramshell/telegramshell.yaml

  # Run with the config path from the environment
  TELEGRAMSHELL_CONFIG=./telegramshell.yaml telegramshell serve

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
