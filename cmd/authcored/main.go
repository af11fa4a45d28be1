// Command authcored runs the account security engine as a standalone HTTP
// service. It exposes the signup, login, verification, reset and session
// endpoints over JSON, plus a Prometheus scrape endpoint, all backed by Redis.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	authcore "github.com/callvault/authcore"
	"github.com/callvault/authcore/email"
)

func main() {
	var (
		configPath string
		addr       string
		memory     bool
	)

	root := &cobra.Command{
		Use:          "authcored",
		Short:        "Account security service (signup, login, verification, reset)",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (optional)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cfg, cleanup, err := buildEngine(configPath, memory)
			if err != nil {
				return err
			}
			defer cleanup()
			return serve(cmd.Context(), engine, cfg, addr)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", envOr("AUTHCORE_ADDR", ":8080"), "listen address")
	serveCmd.Flags().BoolVar(&memory, "memory", false, "use the in-memory store instead of Redis (development only)")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired rate-limit state and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, cleanup, err := buildEngine(configPath, false)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := engine.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(result)
		},
	}

	root.AddCommand(serveCmd, sweepCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// buildEngine assembles the engine from file config, environment overrides
// and the selected store backend. The returned cleanup closes the engine and
// the Redis client.
func buildEngine(configPath string, memory bool) (*authcore.Engine, authcore.Config, func(), error) {
	cfg := authcore.DefaultConfig()
	if configPath != "" {
		loaded, err := authcore.LoadConfigFile(configPath)
		if err != nil {
			return nil, cfg, nil, err
		}
		cfg = loaded
	}
	cfg = authcore.LoadConfigEnv(cfg)

	builder := authcore.New().WithConfig(cfg)

	var client redis.UniversalClient
	if memory {
		builder.WithMemoryStore()
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     envOr("AUTHCORE_REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("AUTHCORE_REDIS_PASSWORD"),
			DB:       envInt("AUTHCORE_REDIS_DB", 0),
		})
		builder.WithRedis(client)
	}

	sender, err := smtpSenderFromEnv()
	if err != nil {
		return nil, cfg, nil, err
	}
	if sender != nil {
		builder.WithEmailSender(sender)
	}

	engine, err := builder.Build()
	if err != nil {
		if client != nil {
			client.Close()
		}
		return nil, cfg, nil, err
	}

	cleanup := func() {
		engine.Close()
		if client != nil {
			client.Close()
		}
	}
	return engine, cfg, cleanup, nil
}

// smtpSenderFromEnv returns nil when no SMTP host is configured; the engine
// then falls back to discarding outbound mail, which suits development.
func smtpSenderFromEnv() (email.Sender, error) {
	host := os.Getenv("AUTHCORE_SMTP_HOST")
	if host == "" {
		return nil, nil
	}
	sender, err := email.NewSMTPSender(email.SMTPConfig{
		Host:     host,
		Port:     envInt("AUTHCORE_SMTP_PORT", 587),
		Username: os.Getenv("AUTHCORE_SMTP_USERNAME"),
		Password: os.Getenv("AUTHCORE_SMTP_PASSWORD"),
		From:     os.Getenv("AUTHCORE_SMTP_FROM"),
		TLSMode:  envOr("AUTHCORE_SMTP_TLS", "auto"),
		BaseURL:  envOr("AUTHCORE_BASE_URL", "http://localhost:8080"),
	})
	if err != nil {
		return nil, fmt.Errorf("smtp sender: %w", err)
	}
	return sender, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
