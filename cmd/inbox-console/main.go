// ABOUTME: Entry point for the inbox-console operator CLI
// ABOUTME: Root command, config resolution, and slog setup shared by subcommands

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/inbox-console/internal/backend"
	"github.com/2389/inbox-console/internal/config"
	"github.com/2389/inbox-console/internal/dispatch"
	"github.com/2389/inbox-console/internal/model"
)

// Version is set by goreleaser at build time.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "inbox-console",
	Short:   "Operator console for live customer conversations",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath returns the path to the config file.
// Priority: --config flag > INBOX_CONSOLE_CONFIG env var >
// XDG_CONFIG_HOME/inbox-console/config.yaml > ~/.config/inbox-console/config.yaml
func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("INBOX_CONSOLE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "inbox-console", "config.yaml")
}

func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	return cfg, nil
}

// setupLogging installs the default slog handler per the config.
func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Logging.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func newBackendClient(cfg *config.Config, logger *slog.Logger) *backend.Client {
	return backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.ClientID, cfg.Backend.APIToken, logger)
}

// buildRouter wires a transport for every enabled channel. The website
// channel always works: delivery there is persistence through the backend.
func buildRouter(cfg *config.Config, client *backend.Client, logger *slog.Logger) (*dispatch.Router, error) {
	router := dispatch.NewRouter(client, logger)

	if cfg.Channels.Facebook.Enabled {
		router.Register(model.ChannelFacebook,
			dispatch.NewGraphTransport("facebook", cfg.Channels.Facebook.AccessToken, logger))
	}
	if cfg.Channels.Instagram.Enabled {
		router.Register(model.ChannelInstagram,
			dispatch.NewGraphTransport("instagram", cfg.Channels.Instagram.AccessToken, logger))
	}
	if cfg.Channels.WhatsApp.Enabled {
		router.Register(model.ChannelWhatsApp,
			dispatch.NewWhatsAppTransport(cfg.Channels.WhatsApp.AccessToken, logger))
	}
	if cfg.Channels.Telegram.Enabled {
		tg, err := dispatch.NewTelegramTransport(cfg.Channels.Telegram.BotToken, logger)
		if err != nil {
			return nil, fmt.Errorf("creating telegram transport: %w", err)
		}
		router.Register(model.ChannelTelegram, tg)
	}

	return router, nil
}

// findConversation scans list pages for an id. The query API has no
// fetch-by-id endpoint; one-shot commands page through instead.
func findConversation(ctx context.Context, client *backend.Client, pageSize int, id string) (*model.ConversationSummary, error) {
	for page := 0; ; page++ {
		result, err := client.ListConversations(ctx, model.FilterCriteria{}, page, pageSize)
		if err != nil {
			return nil, err
		}
		for _, conv := range result.Items {
			if conv.ID == id {
				return conv, nil
			}
		}
		if !result.HasMore {
			return nil, fmt.Errorf("conversation %s: %w", id, model.ErrNotFound)
		}
	}
}
