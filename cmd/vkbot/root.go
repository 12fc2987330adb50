package main

import (
	"context"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Storm-bit/vk-bot-sdk/pkg/botconfig"
	"github.com/Storm-bit/vk-bot-sdk/pkg/store"
	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi"
	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi/debug"
)

var (
	configPath  string
	noUpdate    bool
	logLevelArg string

	cfg *botconfig.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vkbot",
	Short: "Bot runner for the VK API",
	Long: `vkbot runs a bot on top of the VK API client.

It polls for updates with the long poll or receives them through the
Callback API, and can send messages or call arbitrary methods from the
command line.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = botconfig.Load(configPath, !noUpdate)
		if errors.Is(err, botconfig.ErrConfigCreated) {
			return fmt.Errorf("%w: %s", err, configPath)
		} else if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		level := cfg.LogLevel()
		if logLevelArg != "" {
			level, err = zerolog.ParseLevel(logLevelArg)
			if err != nil {
				return err
			}
		}
		if cfg.Logging.Color {
			log = debug.NewLogger(level)
		} else {
			log = debug.NewPlainLogger(cmd.ErrOrStderr(), level)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&noUpdate, "no-update", "n", false, "Don't write missing defaults back to the config file")
	rootCmd.PersistentFlags().StringVar(&logLevelArg, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*vkapi.Client, error) {
	client, err := vkapi.NewClient(cfg.ClientConfig(), log)
	if err != nil {
		return nil, err
	}
	if cfg.Proxy != "" {
		if err = client.SetProxy(cfg.Proxy); err != nil {
			return nil, fmt.Errorf("failed to set proxy: %w", err)
		}
	}
	client.EnableTyping(cfg.Typing)
	client.LongPoll().EnableLoggingUpdates(cfg.LongPoll.LogUpdates)
	return client, nil
}

// openStore opens the cursor database, or returns nil if none is configured.
func openStore(ctx context.Context) (*store.Container, error) {
	if cfg.Database.URI == "" {
		return nil, nil
	}
	return store.Open(ctx, cfg.Database, log)
}

func cursorKey() string {
	if mode, _ := cfg.AuthMode(); mode == vkapi.AuthGroup {
		return fmt.Sprintf("group:%d", cfg.GroupID)
	}
	return "user"
}
