package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	smartbot "github.com/jxucoder/smartbot"
	channelSlack "github.com/jxucoder/smartbot/channel/slack"
	channelTelegram "github.com/jxucoder/smartbot/channel/telegram"
	"github.com/jxucoder/smartbot/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the smartbot server",
	Long:  "Start the smartbot API server and any configured chat bots.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := smartbot.NewBuilder().WithConfig(appConfig(cfg)).Build()
	if err != nil {
		return fmt.Errorf("building app: %w", err)
	}

	if cfg.SlackEnabled() {
		app.AddChannel(channelSlack.NewBot(cfg.SlackBotToken, cfg.SlackAppToken, app.Pool()))
		fmt.Println("Slack bot enabled (Socket Mode)")
	}

	if cfg.TelegramEnabled() {
		tgBot, err := channelTelegram.NewBot(cfg.TelegramBotToken, app.Pool())
		if err != nil {
			fmt.Printf("Warning: failed to initialize Telegram bot: %v\n", err)
		} else {
			app.AddChannel(tgBot)
			fmt.Println("Telegram bot enabled (long polling)")
		}
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nShutting down...")
	}()

	return app.Start(ctx)
}

// loadConfig reads ~/.smartbot/config.env into the environment
// (non-destructively) and then loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	if err := config.LoadFileIntoEnv(config.DefaultFile()); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func appConfig(cfg *config.Config) smartbot.Config {
	return smartbot.Config{
		ServerAddr:     cfg.ServerAddr,
		DataDir:        cfg.DataDir,
		Store:          cfg.Store,
		StorePath:      cfg.StorePath(),
		HistoryLimit:   cfg.HistoryLimit,
		GatewayURL:     cfg.GatewayURL,
		GatewayToken:   cfg.GatewayToken,
		GatewayCookie:  cfg.GatewayCookie,
		GatewayTimeout: cfg.GatewayTimeout,
	}
}
