// smartbot - a conversational assistant front end.
//
// Serves a chat API backed by a remote model gateway, with optional Slack
// and Telegram bots, and a terminal client.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "smartbot",
	Short: "smartbot - conversational assistant",
	Long: `smartbot serves an AI chat conversation over HTTP, Slack and Telegram.

  smartbot serve                 Start the server
  smartbot chat                  Chat in the terminal
  smartbot history list          List archived conversations
  smartbot history delete <id>   Delete an archived conversation
  smartbot history clear         Delete all archived conversations
  smartbot watch                 Follow the web conversation live`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("SMARTBOT_SERVER", "http://localhost:7080"), "smartbot server URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
