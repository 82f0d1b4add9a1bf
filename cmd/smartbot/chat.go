package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	smartbot "github.com/jxucoder/smartbot"
	"github.com/jxucoder/smartbot/channel"
	"github.com/jxucoder/smartbot/conversation"
	"github.com/jxucoder/smartbot/gateway"
	"github.com/jxucoder/smartbot/model"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant in the terminal",
	Long: `Start an interactive conversation. History is shared with the server's
data directory.

In addition to the commands listed by /help:

  /attach <path>   upload a file into the conversation
  /dictate         capture a voice message
  /quit            leave`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := smartbot.NewBuilder().WithConfig(appConfig(cfg)).Build()
	if err != nil {
		return fmt.Errorf("building app: %w", err)
	}
	defer app.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return chatLoop(ctx, app.Conversation(), os.Stdin, os.Stdout)
}

// chatLoop reads lines from in until EOF or /quit and writes replies to out.
func chatLoop(ctx context.Context, conv *conversation.Controller, in io.Reader, out io.Writer) error {
	printMessage(out, conv.Messages()[0])
	fmt.Fprintln(out, "(type /help for commands)")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")

		switch cmd {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/attach":
			fmt.Fprintln(out, attachPath(ctx, conv, out, strings.TrimSpace(arg)))
		case "/dictate":
			text, err := conv.Dictate(ctx)
			if err != nil {
				fmt.Fprintf(out, "Dictation failed: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Heard: %q\nSend it? [y/N] ", text)
			if !scanner.Scan() {
				return scanner.Err()
			}
			if strings.EqualFold(strings.TrimSpace(scanner.Text()), "y") {
				fmt.Fprintln(out, channel.Handle(ctx, conv, text))
			}
		default:
			fmt.Fprintln(out, channel.Handle(ctx, conv, line))
		}
	}
}

func attachPath(ctx context.Context, conv *conversation.Controller, out io.Writer, path string) string {
	if path == "" {
		return "Usage: /attach <path>"
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("Cannot open %s: %v", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Sprintf("Cannot read %s: %v", path, err)
	}
	if info.IsDir() {
		return fmt.Sprintf("%s is a directory", path)
	}

	fmt.Fprintf(out, "Uploading %s (%s)...\n", info.Name(), humanize.Bytes(uint64(info.Size())))
	return channel.Attach(ctx, conv, gateway.File{
		Name:    filepath.Base(path),
		Size:    info.Size(),
		Content: f,
	})
}

func printMessage(out io.Writer, m model.Message) {
	who := "assistant"
	if m.IsUser() {
		who = "you"
	}
	fmt.Fprintf(out, "[%s] %s: %s\n", m.Clock(), who, m.Text)
}
