package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jxucoder/smartbot/model"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the web conversation as it happens",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, serverURL+"/api/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}
	return followEvents(resp.Body, cmd.OutOrStdout())
}

// followEvents prints SSE conversation events from r until it ends.
func followEvents(r io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}

		var event struct {
			Type    string         `json:"type"`
			Message *model.Message `json:"message"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		switch event.Type {
		case "typing":
			fmt.Fprintln(out, "\033[36m… assistant is typing\033[0m")
		case "reset":
			fmt.Fprintln(out, "\033[33m--- conversation replaced ---\033[0m")
		case "message":
			if event.Message != nil {
				printMessage(out, *event.Message)
			}
		}
	}
	return scanner.Err()
}
