package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jxucoder/smartbot/model"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage archived conversations on the server",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived conversations, most recent first",
	RunE:  runHistoryList,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [session-id]",
	Short: "Delete an archived conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all archived conversations",
	RunE:  runHistoryClear,
}

func init() {
	historyCmd.AddCommand(historyListCmd, historyDeleteCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	resp, err := http.Get(serverURL + "/api/history")
	if err != nil {
		return fmt.Errorf("connecting to server: %w\nIs the server running? Start it with: smartbot serve", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}

	var sessions []model.Session
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return printSessions(os.Stdout, sessions, time.Now())
}

// titleWidth caps the TITLE column so each session stays on one line.
const titleWidth = 24

func printSessions(out io.Writer, sessions []model.Session, now time.Time) error {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No conversation history.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tCREATED")
	for _, s := range sessions {
		title := model.Ellipsize(strings.Join(strings.Fields(s.Title), " "), titleWidth)
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, title, len(s.Messages), humanize.RelTime(s.CreatedAt, now, "ago", "from now"))
	}
	return w.Flush()
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	if err := deleteRequest(serverURL + "/api/history/" + args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	if err := deleteRequest(serverURL + "/api/history"); err != nil {
		return err
	}
	fmt.Println("History cleared.")
	return nil
}

func deleteRequest(url string) error {
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}
