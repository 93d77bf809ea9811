package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionEndCmd)
	sessionCmd.PersistentFlags().StringVar(&daemonAddr, "addr", "http://127.0.0.1:8080", "daemon address")
}

var daemonAddr string

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect active sessions on a running daemon",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(strings.TrimSuffix(daemonAddr, "/") + "/api/sessions")
		if err != nil {
			return fmt.Errorf("query daemon: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("daemon returned %s", resp.Status)
		}

		var sessions []struct {
			SessionID      string `json:"session_id"`
			AgentID        string `json:"agent_id"`
			CallID         string `json:"call_id"`
			Language       string `json:"language"`
			StartTime      string `json:"start_time"`
			UserMessages   int    `json:"user_messages"`
			AgentResponses int    `json:"agent_responses"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		if len(sessions) == 0 {
			fmt.Println("No active sessions.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tAGENT\tCALL\tLANG\tUSER\tAGENT MSGS\tSTARTED")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				s.SessionID, s.AgentID, s.CallID, s.Language,
				s.UserMessages, s.AgentResponses, s.StartTime,
			)
		}
		return w.Flush()
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <room>",
	Short: "Finalize an active session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := json.Marshal(map[string]string{"room": args[0]})
		if err != nil {
			return err
		}
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Post(
			strings.TrimSuffix(daemonAddr, "/")+"/events/left",
			"application/json",
			bytes.NewReader(body),
		)
		if err != nil {
			return fmt.Errorf("query daemon: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("daemon returned %s", resp.Status)
		}

		var result map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Session %s: %s\n", args[0], result["status"])
		return nil
	},
}
