package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/wamux/pkg/wamux/session"
	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// newSessionsCmd creates the `wamux sessions` command.
func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List paired accounts and their live state",
		Long: `List every account with persisted credentials. When the daemon is
running its health endpoint is queried for the live connection state.`,
		RunE: runSessions,
	}
	return cmd
}

func runSessions(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)

	tr := transport.NewWhatsmeow(cfg.Transport, logger)
	accounts, err := tr.KnownAccounts()
	if err != nil {
		return fmt.Errorf("listing accounts: %w", err)
	}
	if len(accounts) == 0 {
		fmt.Println("No paired accounts. Run: wamux pair <number>")
		return nil
	}

	live := fetchLiveViews(cfg.Gateway.Address)

	fmt.Printf("%-16s %s\n", "NUMBER", "STATE")
	for _, number := range accounts {
		state := "offline (daemon not running)"
		if live != nil {
			state = "disconnected"
			if view, ok := live[number]; ok {
				if view.Connected {
					state = "connected"
				} else if view.RetryCount > 0 {
					state = fmt.Sprintf("reconnecting (attempt %d)", view.RetryCount)
				}
			}
		}
		fmt.Printf("%-16s %s\n", number, state)
	}
	return nil
}

// fetchLiveViews queries the running daemon's health endpoint. Returns
// nil when the daemon is unreachable.
func fetchLiveViews(address string) map[string]session.View {
	if address == "" {
		return nil
	}
	if address[0] == ':' {
		address = "localhost" + address
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + address + "/health")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var body struct {
		Sessions []session.View `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil
	}

	views := make(map[string]session.View, len(body.Sessions))
	for _, v := range body.Sessions {
		views[v.AccountID] = v
	}
	return views
}
