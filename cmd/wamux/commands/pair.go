package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jholhewres/wamux/pkg/wamux/session"
	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// newPairCmd creates the `wamux pair` command.
func newPairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair [number]",
		Short: "Pair a phone number via pairing code",
		Long: `Request a pairing code for a phone number and wait for the phone to
confirm. With no argument the number is read from ` + pairNumberEnvVar + `
or prompted interactively.

Examples:
  wamux pair 237650000001
  WAMUX_NUMBER=237650000001 wamux pair`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPair,
	}
	cmd.Flags().Duration("timeout", 2*time.Minute, "how long to wait for the phone to confirm")
	return cmd
}

func runPair(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)

	number, err := resolvePairNumber(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	tr := transport.NewWhatsmeow(cfg.Transport, logger)
	sup := session.NewSupervisor(tr, session.NewRegistry(), cfg.Session, nil, logger)
	sup.SetContext(ctx)

	code, err := sup.Pair(ctx, number)
	if err != nil {
		return fmt.Errorf("pairing %s: %w", number, err)
	}
	if code == "" {
		fmt.Printf("✅ %s is already paired\n", number)
		return nil
	}

	fmt.Printf("\n✅ Pairing code: %s\n", formatPairingCode(code))
	fmt.Println("\n➡️  On the phone: WhatsApp > Linked devices > Link a device > Link with phone number.")

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if waitForConnection(ctx, sup.Registry(), number, timeout) {
		fmt.Printf("\n✅ Session %s connected\n", number)
	} else {
		fmt.Println("\n⚠️  Phone did not confirm in time. The code may have expired; run pair again.")
	}

	sup.Shutdown(context.Background())
	return nil
}

// resolvePairNumber picks the number from the argument, the environment
// or an interactive prompt, in that order.
func resolvePairNumber(args []string) (string, error) {
	raw := ""
	if len(args) > 0 {
		raw = args[0]
	}
	if raw == "" {
		raw = os.Getenv(pairNumberEnvVar)
	}
	if raw == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return "", fmt.Errorf("no number given: pass one as argument or set %s", pairNumberEnvVar)
		}
		fmt.Print("Phone number (digits, with country code): ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("reading number: %w", err)
		}
		raw = strings.TrimSpace(line)
	}

	number := transport.BareNumber(raw)
	if number == "" {
		return "", fmt.Errorf("not a phone number: %q", raw)
	}
	return number, nil
}

// formatPairingCode groups the code in blocks of four for readability.
func formatPairingCode(code string) string {
	var groups []string
	for len(code) > 4 {
		groups = append(groups, code[:4])
		code = code[4:]
	}
	groups = append(groups, code)
	return strings.Join(groups, " ")
}

// waitForConnection polls the registry until the account connects or the
// timeout passes.
func waitForConnection(ctx context.Context, reg *session.Registry, number string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if view, ok := reg.Lookup(number); ok && view.Connected {
				return true
			}
		}
	}
	return false
}
