package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jholhewres/wamux/pkg/wamux/session"
	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// newLogoutCmd creates the `wamux logout` command.
func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout <number>",
		Short: "Log an account out and close its session",
		Long: `Invalidate the account's session server-side. Credentials stay on
disk unless --forget is given.

Examples:
  wamux logout 237650000001
  wamux logout 237650000001 --forget`,
		Args: cobra.ExactArgs(1),
		RunE: runLogout,
	}
	cmd.Flags().Bool("forget", false, "also delete the persisted credentials")
	return cmd
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)

	number := transport.BareNumber(args[0])
	if number == "" {
		return fmt.Errorf("not a phone number: %q", args[0])
	}

	ctx := cmd.Context()
	tr := transport.NewWhatsmeow(cfg.Transport, logger)
	sup := session.NewSupervisor(tr, session.NewRegistry(), cfg.Session, nil, logger)
	sup.SetContext(ctx)

	if err := sup.StartAccount(ctx, number); err != nil {
		return fmt.Errorf("opening session %s: %w", number, err)
	}
	if err := sup.CloseAccount(ctx, number, true); err != nil {
		return fmt.Errorf("logging out %s: %w", number, err)
	}
	fmt.Printf("📴 Session %s logged out\n", number)

	if forget, _ := cmd.Flags().GetBool("forget"); forget {
		if err := tr.DropCredentials(number); err != nil {
			return fmt.Errorf("deleting credentials: %w", err)
		}
		fmt.Printf("🗑️ Credentials for %s deleted\n", number)
	}
	return nil
}
