// Package botcmd contains the builtin command set. Commands are plain
// descriptors registered explicitly at startup; there is no dynamic
// discovery.
package botcmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jholhewres/wamux/pkg/wamux/dispatch"
	"github.com/jholhewres/wamux/pkg/wamux/store"
	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// Deps carries everything the builtin commands need. Commands is a
// late-bound view of the router table so the menu can render commands
// registered after this package's own.
type Deps struct {
	Store     *store.Store
	Prefix    string
	Version   string
	StartedAt time.Time
	Commands  func() []*dispatch.Command
}

const ownerOnlyReply = "This command is reserved for the owner."

// All returns the full builtin command set in registration order.
func All(d Deps) []*dispatch.Command {
	return []*dispatch.Command{
		Ping(d),
		Menu(d),
		Mode(d),
		Sudo(d),
		TagAll(),
		JID(),
	}
}

// Ping replies with liveness and uptime.
func Ping(d Deps) *dispatch.Command {
	return &dispatch.Command{
		Name:        "ping",
		Description: "Check that this session is alive",
		Execute: func(ctx context.Context, c *dispatch.Context, _ []string) error {
			up := time.Since(d.StartedAt).Round(time.Second)
			return c.Reply(ctx, fmt.Sprintf("pong 🏓\nversion: %s\nuptime: %s", d.Version, up))
		},
	}
}

// Menu lists every registered command with its description.
func Menu(d Deps) *dispatch.Command {
	return &dispatch.Command{
		Name:        "menu",
		Description: "List available commands",
		Execute: func(ctx context.Context, c *dispatch.Context, _ []string) error {
			cmds := d.Commands()
			sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

			var b strings.Builder
			b.WriteString("Available commands:")
			for _, cmd := range cmds {
				fmt.Fprintf(&b, "\n%s%s", d.Prefix, strings.ToLower(cmd.Name))
				if cmd.Description != "" {
					fmt.Fprintf(&b, " · %s", cmd.Description)
				}
			}
			return c.Reply(ctx, b.String())
		},
	}
}

// Mode shows or switches the bot mode. Switching is owner-only.
func Mode(d Deps) *dispatch.Command {
	return &dispatch.Command{
		Name:        "mode",
		Description: "Show or set the bot mode (private/public)",
		Execute: func(ctx context.Context, c *dispatch.Context, args []string) error {
			if len(args) == 0 {
				return c.Reply(ctx, "mode: "+d.Store.Mode())
			}
			if !c.IsOwner {
				return c.Reply(ctx, ownerOnlyReply)
			}

			mode := strings.ToLower(args[0])
			if err := d.Store.SetMode(mode); err != nil {
				return c.Reply(ctx, "usage: mode [private|public]")
			}
			return c.Reply(ctx, "mode set to "+mode)
		},
	}
}

// Sudo manages the privileged number list. All mutations are owner-only.
func Sudo(d Deps) *dispatch.Command {
	return &dispatch.Command{
		Name:        "sudo",
		Description: "Manage sudo numbers (add/del/list)",
		Execute: func(ctx context.Context, c *dispatch.Context, args []string) error {
			if len(args) == 0 || strings.ToLower(args[0]) == "list" {
				numbers := d.Store.Sudo()
				if len(numbers) == 0 {
					return c.Reply(ctx, "sudo list is empty")
				}
				var b strings.Builder
				b.WriteString("sudo numbers:")
				for i, n := range numbers {
					fmt.Fprintf(&b, "\n%d. %s", i+1, n)
					if i == 0 {
						b.WriteString(" (owner)")
					}
				}
				return c.Reply(ctx, b.String())
			}

			if !c.IsOwner {
				return c.Reply(ctx, ownerOnlyReply)
			}
			if len(args) < 2 {
				return c.Reply(ctx, "usage: sudo [add|del] <number>")
			}

			number := transport.BareNumber(args[1])
			if number == "" {
				return c.Reply(ctx, "not a phone number: "+args[1])
			}

			switch strings.ToLower(args[0]) {
			case "add":
				if err := d.Store.AddSudo(number); err != nil {
					return err
				}
				return c.Reply(ctx, "added "+number+" to sudo")
			case "del", "remove":
				if err := d.Store.RemoveSudo(number); err != nil {
					return err
				}
				return c.Reply(ctx, "removed "+number+" from sudo")
			default:
				return c.Reply(ctx, "usage: sudo [add|del|list]")
			}
		},
	}
}

// TagAll mentions every participant of the current group.
func TagAll() *dispatch.Command {
	return &dispatch.Command{
		Name:        "tagall",
		Description: "Mention every member of this group",
		Execute: func(ctx context.Context, c *dispatch.Context, args []string) error {
			if !c.IsGroup {
				return c.Reply(ctx, "tagall only works in groups")
			}

			info, err := c.Conn.GroupMetadata(ctx, c.Chat)
			if err != nil {
				return fmt.Errorf("fetching group metadata: %w", err)
			}

			var b strings.Builder
			if info.Subject != "" {
				fmt.Fprintf(&b, "%s\n", info.Subject)
			}
			if note := strings.Join(args, " "); note != "" {
				fmt.Fprintf(&b, "%s\n", note)
			}
			for _, p := range info.Participants {
				fmt.Fprintf(&b, "\n@%s", transport.BareNumber(p))
			}
			return c.Conn.SendText(ctx, c.Chat, b.String())
		},
	}
}

// JID replies with the raw chat and sender identifiers, useful when
// wiring numbers into the sudo list.
func JID() *dispatch.Command {
	return &dispatch.Command{
		Name:        "jid",
		Description: "Show the chat and sender JIDs",
		Execute: func(ctx context.Context, c *dispatch.Context, _ []string) error {
			return c.Reply(ctx, fmt.Sprintf("chat: %s\nsender: %s", c.Chat, c.Sender))
		},
	}
}
