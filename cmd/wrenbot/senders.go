package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/perchlabs/wrenbot/kernel/session/sqlitestore"
)

// newSendersCmd manages the Telegram pairing queue: unapproved senders park
// as pending connections until an operator approves or ignores them.
func newSendersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "senders",
		Short: "Manage Telegram sender approvals",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "pending",
			Short: "List senders waiting for approval",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(store *sqlitestore.Store) error {
					pending, err := store.PendingConnections(cmd.Context())
					if err != nil {
						return err
					}
					if len(pending) == 0 {
						fmt.Println("No pending connections.")
						return nil
					}
					for _, p := range pending {
						name := strings.TrimSpace(p.FirstName + " " + p.LastName)
						if p.Username != "" {
							name = "@" + p.Username
						}
						if name == "" {
							name = "(no name)"
						}
						fmt.Printf("%d\t%s\t%s\n", p.SenderID, name, p.FirstSeen.Format(time.RFC3339))
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "approve <sender-id>",
			Short: "Approve a pending sender",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseSenderID(args[0])
				if err != nil {
					return err
				}
				return withStore(func(store *sqlitestore.Store) error {
					if err := store.ApprovePending(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Printf("Approved sender %d.\n", id)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "ignore <sender-id>",
			Short: "Drop a pending sender without approving it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseSenderID(args[0])
				if err != nil {
					return err
				}
				return withStore(func(store *sqlitestore.Store) error {
					if err := store.IgnorePending(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Printf("Ignored sender %d.\n", id)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "allowed",
			Short: "List approved senders",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(store *sqlitestore.Store) error {
					allowed, err := store.AllowedSenders(cmd.Context())
					if err != nil {
						return err
					}
					if len(allowed) == 0 {
						fmt.Println("No approved senders.")
						return nil
					}
					for _, id := range allowed {
						fmt.Println(id)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func withStore(fn func(*sqlitestore.Store) error) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	store, err := sqlitestore.New(filepath.Join(cfg.Storage.DataDir, "wrenbot.db"))
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func parseSenderID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sender id %q", raw)
	}
	return id, nil
}
