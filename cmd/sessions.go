package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/fieldflow-ai/fieldflow/internal/session"
	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored onboarding sessions",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsClearCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(initConfig())
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer store.Close()

			infos, err := store.List()
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("no sessions")
				return nil
			}
			for _, info := range infos {
				state := "in progress"
				if info.Completed {
					state = "complete"
				}
				fmt.Printf("%s  %s  %d fields, %d messages, %s\n",
					info.ID,
					info.UpdatedAt.Format(time.RFC3339),
					info.Fields, info.Messages, state)
			}
			return nil
		},
	}
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session's collected values and conversation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(initConfig())
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer store.Close()

			sess, err := store.Load(args[0])
			if err != nil {
				if errors.Is(err, session.ErrNotFound) {
					return fmt.Errorf("no session %q", args[0])
				}
				return err
			}

			fmt.Printf("session: %s\n", sess.ID)
			fmt.Printf("created: %s\n", sess.CreatedAt.Format(time.RFC3339))
			fmt.Printf("updated: %s\n", sess.UpdatedAt.Format(time.RFC3339))
			if sess.Completed {
				fmt.Println("state:   complete")
			} else {
				fmt.Printf("state:   in progress (field %d of %d: %s)\n",
					sess.CurrentIndex+1, len(sess.Fields), sess.CurrentField)
			}

			fmt.Println("\nvalues:")
			for _, spec := range sess.Fields {
				if v, ok := sess.Extracted[spec.Name]; ok {
					fmt.Printf("  %s: %s\n", spec.Name, v)
				} else {
					fmt.Printf("  %s: (pending)\n", spec.Name)
				}
			}

			fmt.Println("\nhistory:")
			for _, m := range sess.History {
				fmt.Printf("  [%s] %s: %s\n",
					m.Timestamp.Format("15:04:05"), m.Role, m.Content)
			}
			return nil
		},
	}
}

func newSessionsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(initConfig())
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer store.Close()

			if err := store.Delete(args[0]); err != nil {
				if errors.Is(err, session.ErrNotFound) {
					return fmt.Errorf("no session %q", args[0])
				}
				return err
			}
			fmt.Printf("deleted session %s\n", args[0])
			return nil
		},
	}
}
