package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Individeveloper/StockPocket/internal/domain"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved conversations",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsSearchCmd())
	cmd.AddCommand(sessionsDeleteCmd())
	cmd.AddCommand(sessionsExportCmd())
	return cmd
}

// withStore opens the session store for a one-shot subcommand.
func withStore(fn func(ctx context.Context, store domain.SessionStore) error) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func sessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store domain.SessionStore) error {
				list, err := store.ListAll(ctx)
				if err != nil {
					return err
				}
				printSessionTable(list)
				return nil
			})
		},
	}
}

func sessionsSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Find conversations by title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store domain.SessionStore) error {
				list, err := store.Search(ctx, args[0])
				if err != nil {
					return err
				}
				printSessionTable(list)
				return nil
			})
		},
	}
}

func sessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id|number]",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store domain.SessionStore) error {
				sess, err := resolveSessionArg(ctx, store, args[0])
				if err != nil {
					return err
				}
				if err := store.Delete(ctx, sess.ID); err != nil {
					return err
				}
				fmt.Printf("Deleted %q (%s)\n", sess.Title, sess.ID)
				return nil
			})
		},
	}
}

func sessionsExportCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export [id|number]",
		Short: "Export a conversation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store domain.SessionStore) error {
				sess, err := resolveSessionArg(ctx, store, args[0])
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(sess, "", "  ")
				if err != nil {
					return err
				}
				if outPath == "" {
					fmt.Println(string(data))
					return nil
				}
				if err := os.WriteFile(outPath, data, 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", outPath)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to file instead of stdout")
	return cmd
}

// resolveSessionArg accepts a 1-based number from the list output, a full
// session ID, or a unique ID prefix.
func resolveSessionArg(ctx context.Context, store domain.SessionStore, arg string) (*domain.Session, error) {
	list, err := store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	domain.SortSessionsByUpdated(list)

	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(list) {
			return nil, fmt.Errorf("number %d out of range (1-%d)", n, len(list))
		}
		return list[n-1], nil
	}

	var match *domain.Session
	for _, s := range list {
		if s.ID == arg {
			return s, nil
		}
		if strings.HasPrefix(s.ID, arg) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous prefix %q", arg)
			}
			match = s
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no conversation matching %q", arg)
	}
	return match, nil
}

func printSessionTable(list []*domain.Session) {
	if len(list) == 0 {
		fmt.Println("No conversations.")
		return
	}
	domain.SortSessionsByUpdated(list)
	for i, s := range list {
		fmt.Printf("%2d. %-40s %3d messages  %s  %s\n",
			i+1, s.Title, len(s.Messages), s.UpdatedAt.Format("2006-01-02 15:04"), s.ID)
	}
}
