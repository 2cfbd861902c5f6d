package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/memohai/wabiz/db"
	"github.com/memohai/wabiz/internal/agent"
	"github.com/memohai/wabiz/internal/apiclient"
	"github.com/memohai/wabiz/internal/auth"
	"github.com/memohai/wabiz/internal/boot"
	internaldb "github.com/memohai/wabiz/internal/db"
	"github.com/memohai/wabiz/internal/logger"
	"github.com/memohai/wabiz/internal/version"
)

const cliSubject = "cli"

func newChatCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the agent; starts an interactive session without a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if query := strings.TrimSpace(strings.Join(args, " ")); query != "" {
				return sendChat(ctx, client, out, query)
			}
			return runInteractive(ctx, client, cmd.InOrStdin(), out)
		},
	}
}

func runInteractive(ctx context.Context, client *apiclient.Client, in io.Reader, out io.Writer) error {
	reader := bufio.NewScanner(in)
	reader.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	fmt.Fprint(out, "You: ")
	for reader.Scan() {
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			fmt.Fprint(out, "You: ")
			continue
		}
		lower := strings.ToLower(line)
		if lower == "exit" || lower == "quit" {
			return nil
		}
		if err := sendChat(ctx, client, out, line); err != nil {
			return err
		}
		fmt.Fprint(out, "You: ")
	}
	return reader.Err()
}

func sendChat(ctx context.Context, client *apiclient.Client, out io.Writer, message string) error {
	resp, err := client.Chat(ctx, message, agent.Options{})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Agent: %s\n", resp.Response)
	return nil
}

func newSendCmd(opts *cliOptions) *cobra.Command {
	var aliases map[string]string
	cmd := &cobra.Command{
		Use:   `send "<message>" to <recipient>`,
		Short: "Run a send command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(opts)
			if err != nil {
				return err
			}
			result, err := client.SendCommand(cmd.Context(), "send "+strings.Join(args, " "), aliases)
			if err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("send failed: %s", result.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", result.Message, result.ContactID)
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&aliases, "alias", nil, "Extra alias, e.g. --alias john=15550001111")
	return cmd
}

func newContactsCmd(opts *cliOptions) *cobra.Command {
	contacts := &cobra.Command{
		Use:   "contacts",
		Short: "Manage contact names",
	}
	contacts.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List named contacts",
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := newClient(opts)
				if err != nil {
					return err
				}
				names, err := client.ContactNames(cmd.Context())
				if err != nil {
					return err
				}
				return printNames(cmd.OutOrStdout(), names)
			},
		},
		&cobra.Command{
			Use:   "rename <phone> <name>",
			Short: "Set the display name of a phone number",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := newClient(opts)
				if err != nil {
					return err
				}
				name := strings.Join(args[1:], " ")
				if err := client.RenameContact(cmd.Context(), args[0], name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "forget <phone>",
			Short: "Remove the stored name of a phone number",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := newClient(opts)
				if err != nil {
					return err
				}
				return client.ForgetContact(cmd.Context(), args[0])
			},
		},
	)
	return contacts
}

func printNames(out io.Writer, names map[string]string) error {
	keys := make([]string, 0, len(names))
	for key := range names {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PHONE\tNAME")
	for _, key := range keys {
		fmt.Fprintf(w, "%s\t%s\n", key, names[key])
	}
	return w.Flush()
}

func newHistoryCmd(opts *cliOptions) *cobra.Command {
	var limit int
	var clear bool
	cmd := &cobra.Command{
		Use:   "history [contact]",
		Short: "Show a contact conversation, or the agent history without a contact",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				records, err := client.Conversation(ctx, args[0], limit)
				if err != nil {
					return err
				}
				for _, r := range records {
					fmt.Fprintf(out, "[%s] %s -> %s: %s\n", r.Datetime, r.Sender, r.Receiver, r.Text)
				}
				return nil
			}
			if clear {
				return client.ClearAgentHistory(ctx)
			}
			turns, err := client.AgentHistory(ctx)
			if err != nil {
				return err
			}
			for _, turn := range turns {
				fmt.Fprintf(out, "[%s] %s: %s\n", turn.Timestamp, strings.ToUpper(turn.Role), turn.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Number of messages to show")
	cmd.Flags().BoolVar(&clear, "clear", false, "Clear the agent history")
	return cmd
}

func newMigrateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down|version|force N>",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{internaldb.MigrateUp, internaldb.MigrateDown, internaldb.MigrateVersion, internaldb.MigrateForce},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return internaldb.RunMigrate(logger.L, cfg.Postgres, db.MigrationsFS, "migrations", args[0], args[1:])
		},
	}
}

func newTokenCmd(opts *cliOptions) *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token from auth.jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, rc, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = rc.JwtExpiresIn
			}
			token, err := mintToken(rc, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", cliSubject, "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to auth.jwt_expires_in)")
	return cmd
}

func mintToken(rc *boot.RuntimeConfig, subject string, ttl time.Duration) (string, error) {
	token, _, err := auth.GenerateToken(subject, rc.JwtSecret, ttl)
	return token, err
}

func newVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version.GetInfo()})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wabiz %s\n", version.GetInfo())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
