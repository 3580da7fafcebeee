package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newCredsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "creds",
		Short: "Inspect stored Drive credentials",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users with a stored credential",
		Args:  cobra.NoArgs,
		RunE:  runCredsList,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <userID>",
		Short: "Delete a user's stored credential",
		Args:  cobra.ExactArgs(1),
		RunE:  runCredsRemove,
	})

	return cmd
}

// credSummary is what creds list shows. Tokens are never printed.
type credSummary struct {
	UserID      string   `json:"user_id"`
	Expiry      string   `json:"expiry,omitempty"`
	Refreshable bool     `json:"refreshable"`
	Scopes      []string `json:"scopes"`
	Readable    bool     `json:"readable"`
}

func runCredsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	logger, closeLog, err := buildLogger(&resolvedCfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	svc, err := openServices(ctx, resolvedCfg, newHTTPClients(resolvedCfg), logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	ids, err := svc.creds.List(ctx)
	if err != nil {
		return err
	}

	summaries := make([]credSummary, 0, len(ids))

	for _, id := range ids {
		s := credSummary{UserID: id}

		// Peek never refreshes or deletes; an unreadable record (wrong key)
		// is listed so it can be removed.
		cred, err := svc.creds.Peek(ctx, id)
		if err == nil && cred != nil {
			s.Readable = true
			s.Refreshable = cred.RefreshToken != ""
			s.Scopes = cred.Scopes

			if !cred.Expiry.IsZero() {
				s.Expiry = cred.Expiry.Format("2006-01-02 15:04:05")
			}
		}

		summaries = append(summaries, s)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(summaries)
	}

	if len(summaries) == 0 {
		fmt.Println("No stored credentials.")
		return nil
	}

	rows := make([][]string, len(summaries))
	for i, s := range summaries {
		rows[i] = credRow(s)
	}

	printTable(os.Stdout, []string{"USER", "EXPIRY", "REFRESH", "SCOPES"}, rows)

	return nil
}

func credRow(s credSummary) []string {
	if !s.Readable {
		return []string{s.UserID, "(unreadable)", "-", "-"}
	}

	expiry := s.Expiry
	if expiry == "" {
		expiry = "never"
	}

	refresh := "no"
	if s.Refreshable {
		refresh = "yes"
	}

	return []string{s.UserID, expiry, refresh, strings.Join(s.Scopes, " ")}
}

func runCredsRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	logger, closeLog, err := buildLogger(&resolvedCfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	svc, err := openServices(ctx, resolvedCfg, newHTTPClients(resolvedCfg), logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	removed, err := svc.creds.Delete(ctx, args[0])
	if err != nil {
		return err
	}

	if !removed {
		return fmt.Errorf("no credential stored for user %s", args[0])
	}

	statusf(flagQuiet, "Removed credential for user %s\n", args[0])

	return nil
}
