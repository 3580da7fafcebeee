package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivegram/internal/config"
	"github.com/tonimelisma/drivegram/internal/credstore"
	"github.com/tonimelisma/drivegram/internal/gdrive"
	"github.com/tonimelisma/drivegram/internal/transfer"
)

var flagResolveUser int64

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <link>",
		Short: "List the files behind a Drive link",
		Long: `Enumerate a Drive link the way the bot would, without transferring
anything. With --user the stored credential of that Telegram user is used;
otherwise the request is anonymous (google.api_key, if set).`,
		Args: cobra.ExactArgs(1),
		RunE: runResolve,
	}

	cmd.Flags().Int64Var(&flagResolveUser, "user", 0, "Telegram user ID whose credential to use")

	return cmd
}

// resolvedItem is the JSON shape printed by resolve --json.
type resolvedItem struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Native   bool   `json:"native"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg := resolvedCfg
	ctx := cmd.Context()

	logger, closeLog, err := buildLogger(&cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	clients := newHTTPClients(cfg)

	svc, err := openServices(ctx, cfg, clients, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	var (
		userID string
		cred   *credstore.Credential
	)

	if flagResolveUser != 0 {
		userID = strconv.FormatInt(flagResolveUser, 10)

		if cred, err = svc.creds.Load(ctx, userID); err != nil {
			return fmt.Errorf("loading credential: %w", err)
		}

		if cred == nil {
			statusf(flagQuiet, "No usable credential for user %s, resolving anonymously\n", userID)
		}
	}

	remote := remoteFactory(config.NewHolder(cfg, resolvedPath), svc.creds, clients, logger)(ctx, userID, cred)

	items, err := remote.Resolve(ctx, args[0])
	if err != nil {
		return err
	}

	if flagJSON {
		return printResolveJSON(os.Stdout, items)
	}

	printResolveTable(os.Stdout, items)

	return nil
}

func printResolveJSON(w io.Writer, items []gdrive.Item) error {
	out := make([]resolvedItem, len(items))
	for i, it := range items {
		out[i] = resolvedItem{
			ID:       it.ID,
			Path:     it.Path,
			MimeType: it.MimeType,
			Size:     it.Size,
			Native:   it.Kind == gdrive.KindNativeDocument,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printResolveTable(w io.Writer, items []gdrive.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No files.")
		return
	}

	rows := make([][]string, len(items))

	var total int64

	for i, it := range items {
		size := transfer.FormatSize(it.Size)
		if it.Kind == gdrive.KindNativeDocument {
			size = "native"
		}

		rows[i] = []string{it.Path, size, it.ID}
		total += it.Size
	}

	printTable(w, []string{"PATH", "SIZE", "ID"}, rows)
	fmt.Fprintf(w, "\n%d files, %s\n", len(items), transfer.FormatSize(total))
}
