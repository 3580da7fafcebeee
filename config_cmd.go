package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivegram/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	})

	return cmd
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(redactedConfig(resolvedCfg))
	}

	return config.RenderEffective(resolvedCfg, resolvedPath, os.Stdout)
}

// redactedConfig returns a copy of cfg with every secret replaced.
func redactedConfig(cfg *config.Config) *config.Config {
	cp := *cfg

	redact := func(s *string) {
		if *s != "" {
			*s = "REDACTED"
		}
	}

	redact(&cp.Telegram.BotToken)
	redact(&cp.Google.ClientSecret)
	redact(&cp.Google.APIKey)
	redact(&cp.Storage.EncryptionKey)

	return &cp
}
