package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newValidateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file, including route ambiguity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := cfg.Validate(); err != nil {
				red := color.New(color.FgRed)
				var joined interface{ Unwrap() []error }
				if errors.As(err, &joined) {
					for _, e := range joined.Unwrap() {
						red.Fprintf(out, "✗ %v\n", e) //nolint:errcheck
					}
				} else {
					red.Fprintf(out, "✗ %v\n", err) //nolint:errcheck
				}
				return fmt.Errorf("config %q is invalid", flags.configPath)
			}

			color.New(color.FgGreen).Fprintf(out, "✓ %s: %d modules, %d remote routes\n", //nolint:errcheck
				flags.configPath, len(cfg.Modules), len(cfg.RemoteRoutes))
			return nil
		},
	}
}
