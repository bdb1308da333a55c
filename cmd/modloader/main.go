// Command modloader runs the module dispatcher against a host event feed.
//
// Usage:
//
//	modloader run --config modloader.toml
//	modloader validate --config modloader.toml
//	modloader resolve --config modloader.toml --scene scene_1206 --view view_3005
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/builderkit/modloader/config"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "modloader",
		Short:         "Load feature modules for scenes and views of a hosted app",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "modloader.toml",
		"config file (.toml, .yaml or .yml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "",
		"log level, overrides the config file")

	root.AddCommand(
		newRunCmd(flags),
		newValidateCmd(flags),
		newResolveCmd(flags),
	)

	return root
}

// loadConfig loads the config file and applies the flag overrides.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "modloader:", err)
		stop()
		os.Exit(1) //nolint:gocritic
	}
}
