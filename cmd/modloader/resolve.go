package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/builderkit/modloader/activation"
	"github.com/builderkit/modloader/log"
	"github.com/builderkit/modloader/route"
)

func newResolveCmd(flags *rootFlags) *cobra.Command {
	var scene, view string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the module a scene and view would activate, without loading it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			descs, remotes := cfg.Descriptors(nil)
			rs := make([]route.Remote, 0, len(remotes))
			for _, r := range remotes {
				rs = append(rs, route.Remote{Route: r})
			}
			resolver, err := route.NewResolver(descs, rs, log.NewNullLogger())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			bold := color.New(color.Bold)
			actx := activation.NewContext(scene, view)

			if d := resolver.ResolveStatic(actx); d != nil {
				bold.Fprintf(out, "%s -> %s\n", actx.Key(), d.ID) //nolint:errcheck
				fmt.Fprintf(out, "  url:         %s\n", d.SourceURL)
				fmt.Fprintf(out, "  initializer: %s\n", d.InitializerName())
				if c, err := d.Config(actx); err == nil {
					fmt.Fprintf(out, "  config keys: %v\n", configKeys(c))
				} else {
					fmt.Fprintf(out, "  config:      %v\n", err)
				}
				return nil
			}

			for _, r := range remotes {
				if !r.Eligible(actx) {
					continue
				}
				bold.Fprintf(out, "%s -> remote route %s\n", actx.Key(), r.ID) //nolint:errcheck
				fmt.Fprintf(out, "  field:   %s\n", r.Field)
				for _, v := range sortedBranches(r.Branches) {
					fmt.Fprintf(out, "  %q -> %s\n", v, r.Branches[v].ID)
				}
				fmt.Fprintf(out, "  default -> %s\n", r.Default.ID)
				return nil
			}

			color.New(color.FgYellow).Fprintf(out, "%s -> no module\n", actx.Key()) //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().StringVar(&scene, "scene", "", "scene key, e.g. scene_1206")
	cmd.Flags().StringVar(&view, "view", "", "view key, empty for the scene itself")
	_ = cmd.MarkFlagRequired("scene")

	return cmd
}

func configKeys(c activation.Config) []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedBranches(branches map[string]*activation.Descriptor) []string {
	values := make([]string, 0, len(branches))
	for v := range branches {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}
