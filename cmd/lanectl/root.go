package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/freeeve/starlane/pkg/starlane"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lanectl",
		Short:         "Offline tools for starlane boards and orders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				level = zerolog.DebugLevel
			}
			// Logs go to stderr so stdout stays clean for boards and result logs.
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: true}).
				Level(level).With().Timestamp().Logger()
		},
	}
	root.PersistentFlags().String("map", "default", "built-in map name")
	root.PersistentFlags().String("map-file", "", "JSON map description; overrides --map")
	root.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	root.AddCommand(newTopologyCmd(), newInitCmd(), newAdjudicateCmd(), newTokenCmd())
	return root
}

// loadMap resolves the --map and --map-file flags.
func loadMap(cmd *cobra.Command) (*starlane.Topology, error) {
	if path, _ := cmd.Flags().GetString("map-file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open map: %w", err)
		}
		defer f.Close()
		return starlane.ReadMap(f)
	}
	name, _ := cmd.Flags().GetString("map")
	return starlane.MapByName(name)
}
