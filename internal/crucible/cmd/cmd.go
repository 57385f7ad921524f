// Package cmd builds the crucible command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Mootikins/crucible/internal/crucible"
	"github.com/Mootikins/crucible/internal/crucible/config"
	"github.com/Mootikins/crucible/internal/crucible/options"
)

// NewDefaultCrucibleCommand creates the root command with the standard
// subcommands.
func NewDefaultCrucibleCommand() *cobra.Command {
	opts := options.NewOptions()
	var configFile string

	root := &cobra.Command{
		Use:   "crucible",
		Short: "A personal knowledge vault with an agent session",
		Long: heredoc.Doc(`
			Crucible ingests a markdown vault into an entity/graph store,
			keeps it current with merkle-diff incremental re-ingestion,
			and fronts an agent session with a terminal chat UI.
		`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.crucible/config.yaml).")
	opts.AddFlags(root.PersistentFlags())

	newApp := func() (*crucible.App, error) {
		cfg, err := config.Load(opts, configFile)
		if err != nil {
			return nil, err
		}
		return crucible.NewApp(cfg)
	}

	root.AddCommand(newChatCommand(newApp))
	root.AddCommand(newIngestCommand(newApp, opts))
	root.AddCommand(newWatchCommand(newApp))
	return root
}

func newChatCommand(newApp func() (*crucible.App, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()
			return app.RunChat(cmd.Context())
		},
	}
}

func newIngestCommand(newApp func() (*crucible.App, error), opts *options.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Ingest the vault once and exit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Vault.Dir = args[0]
			}
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.RunIngest(cmd.Context()); err != nil {
				return err
			}
			color.Green("vault ingested")
			return nil
		},
	}
}

func newWatchCommand(newApp func() (*crucible.App, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Ingest the vault and keep it in sync",
		Long: heredoc.Doc(`
			Performs a full ingest, then watches the vault directory and
			re-ingests changed notes incrementally using their stored
			merkle trees.
		`),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()
			return app.RunWatch(cmd.Context())
		},
	}
}

// Execute runs the root command, printing errors once.
func Execute() {
	if err := NewDefaultCrucibleCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}
