// Package app wires the alarmd commands.
package app

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-alarm/config"
	"github.com/nvr-ai/go-alarm/storage"
)

// NewCommand creates the alarmd root command.
func NewCommand() *cobra.Command {
	o := NewOptions()

	cmd := &cobra.Command{
		Use:           "alarmd",
		Short:         "Camera stream analysis and alarm engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().AddFlagSet(o.Flags())

	cmd.AddCommand(
		newRunCommand(o),
		newMigrateCommand(o),
		newAssignCommand(o),
		newAlarmsCommand(o),
		newProbeCommand(o),
	)
	return cmd
}

func newRunCommand(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sessions of every enabled assignment until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.Config()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, cfg)
		},
	}
}

// openStore opens and migrates the configured database.
func openStore(cfg *config.Config) (*storage.Store, error) {
	store, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// withStore runs fn with the loaded configuration and an open, migrated store.
func withStore(o *Options, fn func(cmd *cobra.Command, cfg *config.Config, store *storage.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := o.Config()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(cmd, cfg, store)
	}
}
