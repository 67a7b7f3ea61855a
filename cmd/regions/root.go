package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/regions/internal/config"
	"github.com/aretw0/regions/internal/logging"
	"github.com/spf13/cobra"
)

var (
	v      = config.New()
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "regions",
	Short: "Regions keeps an image annotation label list in sync with its rendering engine",
	Long: `Regions tracks the regions drawn on an image, numbers them "Label n" and keeps
the label list consistent with the annotation engine's own record store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v)
		if err != nil {
			return err
		}
		logger = logging.New(cfg.SlogLevel())
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	bindFlag(rootCmd, "log.level", "log-level", true)
}

// bindFlag maps a cobra flag onto a config key so that flags override
// file and env values.
func bindFlag(cmd *cobra.Command, key, flag string, persistent bool) {
	flags := cmd.Flags()
	if persistent {
		flags = cmd.PersistentFlags()
	}
	cobra.CheckErr(v.BindPFlag(key, flags.Lookup(flag)))
}

