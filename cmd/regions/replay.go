package main

import (
	"github.com/aretw0/regions/internal/cli"
	"github.com/aretw0/regions/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <script.yaml>",
	Short: "Replay a recorded annotation session against a headless engine",
	Long: `Replays a YAML script of load, add, draw, touch, edit, delete,
external_remove, reconcile and wait steps, printing the label list after
each step. Expectations in the script make replay usable as a check.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := cli.LoadScript(args[0])
		if err != nil {
			return err
		}

		plain, _ := cmd.Flags().GetBool("plain")
		quiet, _ := cmd.Flags().GetBool("quiet")
		opts := cli.ReplayOptions{
			Out:    cmd.OutOrStdout(),
			Logger: logger,
			Quiet:  quiet,
		}
		if !plain {
			opts.Render = tui.NewRenderer()
		}

		res, err := cli.Replay(cmd.Context(), script, opts)
		if err != nil {
			return err
		}
		if !quiet {
			cmd.Printf(">>> Replayed %d steps, %d labels.\n", res.Steps, len(res.Labels))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Bool("plain", false, "Print raw markdown instead of styled output")
	replayCmd.Flags().BoolP("quiet", "q", false, "Only report failures")
}
