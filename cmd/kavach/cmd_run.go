package main

import (
	"github.com/spf13/cobra"

	"github.com/teslashibe/kavach/internal/log"
	"github.com/teslashibe/kavach/pkg/assistant"
)

// newRunCmd creates the "kavach run" subcommand.
func newRunCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the assistant",
		Long:  "Starts voice handling, MQTT, IR, audio playback and the web dashboard\nand runs until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}

			app, err := assistant.New(cfg, log.L())
			if err != nil {
				return err
			}
			if err := app.Init(); err != nil {
				return err
			}
			defer app.Shutdown()

			return app.Run(cmd.Context())
		},
	}
}
