package main

import (
	"github.com/spf13/cobra"

	"github.com/teslashibe/kavach/internal/config"
	"github.com/teslashibe/kavach/internal/log"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	backend    string
}

// newRootCmd creates the root kavach command with all subcommands attached.
func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "kavach",
		Short:         "Voice-controlled home-safety assistant",
		Long:          "kavach listens for voice commands, relays alerts and appliance\ncommands over MQTT, and learns and replays an AC remote over IR.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (default $KAVACH_CONFIG or "+config.DefaultFile+")")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&g.backend, "backend", "", "hardware backend: auto, hardware or mock")

	cmd.AddCommand(
		newRunCmd(g),
		newLearnCmd(g),
		newSendCmd(g),
		newPlayCmd(g),
		newInspectCmd(g),
		newStatusCmd(),
		newTriggerCmd(),
	)
	return cmd
}

// load reads the configuration, applies the global flags and initialises
// the logger.
func (g *globalFlags) load() (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if g.backend != "" {
		if err := cfg.SetBackend(g.backend); err != nil {
			return config.Config{}, err
		}
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	log.Init(cfg.LogLevel)
	return cfg, nil
}
