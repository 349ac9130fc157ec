package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/kavach/internal/log"
	"github.com/teslashibe/kavach/pkg/audioio"
	"github.com/teslashibe/kavach/pkg/playback"
)

// newPlayCmd creates the "kavach play" subcommand.
func newPlayCmd(g *globalFlags) *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "play beep|alarm|confirm [ok|alerted|calling|help]",
		Short: "Play a prompt through the configured speaker",
		Long:  "Plays one asset the way the assistant would, including the\nvolume and mute sequence. Useful to check assets and wiring.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			// the tool always plays, whatever the voice confirm setting
			cfg.Playback.VoiceConfirm = true
			if lang != "" {
				cfg.Playback.Language = playback.ParseLanguage(lang)
			}

			sink, err := audioio.NewSink(cfg.Audio, log.Component("audio"))
			if err != nil {
				return err
			}
			defer sink.Close()

			player, err := playback.NewPlayer(cfg.Playback, sink, nil, log.L())
			if err != nil {
				return err
			}

			var (
				names []string
				play  func() bool
			)
			switch args[0] {
			case "beep":
				names, play = playback.WakeBeepNames(), player.PlayWakeBeep
			case "alarm":
				names, play = []string{playback.GasAlarmName}, player.PlayGasAlarm
			case "confirm":
				c := playback.ConfirmOK
				if len(args) == 2 {
					if c, err = playback.ParseConfirm(args[1]); err != nil {
						return err
					}
				}
				names = playback.ConfirmNames(player.Language(), c)
				play = func() bool { return player.PlayConfirmation(c) }
			default:
				return fmt.Errorf("unknown prompt %q (want beep, alarm or confirm)", args[0])
			}

			path, _, err := player.Resolver().Resolve(names...)
			if err != nil {
				return fmt.Errorf("%s: %w (searched %v)", args[0], err, player.Resolver().Prefixes())
			}
			if !play() {
				return errors.New("playback queue full")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer func() {
				cancel()
				<-player.Done()
			}()
			runErr := make(chan error, 1)
			go func() { runErr <- player.Run(ctx) }()

			ticker := time.NewTicker(20 * time.Millisecond)
			defer ticker.Stop()
			for player.Handled() == 0 {
				select {
				case err := <-runErr:
					return err
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "played %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "", "confirmation language: en or cn")
	return cmd
}
