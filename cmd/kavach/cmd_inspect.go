package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/kavach/pkg/ir"
	"github.com/teslashibe/kavach/pkg/playback"
)

// newInspectCmd creates the "kavach inspect" subcommand.
func newInspectCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [file...]",
		Short: "Describe stored IR commands or WAV assets",
		Long:  "With no arguments, describes the learned AC On and AC Off commands in\nthe store directory. Files ending in .wav are read as audio assets.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				cfg, err := g.load()
				if err != nil {
					return err
				}
				store := ir.NewStore(cfg.StoreDir)
				args = []string{store.Path(ir.SlotOn), store.Path(ir.SlotOff)}
			}

			var failed int
			for _, path := range args {
				var err error
				if strings.EqualFold(filepath.Ext(path), ".wav") {
					err = inspectWAV(out, path)
				} else {
					err = inspectCommand(out, path)
				}
				if err != nil {
					fmt.Fprintf(out, "%s: %v\n", path, err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be read", failed, len(args))
			}
			return nil
		},
	}
}

func inspectCommand(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bursts, err := ir.Decode(f)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s: %d bursts\n", path, len(bursts))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tgap\tsymbols\tduration")
	for i, b := range bursts {
		fmt.Fprintf(tw, "  %d\t%v\t%d\t%v\n", i+1, b.GapDuration(), len(b.Symbols),
			time.Duration(b.Duration())*time.Microsecond)
	}
	return tw.Flush()
}

func inspectWAV(w io.Writer, path string) error {
	wav, err := playback.LoadFile(path)
	if err != nil {
		return err
	}
	samples := len(wav.PCM) / 2
	dur := time.Duration(samples) * time.Second / time.Duration(wav.SampleRate)
	fmt.Fprintf(w, "%s: %d Hz, %d-bit, %d samples, %v\n",
		path, wav.SampleRate, wav.BitsPerSample, samples, dur.Round(time.Millisecond))
	return nil
}
