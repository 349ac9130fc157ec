package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/teslashibe/kavach/internal/log"
	"github.com/teslashibe/kavach/pkg/dispatch"
	"github.com/teslashibe/kavach/pkg/ir"
	"github.com/teslashibe/kavach/pkg/irio"
	"github.com/teslashibe/kavach/pkg/ui"
)

// consoleNotifier prints learn prompts instead of drawing them.
type consoleNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func (n *consoleNotifier) SetStatusAsync(text string, _ ui.StatusStyle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, text)
}

func (n *consoleNotifier) SetLightAsync(ui.Light) {}

// newLearnCmd creates the "kavach learn" subcommand.
func newLearnCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "learn",
		Short: "Record the AC remote's On and Off buttons",
		Long:  "Captures AC On and AC Off presses alternately and saves both\ncommands to the store directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			opener, err := irio.NewOpener(cfg.IR, log.Component("irio"))
			if err != nil {
				return err
			}
			learn := cfg.Learn
			learn.Device = cfg.IR.RXDevice
			store := ir.NewStore(cfg.StoreDir)
			session := ir.NewSession(learn, opener, store, &consoleNotifier{w: out}, log.L())

			results := make(chan ir.Result, 1)
			if err := session.Start(func(r ir.Result) { results <- r }); err != nil {
				return err
			}
			fmt.Fprintln(out, dispatch.PromptLearnStart)

			var res ir.Result
			select {
			case res = <-results:
			case <-cmd.Context().Done():
				session.Stop()
				res = <-results
			}

			if !res.OK {
				fmt.Fprintln(out, dispatch.PromptLearnFailed)
				return fmt.Errorf("learn %s: %w", res.SessionID, res.Err)
			}
			fmt.Fprintln(out, dispatch.PromptLearnOK)
			fmt.Fprintf(out, "saved %s and %s (on valid: %t, off valid: %t)\n",
				store.Path(ir.SlotOn), store.Path(ir.SlotOff), res.OnValid, res.OffValid)
			return nil
		},
	}
}
