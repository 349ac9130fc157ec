package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/kavach/internal/log"
	"github.com/teslashibe/kavach/pkg/ir"
	"github.com/teslashibe/kavach/pkg/irio"
)

// newSendCmd creates the "kavach send" subcommand.
func newSendCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "send on|off",
		Short:     "Replay a learned AC command",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := ir.ParseSlot(args[0])
			if err != nil {
				return err
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}

			tx, err := irio.NewTransmitter(cfg.IR, log.Component("irio"))
			if err != nil {
				return err
			}
			store := ir.NewStore(cfg.StoreDir)
			bursts, err := store.Load(slot)
			if err != nil {
				return err
			}

			pipeline := ir.NewPipeline(cfg.Transmit, tx, store, log.L())
			go pipeline.Run(cmd.Context())
			if !pipeline.Enqueue(&ir.TransmitRequest{Slot: slot, Bursts: bursts}) {
				return fmt.Errorf("transmit queue full")
			}
			pipeline.Shutdown()
			<-pipeline.Done()

			fmt.Fprintf(cmd.OutOrStdout(), "sent AC %s: %d bursts\n", slot, len(bursts))
			if mock, ok := tx.(*irio.MockTransmitter); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "mock transmitter recorded %d bursts\n", len(mock.Sent()))
			}
			return nil
		},
	}
}
