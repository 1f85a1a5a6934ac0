package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/aeroipc/aeroipc-go/pkg/aero"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
	"github.com/aeroipc/aeroipc-go/pkg/logbuffer"
)

func newPongCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pong",
		Short: "Echo ping messages back for latency measurement",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client, err := aero.Connect(newClientContext(cfg))
			if err != nil {
				return err
			}
			defer client.Close()

			sub, err := awaitSubscription(client, cfg.Channel, cfg.StreamID)
			if err != nil {
				return err
			}
			pub, err := awaitPublication(client, cfg.PongChannel, cfg.PongStream)
			if err != nil {
				return err
			}
			fmt.Printf("echoing %s stream %d onto %s stream %d\n",
				cfg.Channel, cfg.StreamID, cfg.PongChannel, cfg.PongStream)

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)

			handler := func(buf *buffers.AtomicBuffer, offset, length int32, header *logbuffer.Header) {
				for pub.Offer(buf, offset, length) <= 0 {
				}
			}

			for {
				select {
				case <-interrupt:
					return nil
				default:
				}

				if sub.Poll(handler, 10) == 0 {
					time.Sleep(time.Microsecond * 100)
				}
			}
		},
	}

	return cmd
}
