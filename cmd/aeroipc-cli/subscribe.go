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

func newSubscribeCommand() *cobra.Command {
	var (
		channel  string
		streamID int32
	)

	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Subscribe to a stream and print received messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if channel == "" {
				channel = cfg.Channel
			}
			if streamID == 0 {
				streamID = cfg.StreamID
			}

			ctx := newClientContext(cfg).
				WithAvailableImageHandler(func(image *aero.Image) {
					fmt.Printf("image available: session=%d source=%s\n", image.SessionID(), image.SourceIdentity())
				}).
				WithUnavailableImageHandler(func(image *aero.Image) {
					fmt.Printf("image unavailable: session=%d\n", image.SessionID())
				})

			client, err := aero.Connect(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			sub, err := awaitSubscription(client, channel, streamID)
			if err != nil {
				return err
			}
			fmt.Printf("subscribed to %s stream %d, waiting for messages\n", channel, streamID)

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)

			handler := func(buf *buffers.AtomicBuffer, offset, length int32, header *logbuffer.Header) {
				fmt.Printf("[session %d] %s\n", header.SessionID(), buf.GetBytes(offset, length))
			}

			for {
				select {
				case <-interrupt:
					return nil
				default:
				}

				if sub.Poll(handler, 10) == 0 {
					time.Sleep(time.Millisecond)
				}
			}
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "channel URI")
	cmd.Flags().Int32Var(&streamID, "stream-id", 0, "stream id within the channel")
	return cmd
}
