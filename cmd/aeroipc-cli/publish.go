package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aeroipc/aeroipc-go/pkg/aero"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
)

func newPublishCommand() *cobra.Command {
	var (
		channel  string
		streamID int32
		message  string
		count    int
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish messages to a stream",
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

			client, err := aero.Connect(newClientContext(cfg))
			if err != nil {
				return err
			}
			defer client.Close()

			pub, err := awaitPublication(client, channel, streamID)
			if err != nil {
				return err
			}

			for i := 0; i < count; i++ {
				payload := []byte(fmt.Sprintf("%s [%d]", message, i))
				src := buffers.MakeAtomicBuffer(payload)

				for {
					position := pub.Offer(src, 0, int32(len(payload)))
					if position > 0 {
						fmt.Printf("offered %d bytes, position %d\n", len(payload), position)
						break
					}
					if position == aero.NotConnected {
						fmt.Println("no subscriber connected, retrying")
						time.Sleep(time.Second)
						continue
					}
					if position == aero.PublicationClosed || position == aero.MaxPositionExceeded {
						return fmt.Errorf("publication unusable: %d", position)
					}
					time.Sleep(time.Millisecond)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "channel URI")
	cmd.Flags().Int32Var(&streamID, "stream-id", 0, "stream id within the channel")
	cmd.Flags().StringVar(&message, "message", "hello", "message payload")
	cmd.Flags().IntVar(&count, "count", 10, "number of messages to publish")
	return cmd
}

// awaitPublication adds a publication and polls until the driver confirms
// it.
func awaitPublication(client *aero.Client, channel string, streamID int32) (*aero.Publication, error) {
	regID, err := client.AddPublication(channel, streamID)
	if err != nil {
		return nil, err
	}

	for {
		pub, err := client.FindPublication(regID)
		if err != nil {
			return nil, err
		}
		if pub != nil {
			return pub, nil
		}
		time.Sleep(time.Millisecond)
	}
}

// awaitSubscription adds a subscription and polls until the driver confirms
// it.
func awaitSubscription(client *aero.Client, channel string, streamID int32) (*aero.Subscription, error) {
	regID, err := client.AddSubscription(channel, streamID)
	if err != nil {
		return nil, err
	}

	for {
		sub, err := client.FindSubscription(regID)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			return sub, nil
		}
		time.Sleep(time.Millisecond)
	}
}
