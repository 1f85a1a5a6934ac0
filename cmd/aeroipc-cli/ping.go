package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/spf13/cobra"

	"github.com/aeroipc/aeroipc-go/pkg/aero"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
	"github.com/aeroipc/aeroipc-go/pkg/logbuffer"
)

func newPingCommand() *cobra.Command {
	var (
		messages      int
		messageLength int32
		warmup        int
	)

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Measure round-trip latency against a running pong",
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

			pub, err := awaitPublication(client, cfg.Channel, cfg.StreamID)
			if err != nil {
				return err
			}
			sub, err := awaitSubscription(client, cfg.PongChannel, cfg.PongStream)
			if err != nil {
				return err
			}

			for sub.ImageCount() == 0 || !pub.IsConnected() {
				time.Sleep(time.Millisecond)
			}

			histogram := hdrhistogram.New(1, 10*int64(time.Second), 3)
			payload := make([]byte, messageLength)
			src := buffers.MakeAtomicBuffer(payload)

			var rtt int64
			handler := func(buf *buffers.AtomicBuffer, offset, length int32, header *logbuffer.Header) {
				sentAt := int64(binary.LittleEndian.Uint64(buf.Data()[offset:]))
				rtt = time.Now().UnixNano() - sentAt
			}

			roundTrip := func() {
				binary.LittleEndian.PutUint64(payload, uint64(time.Now().UnixNano()))
				for pub.Offer(src, 0, messageLength) <= 0 {
				}
				rtt = -1
				for rtt < 0 {
					sub.Poll(handler, 1)
				}
			}

			for i := 0; i < warmup; i++ {
				roundTrip()
			}

			histogram.Reset()
			for i := 0; i < messages; i++ {
				roundTrip()
				if err := histogram.RecordValue(rtt); err != nil {
					return err
				}
			}

			fmt.Printf("round trips: %d\n", messages)
			for _, p := range []float64{50, 90, 99, 99.9, 100} {
				fmt.Printf("  %6.1f%%: %s\n", p, time.Duration(histogram.ValueAtQuantile(p)))
			}
			_, err = histogram.PercentilesPrint(os.Stdout, 5, 1000.0)
			return err
		},
	}

	cmd.Flags().IntVar(&messages, "messages", 10000, "number of measured round trips")
	cmd.Flags().Int32Var(&messageLength, "length", 32, "message length in bytes")
	cmd.Flags().IntVar(&warmup, "warmup", 1000, "untimed warmup round trips")
	return cmd
}
