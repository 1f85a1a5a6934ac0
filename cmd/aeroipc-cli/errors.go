package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aeroipc/aeroipc-go/pkg/aero"
)

func newErrorsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Dump the driver's distinct error log from the CnC file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cnc, cleanup, err := mapCnc()
			if err != nil {
				return err
			}
			defer cleanup()

			reader := aero.NewErrorLogReader(cnc.ErrorLog)
			count := reader.ForEach(func(obs aero.ErrorObservation) {
				fmt.Printf("%d observations, first %s, last %s:\n%s\n\n",
					obs.ObservationCount,
					time.UnixMilli(obs.FirstObservationMs).Format(time.RFC3339Nano),
					time.UnixMilli(obs.LastObservationMs).Format(time.RFC3339Nano),
					obs.EncodedError)
			})

			fmt.Printf("%d distinct error(s)\n", count)
			return nil
		},
	}

	return cmd
}
