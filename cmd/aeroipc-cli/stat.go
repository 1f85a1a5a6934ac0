package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aeroipc/aeroipc-go/pkg/aero"
	"github.com/aeroipc/aeroipc-go/pkg/buffers"
	"github.com/aeroipc/aeroipc-go/pkg/counters"
)

func newStatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stat",
		Short: "Dump the driver's counters from the CnC file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cnc, cleanup, err := mapCnc()
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Printf("CnC version %d, client liveness timeout %d ns\n\n",
				cnc.Metadata.Version, cnc.Metadata.ClientLivenessTimeoutNs)

			reader := counters.NewReader(cnc.CounterMetadata, cnc.CounterValues)
			reader.ForEach(func(counterID, typeID int32, key *buffers.AtomicBuffer, label string) {
				fmt.Printf("%3d [type %2d] %20d  %s\n", counterID, typeID, reader.CounterValue(counterID), label)
			})
			return nil
		},
	}

	return cmd
}

// mapCnc maps the CnC file for read-only introspection commands.
func mapCnc() (*aero.CncBuffers, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	dir := cfg.Dir
	if driverDir != "" {
		dir = driverDir
	}
	if dir == "" {
		dir = aero.NewContext().Dir
	}

	path := filepath.Join(dir, aero.CncFile)
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("no CnC file at %s (is the driver running?): %w", path, err)
	}

	mapped, cnc, err := aero.MapCncFile(path)
	if err != nil {
		return nil, nil, err
	}
	return cnc, func() { mapped.Close() }, nil
}
