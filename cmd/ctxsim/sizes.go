package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/ctxswitch/gmem"
)

func newSizesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sizes [gmem-bytes...]",
		Short: "Print GMEM shadow surface sizes.",
		Long: "`sizes` prints the shadow surface that holds GMEM of the given " +
			"sizes, or of the configured device when no size is given.",
		RunE: printSizes,
	}
}

func printSizes(cmd *cobra.Command, args []string) error {
	var capacities []uint32

	for _, arg := range args {
		n, err := strconv.ParseUint(arg, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", arg, err)
		}
		if n > gmem.MaxCapacity {
			return fmt.Errorf("size %q exceeds %d bytes", arg, gmem.MaxCapacity)
		}
		capacities = append(capacities, uint32(n))
	}

	if len(capacities) == 0 {
		cfg, err := loadDeviceConfig(cmd)
		if err != nil {
			return err
		}
		capacities = append(capacities, cfg.GMEMSize)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "GMEM\tWIDTH\tHEIGHT\tPITCH\tSIZE")
	for _, c := range capacities {
		s := gmem.Calc(c)
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\n", c, s.Width, s.Height, s.Pitch, s.Size)
	}

	return w.Flush()
}
