package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfluke/equinorm/detector"
)

func newDeviceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Print the WebGPU adapter report as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := detector.Detect()
			if err != nil {
				return err
			}
			data, err := report.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), data)
			return nil
		},
	}
}
