package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cmdList = &cobra.Command{
	Use:     `list`,
	Short:   `list discovered luminaires`,
	PreRun:  setupClient,
	PostRun: closeClient,
	Run:     listDevices,
}

func listDevices(c *cobra.Command, args []string) {
	devices, err := client.GetDevices()
	if err != nil {
		logger.WithField(`error`, err).Fatalln(`No luminaires found`)
	}

	fmt.Printf("%-20s %-16s %s\n", `SERIAL`, `ADDRESS`, `STATE`)
	for _, dev := range devices {
		fmt.Printf("%-20s %-16s %s\n", dev.Serial(), dev.Address(), dev.State())
	}
}
