package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cmdInfo = &cobra.Command{
	Use:     `info`,
	Short:   `show identity and telemetry for a luminaire`,
	PreRun:  setupClient,
	PostRun: closeClient,
	Run:     showInfo,
}

func showInfo(c *cobra.Command, args []string) {
	lum := connectTarget()
	defer lum.Disconnect()

	fmt.Printf("Serial:            %s\n", lum.Serial())
	fmt.Printf("Electronic serial: %s\n", lum.ElectronicSerial())
	fmt.Printf("Address:           %s\n", lum.Address())
	fmt.Printf("Type:              %s\n", lum.Type())
	fmt.Printf("Firmware:          %s\n", lum.FirmwareVersion())
	fmt.Printf("MAC:               %s\n", lum.MAC())

	if temp, err := lum.Temperature(); err == nil {
		fmt.Printf("Temperature:       %.1f C\n", temp)
	}
	if uptime, err := lum.Uptime(); err == nil {
		fmt.Printf("Uptime:            %s\n", uptime)
	}
	if channelMap, err := lum.ChannelMap(); err == nil {
		fmt.Printf("Channel map:       %s\n", channelMap)
	}
	if used, err := lum.UsedBlocks(); err == nil {
		fmt.Printf("Blocks used:       %d\n", used)
	}
}
