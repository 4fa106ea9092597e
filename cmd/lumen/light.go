package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telelumen/golum/protocol/tng/device"
)

var (
	flagNamed bool

	cmdLight = &cobra.Command{
		Use:   `light`,
		Short: `control luminaire output`,
		Run:   func(c *cobra.Command, args []string) { c.Usage() },
	}

	cmdLightLevels = &cobra.Command{
		Use:     `levels <level,...>`,
		Short:   `set channel drive levels, values 0.0 to 1.0`,
		PreRun:  setupClient,
		PostRun: closeClient,
		Run:     lightLevels,
	}

	cmdLightLevel = &cobra.Command{
		Use:     `level <channel> <level>`,
		Short:   `set one channel's drive level`,
		PreRun:  setupClient,
		PostRun: closeClient,
		Run:     lightLevel,
	}

	cmdLightGet = &cobra.Command{
		Use:     `get`,
		Short:   `read current channel drive levels`,
		PreRun:  setupClient,
		PostRun: closeClient,
		Run:     lightGet,
	}

	cmdLightDark = &cobra.Command{
		Use:     `dark`,
		Short:   `turn all channels off`,
		PreRun:  setupClient,
		PostRun: closeClient,
		Run:     lightDark,
	}
)

func init() {
	cmdLightLevels.Flags().BoolVarP(&flagNamed, `named`, `n`, false, `treat levels as the 13-channel named emitter vector`)
	cmdLight.AddCommand(cmdLightLevels)
	cmdLight.AddCommand(cmdLightLevel)
	cmdLight.AddCommand(cmdLightGet)
	cmdLight.AddCommand(cmdLightDark)
}

func lightLevels(c *cobra.Command, args []string) {
	if len(args) != 1 {
		c.Usage()
		logger.Fatalln(`Missing levels`)
	}

	var levels []float64
	for _, word := range strings.Split(args[0], `,`) {
		level, err := strconv.ParseFloat(strings.TrimSpace(word), 64)
		if err != nil {
			logger.WithField(`level`, word).Fatalln(`Levels must be numbers between 0.0 and 1.0`)
		}
		levels = append(levels, level)
	}
	if flagNamed {
		levels = device.ExpandNamed(levels)
	}

	lum := connectTarget()
	defer lum.Disconnect()

	if err := lum.SetDriveLevels(levels); err != nil {
		logger.WithField(`error`, err).Fatalln(`Failed setting drive levels`)
	}
}

func lightLevel(c *cobra.Command, args []string) {
	if len(args) != 2 {
		c.Usage()
		logger.Fatalln(`Missing channel or level`)
	}

	channel, err := strconv.Atoi(args[0])
	if err != nil {
		logger.WithField(`channel`, args[0]).Fatalln(`Channel must be an integer`)
	}
	level, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		logger.WithField(`level`, args[1]).Fatalln(`Level must be a number between 0.0 and 1.0`)
	}

	lum := connectTarget()
	defer lum.Disconnect()

	if err := lum.SetDriveLevel(channel, level); err != nil {
		logger.WithField(`error`, err).Fatalln(`Failed setting drive level`)
	}
}

func lightGet(c *cobra.Command, args []string) {
	lum := connectTarget()
	defer lum.Disconnect()

	levels, err := lum.DriveLevels()
	if err != nil {
		logger.WithField(`error`, err).Fatalln(`Failed reading drive levels`)
	}
	for i, level := range levels {
		logger.Printf(`channel %02d: %.4f`, i, level)
	}
}

func lightDark(c *cobra.Command, args []string) {
	lum := connectTarget()
	defer lum.Disconnect()

	if err := lum.Dark(); err != nil {
		logger.WithField(`error`, err).Fatalln(`Failed turning channels off`)
	}
}
