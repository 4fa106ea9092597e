package main

import (
	"github.com/spf13/cobra"

	"github.com/telelumen/golum/common"
)

var (
	flagPaused bool

	cmdScript = &cobra.Command{
		Use:   `script`,
		Short: `control script playback`,
		Run:   func(c *cobra.Command, args []string) { c.Usage() },
	}

	cmdScriptPlay = &cobra.Command{
		Use:     `play [filename]`,
		Short:   `start script playback`,
		PreRun:  setupClient,
		PostRun: closeClient,
		Run:     scriptPlay,
	}

	cmdScriptPause = &cobra.Command{
		Use:     `pause`,
		Short:   `pause script playback`,
		PreRun:  setupClient,
		PostRun: closeClient,
		Run:     scriptSimple((common.Luminaire).Pause),
	}

	cmdScriptResume = &cobra.Command{
		Use:     `resume`,
		Short:   `resume paused playback`,
		PreRun:  setupClient,
		PostRun: closeClient,
		Run:     scriptSimple((common.Luminaire).Resume),
	}

	cmdScriptStop = &cobra.Command{
		Use:     `stop`,
		Short:   `stop script playback`,
		PreRun:  setupClient,
		PostRun: closeClient,
		Run:     scriptSimple((common.Luminaire).Stop),
	}
)

func init() {
	cmdScriptPlay.Flags().BoolVarP(&flagPaused, `paused`, `p`, false, `load the script but wait for resume`)
	cmdScript.AddCommand(cmdScriptPlay)
	cmdScript.AddCommand(cmdScriptPause)
	cmdScript.AddCommand(cmdScriptResume)
	cmdScript.AddCommand(cmdScriptStop)
}

func scriptPlay(c *cobra.Command, args []string) {
	var filename string
	if len(args) > 0 {
		filename = args[0]
	}

	lum := connectTarget()
	defer lum.Disconnect()

	if err := lum.Play(filename, flagPaused); err != nil {
		logger.WithField(`error`, err).Fatalln(`Failed starting playback`)
	}
}

func scriptSimple(op func(common.Luminaire) error) func(*cobra.Command, []string) {
	return func(c *cobra.Command, args []string) {
		lum := connectTarget()
		defer lum.Disconnect()

		if err := op(lum); err != nil {
			logger.WithField(`error`, err).Fatalln(`Playback command failed`)
		}
	}
}
