package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/telelumen/golum/common"
	"github.com/telelumen/golum/protocol/tng/shared"
)

var (
	flagIdle bool

	cmdFile = &cobra.Command{
		Use:   `file`,
		Short: `manage luminaire onboard storage`,
		Run:   func(c *cobra.Command, args []string) { c.Usage() },
	}

	cmdFileList = &cobra.Command{
		Use:     `list`,
		Short:   `list files in onboard storage`,
		PreRun:  setupClient,
		PostRun: closeClient,
		Run:     fileList,
	}

	cmdFileUpload = &cobra.Command{
		Use:     `upload <local> <remote>`,
		Short:   `upload a local file to onboard storage`,
		PreRun:  setupClient,
		PostRun: closeClient,
		Run:     fileUpload,
	}

	cmdFileDownload = &cobra.Command{
		Use:     `download <remote> <local>`,
		Short:   `download a file from onboard storage`,
		PreRun:  setupClient,
		PostRun: closeClient,
		Run:     fileDownload,
	}

	cmdFileVerify = &cobra.Command{
		Use:     `verify <local> <remote>`,
		Short:   `compare a local file's checksum against the device copy`,
		PreRun:  setupClient,
		PostRun: closeClient,
		Run:     fileVerify,
	}
)

func init() {
	cmdFileUpload.Flags().BoolVarP(&flagIdle, `idle`, `i`, false, `leave the device idle instead of executing the upload`)
	cmdFile.AddCommand(cmdFileList)
	cmdFile.AddCommand(cmdFileUpload)
	cmdFile.AddCommand(cmdFileDownload)
	cmdFile.AddCommand(cmdFileVerify)
}

func fileList(c *cobra.Command, args []string) {
	lum := connectTarget()
	defer lum.Disconnect()

	files, err := lum.Directory()
	if err != nil {
		logger.WithField(`error`, err).Fatalln(`Failed listing storage`)
	}
	for _, file := range files {
		fmt.Println(file)
	}
}

func fileUpload(c *cobra.Command, args []string) {
	if len(args) != 2 {
		c.Usage()
		logger.Fatalln(`Missing local or remote filename`)
	}

	lum := connectTarget()
	defer lum.Disconnect()

	sub, err := lum.NewSubscription()
	if err == nil {
		defer sub.Close()
		go func() {
			for event := range sub.Events() {
				if progress, ok := event.(common.EventTransferProgress); ok {
					logger.WithFields(logrus.Fields{
						`block`:  progress.Block,
						`blocks`: progress.Blocks,
					}).Debugln(`Sent block`)
				}
			}
		}()
	}

	if err := lum.Upload(context.Background(), args[0], args[1], flagIdle); err != nil {
		logger.WithField(`error`, err).Fatalln(`Upload failed`)
	}
	logger.WithFields(logrus.Fields{
		`local`:  args[0],
		`remote`: args[1],
	}).Infoln(`Upload complete`)
}

func fileDownload(c *cobra.Command, args []string) {
	if len(args) != 2 {
		c.Usage()
		logger.Fatalln(`Missing remote or local filename`)
	}

	lum := connectTarget()
	defer lum.Disconnect()

	if err := lum.Download(context.Background(), args[0], args[1]); err != nil {
		logger.WithField(`error`, err).Fatalln(`Download failed`)
	}
	logger.WithFields(logrus.Fields{
		`remote`: args[0],
		`local`:  args[1],
	}).Infoln(`Download complete`)
}

func fileVerify(c *cobra.Command, args []string) {
	if len(args) != 2 {
		c.Usage()
		logger.Fatalln(`Missing local or remote filename`)
	}

	local, err := shared.ComputeFileLRC(args[0])
	if err != nil {
		logger.WithField(`error`, err).Fatalln(`Failed reading local file`)
	}

	lum := connectTarget()
	defer lum.Disconnect()

	remote, err := lum.FileLRC(args[1])
	if err != nil {
		logger.WithField(`error`, err).Fatalln(`Failed reading device checksum`)
	}

	if local != remote {
		logger.WithFields(logrus.Fields{
			`local`:  fmt.Sprintf(`%08X`, local),
			`remote`: fmt.Sprintf(`%08X`, remote),
		}).Fatalln(`Checksum mismatch`)
	}
	logger.WithField(`lrc`, fmt.Sprintf(`%08X`, local)).Infoln(`Checksums match`)
}
