// Command lumen performs basic operations on Telelumen luminaires over the
// LAN
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
	"github.com/spf13/viper"

	"github.com/telelumen/golum"
	"github.com/telelumen/golum/common"
	"github.com/telelumen/golum/protocol"
)

var (
	client *golum.Client
	config *common.Config

	flagConfig   string
	flagTimeout  time.Duration
	flagLogLevel string
	flagAddress  string
	flagSerial   string

	logger = logrus.New()
	app    = &cobra.Command{
		Use: `lumen`,
		PersistentPreRun: func(c *cobra.Command, args []string) {
			setLogger()
			loadConfig()
		},
	}

	cmdGenerateBashComp = &cobra.Command{
		Use:   `bashcomp <filename>`,
		Short: "generate bash completion at <file>",
		Run:   generateBashComp,
	}

	cmdGenerateDocs = &cobra.Command{
		Use:   `docs <path>`,
		Short: "generate markdown documentation at <path>",
		Run:   generateDocs,
	}
)

func init() {
	golum.SetLogger(logger)

	app.PersistentFlags().StringVarP(&flagConfig, `config`, `c`, ``, `config file (default $HOME/.lumen.yaml)`)
	app.PersistentFlags().DurationVarP(&flagTimeout, `timeout`, `t`, common.DefaultTimeout, `timeout for all operations`)
	app.PersistentFlags().StringVarP(&flagLogLevel, `log-level`, `L`, `info`, `log level, one of: [debug,info,warn,error]`)
	app.PersistentFlags().StringVarP(&flagAddress, `address`, `a`, ``, `target luminaire network address, skips discovery`)
	app.PersistentFlags().StringVarP(&flagSerial, `serial`, `s`, ``, `target luminaire serial number`)

	app.AddCommand(cmdList)
	app.AddCommand(cmdInfo)
	app.AddCommand(cmdLight)
	app.AddCommand(cmdScript)
	app.AddCommand(cmdFile)
	app.AddCommand(cmdGenerateBashComp)
	app.AddCommand(cmdGenerateDocs)
}

func main() {
	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers the optional config file over the firmware defaults.
// Only keys present in the file override.
func loadConfig() {
	config = common.DefaultConfig()

	if flagConfig != `` {
		viper.SetConfigFile(flagConfig)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(`.lumen`)
		viper.SetConfigType(`yaml`)
	}
	viper.SetEnvPrefix(`lumen`)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && flagConfig != `` {
			logger.WithField(`error`, err).Fatalln(`Failed reading config file`)
		}
	} else {
		logger.WithField(`file`, viper.ConfigFileUsed()).Debugln(`Loaded config file`)
	}

	if viper.IsSet(`subnets`) {
		config.Subnets = viper.GetStringSlice(`subnets`)
	}
	if viper.IsSet(`command_port`) {
		config.CommandPort = viper.GetInt(`command_port`)
	}
	if viper.IsSet(`datagram_port`) {
		config.DatagramPort = viper.GetInt(`datagram_port`)
	}
	if viper.IsSet(`command_timeout`) {
		config.CommandTimeout = viper.GetDuration(`command_timeout`)
	}
	if viper.IsSet(`probe_timeout`) {
		config.ProbeTimeout = viper.GetDuration(`probe_timeout`)
	}
	if viper.IsSet(`discovery_timeout`) {
		config.DiscoveryTimeout = viper.GetDuration(`discovery_timeout`)
	}
	if viper.IsSet(`scan_workers`) {
		config.ScanWorkers = viper.GetInt(`scan_workers`)
	}
}

func setupClient(c *cobra.Command, args []string) {
	var err error

	client, err = golum.NewClient(protocol.NewTNG(config))
	if err != nil {
		logger.WithField(`error`, err).Fatalln(`Failed initializing client`)
	}
	client.SetTimeout(flagTimeout)
}

func closeClient(c *cobra.Command, args []string) {
	if err := client.Close(); err != nil {
		logger.WithField(`error`, err).Fatalln(`Failed closing client`)
	}
}

// connectTarget resolves the target luminaire from the address or serial
// flags and upgrades it to a live session
func connectTarget() common.Luminaire {
	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	if flagAddress != `` {
		lum, err := client.ConnectToAddress(ctx, flagAddress)
		if err != nil {
			logger.WithFields(logrus.Fields{
				`address`: flagAddress,
				`error`:   err,
			}).Fatalln(`Failed connecting to luminaire`)
		}
		return lum
	}

	if flagSerial == `` {
		logger.Fatalln(`Specify a target with --address or --serial`)
	}
	lum, err := client.GetLuminaireBySerial(flagSerial)
	if err != nil {
		logger.WithFields(logrus.Fields{
			`serial`: flagSerial,
			`error`:  err,
		}).Fatalln(`Luminaire not found`)
	}
	if err := lum.Connect(ctx); err != nil {
		logger.WithFields(logrus.Fields{
			`serial`: flagSerial,
			`error`:  err,
		}).Fatalln(`Failed connecting to luminaire`)
	}
	return lum
}

func generateBashComp(c *cobra.Command, args []string) {
	if len(args) != 1 {
		c.Usage()
		fmt.Println()
		logger.Fatalln(`Missing filename`)
	}

	buf := new(bytes.Buffer)
	f, err := os.Create(args[0])
	if err != nil {
		logger.WithFields(logrus.Fields{
			`filename`: args[0],
			`error`:    err,
		}).Fatalln(`Could not open file`)
	}
	app.GenBashCompletion(buf)
	buf.WriteTo(f)
}

func generateDocs(c *cobra.Command, args []string) {
	if len(args) != 1 {
		c.Usage()
		fmt.Println()
		logger.Fatalln(`Missing output path`)
	}

	path := args[0]
	if path[len(path)-1] != os.PathSeparator {
		path += string(os.PathSeparator)
	}
	doc.GenMarkdownTree(app, path)
}

func setLogger() {
	switch flagLogLevel {
	case `debug`:
		logger.Level = logrus.DebugLevel
	case `info`:
		logger.Level = logrus.InfoLevel
	case `warn`:
		logger.Level = logrus.WarnLevel
	case `error`:
		logger.Level = logrus.ErrorLevel
	default:
		logger.Level = logrus.InfoLevel
	}
}
