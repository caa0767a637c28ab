// Command streamguard scores streams of samples with an Online Isolation
// Forest.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootCmdConfig struct {
	configFile string
	debug      bool
	logFormat  string
}

func main() {
	if err := cliParser().Execute(); err != nil {
		logrus.WithError(err).Error("streamguard failed")
		os.Exit(1)
	}
}

func cliParser() *cobra.Command {
	config := &rootCmdConfig{}
	rootCmd := &cobra.Command{
		Use:   "streamguard",
		Short: "streamguard scores data streams for anomalies",
		Long:  `A tool to score CSV rows or network packets with an Online Isolation Forest that keeps learning from a sliding window`,

		// SilenceUsage is an option to silence usage when an error occurs.
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(config.debug, config.logFormat)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&(config.configFile), "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&(config.debug), "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&(config.logFormat), "log-format", "text", "log format, text or json")
	rootCmd.AddCommand(versionCmd(), configCmd(config), scoreCmd(config))
	return rootCmd
}
