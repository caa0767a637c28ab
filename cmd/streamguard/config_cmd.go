package main

import (
	"github.com/spf13/cobra"

	"github.com/hed1ad/streamguard/pkg/config"
)

func configCmd(rootConfig *rootCmdConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  `Print the configuration resolved from defaults, the config file and STREAMGUARD_* environment variables as YAML`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootConfig.configFile)
			if err != nil {
				return err
			}
			return cfg.Dump(cmd.OutOrStdout())
		},
	}
}
