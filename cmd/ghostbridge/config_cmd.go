package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ghostbridge/internal/config"
	"ghostbridge/pkg/utils"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect GhostBridge configuration",
	}
	configCmd.AddCommand(newConfigValidateCmd())
	return configCmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			envFile, _ := cmd.Flags().GetString("env-file")

			cfg, err := config.Load(configPath, envFile)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return utils.Wrap(err, "rendering config")
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
