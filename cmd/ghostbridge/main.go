// Command ghostbridge runs the GhostBridge edge gateway: dual-transport
// HTTP/2+HTTP/3 ingress, the multiplexer/dispatch layer, and the ZNS
// name-resolution subsystem.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ghostbridge/pkg/utils"
)

func main() {
	root := &cobra.Command{
		Use:   "ghostbridge",
		Short: "GhostBridge edge gateway",
	}

	root.PersistentFlags().String("config", utils.EnvOrDefault("GHOSTBRIDGE_CONFIG", "cmd/config/default.yaml"), "path to the YAML configuration file")
	root.PersistentFlags().String("env-file", utils.EnvOrDefault("GHOSTBRIDGE_ENV_FILE", ""), "optional .env file with GHOSTBRIDGE_-prefixed overrides")

	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("ghostbridge exited with error")
		os.Exit(1)
	}
}
