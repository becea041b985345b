package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chunkvault/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var jsonOutput bool
	var logLevel string

	cmd := &cobra.Command{
		Use:           "chunkvault",
		Short:         "Chunkvault stores audio uploads as chunked blobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "gateway and client log level: debug, info, warn or error (env "+logLevelEnvKey+")")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newUploadCmd(cfg, &jsonOutput),
		newDownloadCmd(cfg, &jsonOutput),
		newListCmd(cfg, &jsonOutput),
		newInfoCmd(cfg, &jsonOutput),
		newVerifyCmd(cfg, &jsonOutput),
		newGCCmd(cfg, &jsonOutput),
		newMigrateCmd(cfg, &jsonOutput),
		newConfigCmd(cfg),
	)

	return cmd
}
