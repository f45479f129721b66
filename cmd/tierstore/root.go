package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tierstore/internal/config"
	"tierstore/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		yamlOutput bool
		logLevel   string
		structured bool
	)

	cmd := &cobra.Command{
		Use:           "tierstore",
		Short:         "Tierstore keeps content-addressed attachments in a database, a filestore or S3",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput && yamlOutput {
				return fmt.Errorf("--json and --yaml are mutually exclusive")
			}
			structured = jsonOutput || yamlOutput
			if yamlOutput {
				outputFormatter = format.YAMLFormatter{}
			}
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
	cmd.PersistentFlags().BoolVar(&yamlOutput, "yaml", false, "output YAML")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newInfoCmd(cfg, &structured),
		newPutCmd(cfg, &structured),
		newGetCmd(cfg),
		newShowCmd(cfg, &structured),
		newListCmd(cfg, &structured),
		newRemoveCmd(cfg, &structured),
		newMoveCmd(cfg, &structured),
		newMimetypeCmd(cfg, &structured),
		newAdminCmd(cfg, &structured),
		newSettingsCmd(cfg, &structured),
		newConfigCmd(cfg),
		newMigrateCmd(cfg, &structured),
	)

	return cmd
}
