package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tierstore/internal/api"
	"tierstore/internal/config"
)

func newSettingsCmd(cfg *config.Config, structured *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage per-install storage settings stored in the database",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List effective settings",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cfg, func(client *api.Client) error {
					settings, err := client.ListSettings(cmd.Context())
					if err != nil {
						return err
					}
					if *structured {
						return writeStructured(settings)
					}
					for _, setting := range settings {
						if err := writeSetting(setting); err != nil {
							return err
						}
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Show one effective setting",
			Args:  positionalArgs("key"),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSettingCmd(cfg, structured, args[0], func(client *api.Client, key string) (api.SettingResponse, error) {
					return client.GetSetting(cmd.Context(), key)
				})
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Override a setting for this install",
			Args:  positionalArgs("key", "value"),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := config.NormalizeSetting(args[0], args[1]); err != nil {
					return err
				}
				return runSettingCmd(cfg, structured, args[0], func(client *api.Client, key string) (api.SettingResponse, error) {
					return client.SetSetting(cmd.Context(), key, args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "unset <key>",
			Short: "Remove an override and fall back to the config value",
			Args:  positionalArgs("key"),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSettingCmd(cfg, structured, args[0], func(client *api.Client, key string) (api.SettingResponse, error) {
					return client.UnsetSetting(cmd.Context(), key)
				})
			},
		},
	)
	return cmd
}

func runSettingCmd(cfg *config.Config, structured *bool, key string, fn func(*api.Client, string) (api.SettingResponse, error)) error {
	if !config.IsOverridableKey(key) {
		return fmt.Errorf("unknown setting: %s (allowed: %v)", key, config.OverridableKeys())
	}
	return withClient(cfg, func(client *api.Client) error {
		setting, err := fn(client, key)
		if err != nil {
			return err
		}
		if *structured {
			return writeStructured(setting)
		}
		return writeSetting(setting)
	})
}

func writeSetting(setting api.SettingResponse) error {
	return writePlain("%s = %s (%s)\n", setting.Key, setting.Value, setting.Source)
}
