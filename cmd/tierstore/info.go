package main

import (
	"github.com/spf13/cobra"

	"tierstore/internal/api"
	"tierstore/internal/config"
)

func newInfoCmd(cfg *config.Config, structured *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show database and storage info",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetInfo(cmd.Context())
				if err != nil {
					return err
				}

				if *structured {
					return writeStructured(resp)
				}

				_ = writePlain("db_path: %s\n", resp.DBPath)
				_ = writePlain("tenant: %s\n", resp.Tenant)
				_ = writePlain("location: %s\n", resp.Location)
				_ = writePlain("cache_enabled: %t\n", resp.CacheEnabled)
				_ = writePlain("remote_delete: %t\n", resp.RemoteDelete)
				_ = writePlain("schema_version: %d\n", resp.SchemaVersion)
				if len(resp.PendingVersions) > 0 {
					_ = writePlain("pending_migrations: %v\n", resp.PendingVersions)
				}
				return nil
			})
		},
	}
}
