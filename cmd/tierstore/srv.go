package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"tierstore/internal/config"
	"tierstore/internal/server"
	"tierstore/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the tierstore API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}
			if cfg.Admin.TokenHash == "" {
				logger.Warn("admin.token_hash is not set; admin and settings endpoints are disabled")
			}

			logger.Info("opening database", "path", cfg.DBPath, "tenant", cfg.Storage.Tenant)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()
			st.SetLogger(slog.Default())

			srv := server.New(addr, st, cfg, logger, server.Options{})
			return srv.ListenAndServe(cmd.Context())
		},
	}
}
