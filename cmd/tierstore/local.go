package main

import (
	"fmt"
	"log/slog"

	"tierstore/internal/config"
	"tierstore/internal/server"
	"tierstore/internal/store"
)

// openLocalService runs attachment maintenance against the database directly,
// without a server process.
func openLocalService(cfg *config.Config) (*server.AttachmentService, func(), error) {
	if cfg.DBPath == "" {
		return nil, nil, fmt.Errorf("db path is required")
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.Default().With("component", "local")
	st.SetLogger(slog.Default())
	svc := server.NewAttachmentService(st, st, cfg, server.ServiceOptions{Logger: logger})
	return svc, func() { _ = st.Close() }, nil
}
