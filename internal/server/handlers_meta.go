package server

import (
	"net/http"

	"tierstore/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeServiceError(w, r, storeFailure(err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	settings, err := s.attachments.StorageSettings(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	status, err := s.store.SchemaStatus()
	if err != nil {
		s.writeServiceError(w, r, storeFailure(err))
		return
	}

	resp := api.InfoResponse{
		DBPath:        s.cfg.DBPath,
		Tenant:        settings.Tenant,
		Location:      string(settings.Location),
		CacheEnabled:  settings.CacheEnabled,
		RemoteDelete:  settings.RemoteDelete,
		SchemaVersion: status.CurrentVersion,
	}
	for _, pending := range status.Pending {
		resp.PendingVersions = append(resp.PendingVersions, pending.Version)
	}

	s.writeJSON(w, http.StatusOK, resp)
}
