package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check, info and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/info", s.handleInfo)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// Attachments collection.
	mux.HandleFunc("POST /v1/attachments", s.handleCreateAttachment)
	mux.HandleFunc("GET /v1/attachments", s.handleListAttachments)
	mux.HandleFunc("DELETE /v1/attachments", s.handleDeleteAttachments)

	// Single attachment.
	mux.HandleFunc("GET /v1/attachments/{id}", s.handleGetAttachment)
	mux.HandleFunc("GET /v1/attachments/{id}/content", s.handleGetAttachmentContent)
	mux.HandleFunc("DELETE /v1/attachments/{id}", s.handleDeleteAttachment)
	mux.HandleFunc("POST /v1/attachments/{id}/move", s.handleMoveAttachment)
	mux.HandleFunc("POST /v1/attachments/{id}/mimetype", s.handleRecomputeMimetype)

	// Admin.
	mux.HandleFunc("POST /v1/admin/force-storage", s.handleAdminForceStorage)
	mux.HandleFunc("POST /v1/admin/cache-gc", s.handleAdminCacheGC)

	// Per-install settings.
	mux.HandleFunc("GET /v1/settings", s.handleListSettings)
	mux.HandleFunc("GET /v1/settings/{key}", s.handleGetSetting)
	mux.HandleFunc("PUT /v1/settings/{key}", s.handleSetSetting)
	mux.HandleFunc("DELETE /v1/settings/{key}", s.handleUnsetSetting)

	return mux
}
