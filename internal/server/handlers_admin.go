package server

import (
	"fmt"
	"net/http"

	"tierstore/internal/api"
	"tierstore/internal/blobstore"
)

func (s *Server) handleAdminForceStorage(w http.ResponseWriter, r *http.Request) {
	var req api.ForceStorageRequest
	if !s.decodeOptionalJSONReq(w, r, &req) {
		return
	}
	if req.Limit < 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("limit must be >= 0"), ErrCodeInvalidArgument))
		return
	}

	result, err := s.attachments.ForceStorageBatch(r.Context(), req.Limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result.Response())
}

func (s *Server) handleAdminCacheGC(w http.ResponseWriter, r *http.Request) {
	var req api.CacheGCRequest
	if !s.decodeOptionalJSONReq(w, r, &req) {
		return
	}
	hours := DefaultCacheGCHours
	if req.Hours != nil {
		hours = *req.Hours
	}

	result, err := s.attachments.CacheGC(r.Context(), hours)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ToCacheGCResponse(result))
}

// Response converts a batch result to its API form.
func (r ForceStorageResult) Response() api.ForceStorageResponse {
	return api.ForceStorageResponse{
		Target:    string(r.Target),
		Selected:  r.Selected,
		Moved:     r.Moved,
		Remaining: r.Remaining,
		FirstID:   r.FirstID,
		LastID:    r.LastID,
		Sweep:     ToCacheGCResponse(r.Sweep),
	}
}

// ToCacheGCResponse converts a sweep result to its API form.
func ToCacheGCResponse(result blobstore.SweepResult) api.CacheGCResponse {
	return api.CacheGCResponse{
		Files:  result.Files,
		Dirs:   result.Dirs,
		Bytes:  result.Bytes,
		Failed: result.Failed,
	}
}
