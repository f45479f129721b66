package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"tierstore/internal/api"
	"tierstore/internal/models"
)

const (
	attachmentUploadMaxBody   = 100 << 20 // 100 MiB
	attachmentMultipartMemory = 8 << 20   // 8 MiB
)

func (s *Server) handleCreateAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(attachmentUploadMaxBody))
	if err := r.ParseMultipartForm(attachmentMultipartMemory); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("content")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("content is required"), ErrCodeMissingRequired))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
		return
	}

	attachment, err := s.attachments.Create(r.Context(), CreateInput{
		Name:     firstNonEmpty(r.FormValue("name"), header.Filename),
		URL:      r.FormValue("url"),
		Mimetype: r.FormValue("mimetype"),
		Data:     data,
		Tier:     r.FormValue("tier"),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toAttachmentResponse(attachment))
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	attachments, err := s.attachments.List(r.Context(), limit, offset)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := make([]api.AttachmentResponse, 0, len(attachments))
	for _, attachment := range attachments {
		resp = append(resp, toAttachmentResponse(attachment))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	attachment, err := s.attachments.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAttachmentResponse(attachment))
}

func (s *Server) handleGetAttachmentContent(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	attachment, data, err := s.attachments.Content(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	mediaType := attachment.Mimetype
	if mediaType == "" {
		mediaType = defaultMimetype
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Checksum-Sha256", attachment.Checksum)
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": attachment.Name}); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.log().Debug("write attachment content", "id", id, "error", err)
	}
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	deleted, err := s.attachments.Delete(r.Context(), []int64{id})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if len(deleted) == 0 {
		s.writeErrorReq(w, r, http.StatusNotFound, notFound(fmt.Errorf("attachment not found")))
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{IDs: deleted})
}

func (s *Server) handleDeleteAttachments(w http.ResponseWriter, r *http.Request) {
	var req api.DeleteRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	for _, id := range req.IDs {
		if id <= 0 {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid id"), ErrCodeInvalidID))
			return
		}
	}
	deleted, err := s.attachments.Delete(r.Context(), req.IDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if deleted == nil {
		deleted = []int64{}
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{IDs: deleted})
}

func (s *Server) handleMoveAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	var req api.MoveRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	attachment, err := s.attachments.Move(r.Context(), id, req.Tier)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAttachmentResponse(attachment))
}

func (s *Server) handleRecomputeMimetype(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	attachment, err := s.attachments.RecomputeMimetype(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAttachmentResponse(attachment))
}

func toAttachmentResponse(attachment models.Attachment) api.AttachmentResponse {
	return api.AttachmentResponse{
		ID:        attachment.ID,
		Name:      attachment.Name,
		URL:       attachment.URL,
		Mimetype:  attachment.Mimetype,
		Checksum:  attachment.Checksum,
		FileSize:  attachment.FileSize,
		Location:  string(attachment.StoredTier()),
		CreatedAt: attachment.CreatedAt,
		UpdatedAt: attachment.UpdatedAt,
	}
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}
	return badRequestCode(err, ErrCodeInvalidArgument)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
