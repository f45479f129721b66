package server

import (
	"net/http"
	"strings"

	"tierstore/internal/api"
)

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := make([]api.SettingResponse, 0, len(settings))
	for _, setting := range settings {
		resp = append(resp, toSettingResponse(setting))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	setting, err := s.settings.Get(r.Context(), settingKey(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSettingResponse(setting))
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	var req api.SettingRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	setting, err := s.settings.Set(r.Context(), settingKey(r), req.Value)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSettingResponse(setting))
}

func (s *Server) handleUnsetSetting(w http.ResponseWriter, r *http.Request) {
	setting, err := s.settings.Unset(r.Context(), settingKey(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSettingResponse(setting))
}

func settingKey(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("key"))
}

func toSettingResponse(setting EffectiveSetting) api.SettingResponse {
	resp := api.SettingResponse{
		Key:    setting.Key,
		Value:  setting.Value,
		Source: setting.Source,
	}
	if !setting.UpdatedAt.IsZero() {
		updated := setting.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}
