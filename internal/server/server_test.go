package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"tierstore/internal/api"
	"tierstore/internal/auth"
	"tierstore/internal/blobstore"
	"tierstore/internal/config"
	"tierstore/internal/models"
)

const testAdminToken = "0123456789abcdef0123"

func newTestServer(t *testing.T, location models.Tier) (*Server, *testEnv) {
	t.Helper()
	env := newTestEnv(t, location)
	hash, err := auth.HashToken(testAdminToken)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	env.cfg.Admin.TokenHash = hash

	srv := New("127.0.0.1:0", env.store, env.cfg, quietLogger(), Options{
		ObjectStoreFactory: func(context.Context, config.StorageSettings) (blobstore.ObjectStore, error) {
			return env.remote, nil
		},
		JanitorInterval: -1,
	})
	return srv, env
}

func uploadRequest(t *testing.T, fields map[string]string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	part, err := writer.CreateFormFile("content", "upload.bin")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write content: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/attachments", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestListenAddrRemoteGuard(t *testing.T) {
	t.Run("allows loopback", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		addr, err := ListenAddr("http://127.0.0.1:7380")
		if err != nil {
			t.Fatalf("expected loopback to be allowed, got error: %v", err)
		}
		if addr != "127.0.0.1:7380" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})

	t.Run("blocks non-loopback by default", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		if _, err := ListenAddr("http://0.0.0.0:7380"); err == nil {
			t.Fatal("expected error for non-loopback listen host")
		}
	})

	t.Run("allows non-loopback when explicitly enabled", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "true")
		addr, err := ListenAddr("http://0.0.0.0:7380")
		if err != nil {
			t.Fatalf("expected allow-remote to permit host, got error: %v", err)
		}
		if addr != "0.0.0.0:7380" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})
}

func TestWithAuth(t *testing.T) {
	hash, err := auth.HashToken(testAdminToken)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}

	t.Run("admin routes require token", func(t *testing.T) {
		srv := &Server{adminTokenHash: hash, logger: quietLogger()}
		nextCalled := false
		handler := srv.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nextCalled = true
			w.WriteHeader(http.StatusNoContent)
		}))

		for _, path := range []string{"/v1/admin/force-storage", "/v1/settings", "/v1/settings/s3.bucket"} {
			req := httptest.NewRequest(http.MethodPost, path, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != http.StatusForbidden {
				t.Fatalf("%s: expected 403, got %d", path, w.Code)
			}
			errResp := decodeBody[api.ErrorResponse](t, w)
			if errResp.ErrorCode != ErrCodeForbidden {
				t.Fatalf("expected error_code %d, got %d", ErrCodeForbidden, errResp.ErrorCode)
			}
		}
		if nextCalled {
			t.Fatal("next handler should not be called")
		}
	})

	t.Run("valid token marks admin", func(t *testing.T) {
		srv := &Server{adminTokenHash: hash, logger: quietLogger()}
		var admin bool
		handler := srv.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin = isAdmin(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodPost, "/v1/admin/cache-gc", nil)
		req.Header.Set(adminTokenHeader, testAdminToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent || !admin {
			t.Fatalf("expected admin pass-through, got %d admin=%v", w.Code, admin)
		}
	})

	t.Run("non-admin routes pass without token", func(t *testing.T) {
		srv := &Server{adminTokenHash: hash, logger: quietLogger()}
		handler := srv.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isAdmin(r.Context()) {
				t.Error("expected no admin capability")
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/attachments", nil))
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", w.Code)
		}
	})

	t.Run("no configured hash refuses admin", func(t *testing.T) {
		srv := &Server{logger: quietLogger()}
		handler := srv.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		req := httptest.NewRequest(http.MethodPost, "/v1/admin/cache-gc", nil)
		req.Header.Set(adminTokenHeader, testAdminToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})

	t.Run("repeated bad tokens are throttled", func(t *testing.T) {
		srv := &Server{
			adminTokenHash: hash,
			logger:         quietLogger(),
			tokenLimiter:   newTokenFailureLimiter(2, adminTokenWindow, adminTokenBlockFor),
		}
		handler := srv.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodPost, "/v1/admin/cache-gc", nil)
			req.Header.Set(adminTokenHeader, "wrong-token-wrong-token")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			codes = append(codes, w.Code)
		}
		if codes[0] != http.StatusForbidden || codes[1] != http.StatusForbidden || codes[2] != http.StatusTooManyRequests {
			t.Fatalf("unexpected status sequence: %v", codes)
		}
	})
}

func TestAttachmentHTTPLifecycle(t *testing.T) {
	srv, env := newTestServer(t, models.TierFile)
	payload := []byte("hello over http")

	w := serve(srv, uploadRequest(t, map[string]string{"name": "greeting.txt", "tier": "s3"}, payload))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decodeBody[api.AttachmentResponse](t, w)
	if created.Location != "s3" || created.FileSize != int64(len(payload)) || created.Name != "greeting.txt" {
		t.Fatalf("unexpected attachment: %+v", created)
	}
	path := "/v1/attachments/" + strconv.FormatInt(created.ID, 10)

	w = serve(srv, httptest.NewRequest(http.MethodGet, path+"/content", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), payload) {
		t.Fatalf("unexpected content %q", w.Body.String())
	}
	if w.Header().Get("X-Checksum-Sha256") != created.Checksum {
		t.Fatalf("expected checksum header, got %q", w.Header().Get("X-Checksum-Sha256"))
	}

	req := httptest.NewRequest(http.MethodPost, path+"/move", strings.NewReader(`{"tier":"db"}`))
	w = serve(srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if moved := decodeBody[api.AttachmentResponse](t, w); moved.Location != "db" {
		t.Fatalf("expected db location, got %+v", moved)
	}
	if len(env.remote.Keys()) != 0 {
		t.Fatalf("expected remote object deleted, got %v", env.remote.Keys())
	}

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/v1/attachments?limit=10", nil))
	if list := decodeBody[[]api.AttachmentResponse](t, w); len(list) != 1 {
		t.Fatalf("expected one attachment, got %d", len(list))
	}

	w = serve(srv, httptest.NewRequest(http.MethodDelete, path, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w = serve(srv, httptest.NewRequest(http.MethodDelete, path, nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", w.Code)
	}
	w = serve(srv, httptest.NewRequest(http.MethodGet, path, nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAttachmentHTTPValidation(t *testing.T) {
	srv, _ := newTestServer(t, models.TierFile)

	cases := []struct {
		name   string
		req    *http.Request
		status int
		code   int
	}{
		{"bad id", httptest.NewRequest(http.MethodGet, "/v1/attachments/abc", nil), http.StatusBadRequest, ErrCodeInvalidID},
		{"bad limit", httptest.NewRequest(http.MethodGet, "/v1/attachments?limit=-1", nil), http.StatusBadRequest, ErrCodeInvalidQuery},
		{"bad tier", uploadRequest(t, map[string]string{"name": "x", "tier": "tape"}, []byte("x")), http.StatusBadRequest, ErrCodeInvalidTier},
		{"bad json", httptest.NewRequest(http.MethodPost, "/v1/attachments/1/move", strings.NewReader("{")), http.StatusBadRequest, ErrCodeInvalidJSON},
		{"missing content", httptest.NewRequest(http.MethodPost, "/v1/attachments", strings.NewReader("")), http.StatusBadRequest, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(srv, tc.req)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
			if tc.code != 0 {
				if errResp := decodeBody[api.ErrorResponse](t, w); errResp.ErrorCode != tc.code {
					t.Fatalf("expected error_code %d, got %d", tc.code, errResp.ErrorCode)
				}
			}
		})
	}
}

func TestContentUnavailableMapsTo503(t *testing.T) {
	srv, env := newTestServer(t, models.TierS3)
	attachment := env.create(t, "remote.bin", []byte("remote"), "")
	if _, err := env.svc.CacheGC(context.Background(), 1); err != nil {
		t.Fatalf("cache gc: %v", err)
	}
	env.remote.FailGets(errors.New("no route to host"))

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/v1/attachments/"+strconv.FormatInt(attachment.ID, 10)+"/content", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	errResp := decodeBody[api.ErrorResponse](t, w)
	if errResp.Code != "unavailable" || errResp.ErrorCode != ErrCodeUnavailable {
		t.Fatalf("unexpected error response: %+v", errResp)
	}
}

func TestAdminEndpoints(t *testing.T) {
	srv, env := newTestServer(t, models.TierDB)
	env.create(t, "a.txt", []byte("aaa"), "")
	env.create(t, "b.txt", []byte("bbb"), "")

	req := httptest.NewRequest(http.MethodPut, "/v1/settings/storage.location", strings.NewReader(`{"value":"s3"}`))
	req.Header.Set(adminTokenHeader, testAdminToken)
	w := serve(srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if setting := decodeBody[api.SettingResponse](t, w); setting.Value != "s3" || setting.Source != "override" {
		t.Fatalf("unexpected setting: %+v", setting)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/admin/force-storage", strings.NewReader(`{"limit":1}`))
	w = serve(srv, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/admin/force-storage", strings.NewReader(`{"limit":1}`))
	req.Header.Set(adminTokenHeader, testAdminToken)
	w = serve(srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[api.ForceStorageResponse](t, w)
	if resp.Target != "s3" || resp.Moved != 1 || resp.Remaining != 1 {
		t.Fatalf("unexpected force-storage response: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/admin/cache-gc", nil)
	req.Header.Set(adminTokenHeader, testAdminToken)
	w = serve(srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/settings", nil)
	req.Header.Set(adminTokenHeader, testAdminToken)
	w = serve(srv, req)
	if list := decodeBody[[]api.SettingResponse](t, w); len(list) != len(config.OverridableKeys()) {
		t.Fatalf("expected every overridable key, got %d", len(list))
	}
}

func TestInfoAndMetrics(t *testing.T) {
	srv, env := newTestServer(t, models.TierS3)
	env.create(t, "m.txt", []byte("metrics"), "")

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected healthy server, got %d", w.Code)
	}

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/v1/info", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	info := decodeBody[api.InfoResponse](t, w)
	if info.Tenant != testTenant || info.Location != "s3" || info.SchemaVersion == 0 {
		t.Fatalf("unexpected info: %+v", info)
	}

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	for _, name := range []string{"tierstore_http_requests_total", "tierstore_cache_hits_total"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("expected metric %s in output", name)
		}
	}
}
