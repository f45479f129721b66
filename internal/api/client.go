package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	httpTimeoutEnvKey  = "TIERSTORE_HTTP_TIMEOUT"
	adminTokenEnvKey   = "TIERSTORE_ADMIN_TOKEN"
	adminTokenHeader   = "X-Admin-Token"
)

// Client is a simple HTTP client for the tierstore API.
type Client struct {
	baseURL    string
	http       *http.Client
	adminToken string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// SetAdminToken overrides the admin token taken from the environment.
func (c *Client) SetAdminToken(token string) {
	c.adminToken = strings.TrimSpace(token)
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, "/v1/info", nil, nil, &resp)
	return resp, err
}

// UploadAttachment streams content as a multipart upload.
func (c *Client) UploadAttachment(ctx context.Context, meta AttachmentUpload, content io.Reader) (AttachmentResponse, error) {
	var resp AttachmentResponse

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUpload(writer, meta, content))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/attachments", pr)
	if err != nil {
		pr.Close()
		return resp, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setAdminHeader(req)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

func writeUpload(writer *multipart.Writer, meta AttachmentUpload, content io.Reader) error {
	fields := []struct{ name, value string }{
		{"name", meta.Name},
		{"url", meta.URL},
		{"mimetype", meta.Mimetype},
		{"tier", meta.Tier},
	}
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		if err := writer.WriteField(field.name, field.value); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile("content", meta.Name)
	if err != nil {
		return err
	}
	if content != nil {
		if _, err := io.Copy(part, content); err != nil {
			return err
		}
	}
	return writer.Close()
}

func (c *Client) ListAttachments(ctx context.Context, limit, offset int) ([]AttachmentResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	var resp []AttachmentResponse
	err := c.do(ctx, http.MethodGet, "/v1/attachments", query, nil, &resp)
	return resp, err
}

func (c *Client) GetAttachment(ctx context.Context, id int64) (AttachmentResponse, error) {
	var resp AttachmentResponse
	err := c.do(ctx, http.MethodGet, attachmentPath(id), nil, nil, &resp)
	return resp, err
}

// DownloadContent writes the attachment payload to w.
func (c *Client) DownloadContent(ctx context.Context, id int64, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+attachmentPath(id)+"/content", nil)
	if err != nil {
		return 0, err
	}
	c.setAdminHeader(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, decodeError(resp)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) DeleteAttachments(ctx context.Context, ids []int64) (DeleteResponse, error) {
	var resp DeleteResponse
	err := c.do(ctx, http.MethodDelete, "/v1/attachments", nil, DeleteRequest{IDs: ids}, &resp)
	return resp, err
}

func (c *Client) DeleteAttachment(ctx context.Context, id int64) (DeleteResponse, error) {
	var resp DeleteResponse
	err := c.do(ctx, http.MethodDelete, attachmentPath(id), nil, nil, &resp)
	return resp, err
}

func (c *Client) MoveAttachment(ctx context.Context, id int64, tier string) (AttachmentResponse, error) {
	var resp AttachmentResponse
	err := c.do(ctx, http.MethodPost, attachmentPath(id)+"/move", nil, MoveRequest{Tier: tier}, &resp)
	return resp, err
}

func (c *Client) RecomputeMimetype(ctx context.Context, id int64) (AttachmentResponse, error) {
	var resp AttachmentResponse
	err := c.do(ctx, http.MethodPost, attachmentPath(id)+"/mimetype", nil, nil, &resp)
	return resp, err
}

func (c *Client) ForceStorage(ctx context.Context, req ForceStorageRequest) (ForceStorageResponse, error) {
	var resp ForceStorageResponse
	err := c.do(ctx, http.MethodPost, "/v1/admin/force-storage", nil, req, &resp)
	return resp, err
}

func (c *Client) CacheGC(ctx context.Context, req CacheGCRequest) (CacheGCResponse, error) {
	var resp CacheGCResponse
	err := c.do(ctx, http.MethodPost, "/v1/admin/cache-gc", nil, req, &resp)
	return resp, err
}

func (c *Client) ListSettings(ctx context.Context) ([]SettingResponse, error) {
	var resp []SettingResponse
	err := c.do(ctx, http.MethodGet, "/v1/settings", nil, nil, &resp)
	return resp, err
}

func (c *Client) GetSetting(ctx context.Context, key string) (SettingResponse, error) {
	var resp SettingResponse
	err := c.do(ctx, http.MethodGet, "/v1/settings/"+url.PathEscape(key), nil, nil, &resp)
	return resp, err
}

func (c *Client) SetSetting(ctx context.Context, key, value string) (SettingResponse, error) {
	var resp SettingResponse
	err := c.do(ctx, http.MethodPut, "/v1/settings/"+url.PathEscape(key), nil, SettingRequest{Value: value}, &resp)
	return resp, err
}

func (c *Client) UnsetSetting(ctx context.Context, key string) (SettingResponse, error) {
	var resp SettingResponse
	err := c.do(ctx, http.MethodDelete, "/v1/settings/"+url.PathEscape(key), nil, nil, &resp)
	return resp, err
}

func attachmentPath(id int64) string {
	return "/v1/attachments/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAdminHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

// IsStatus reports whether err is an API error with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func (c *Client) setAdminHeader(req *http.Request) {
	if c.adminToken == "" || req == nil {
		return
	}
	req.Header.Set(adminTokenHeader, c.adminToken)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
