package api

import "time"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// InfoResponse describes the running server and its storage configuration.
type InfoResponse struct {
	DBPath          string `json:"db_path"`
	Tenant          string `json:"tenant"`
	Location        string `json:"location"`
	CacheEnabled    bool   `json:"cache_enabled"`
	RemoteDelete    bool   `json:"remote_delete"`
	SchemaVersion   int    `json:"schema_version"`
	PendingVersions []int  `json:"pending_versions,omitempty"`
}

// AttachmentResponse is one attachment record without its payload.
type AttachmentResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url,omitempty"`
	Mimetype  string    `json:"mimetype"`
	Checksum  string    `json:"checksum"`
	FileSize  int64     `json:"file_size"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AttachmentUpload is the metadata sent alongside multipart content.
type AttachmentUpload struct {
	Name     string
	URL      string
	Mimetype string
	Tier     string
}

// DeleteResponse lists the ids that were removed.
type DeleteResponse struct {
	IDs []int64 `json:"ids"`
}

// MoveRequest relocates one attachment to a tier.
type MoveRequest struct {
	Tier string `json:"tier"`
}

// ForceStorageRequest bounds one migration batch. Zero uses the configured
// batch size.
type ForceStorageRequest struct {
	Limit int `json:"limit,omitempty"`
}

// ForceStorageResponse reports one migration batch.
type ForceStorageResponse struct {
	Target    string          `json:"target"`
	Selected  int             `json:"selected"`
	Moved     int             `json:"moved"`
	Remaining int             `json:"remaining"`
	FirstID   int64           `json:"first_id,omitempty"`
	LastID    int64           `json:"last_id,omitempty"`
	Sweep     CacheGCResponse `json:"sweep"`
}

// CacheGCRequest sets the sweep cutoff relative to now. Nil uses -24 hours.
type CacheGCRequest struct {
	Hours *float64 `json:"hours,omitempty"`
}

// CacheGCResponse reports one cache sweep.
type CacheGCResponse struct {
	Files  int   `json:"files"`
	Dirs   int   `json:"dirs"`
	Bytes  int64 `json:"bytes"`
	Failed int   `json:"failed"`
}

// SettingRequest sets one per-install override.
type SettingRequest struct {
	Value string `json:"value"`
}

// SettingResponse is the effective value of one overridable key.
type SettingResponse struct {
	Key       string     `json:"key"`
	Value     string     `json:"value"`
	Source    string     `json:"source"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// DeleteRequest removes several attachments in one transaction.
type DeleteRequest struct {
	IDs []int64 `json:"ids"`
}
