package store

import (
	"context"

	"tierstore/internal/models"
)

// AttachmentStore is the record persistence surface used by the attachment
// service.
type AttachmentStore interface {
	CreateAttachment(ctx context.Context, attachment *models.Attachment) error
	GetAttachment(ctx context.Context, id int64) (*models.Attachment, error)
	GetAttachments(ctx context.Context, ids []int64) ([]models.Attachment, error)
	ListAttachments(ctx context.Context, limit, offset int) ([]models.Attachment, error)
	ListMisplaced(ctx context.Context, target models.Tier, limit int) ([]models.Attachment, error)
	CountMisplaced(ctx context.Context, target models.Tier) (int, error)
	ReferencedRemoteKeys(ctx context.Context, keys []string) (map[string]bool, error)
	ReferencedFileKeys(ctx context.Context, keys []string) (map[string]bool, error)
	InTx(ctx context.Context, fn func(*Tx) error) error
}

// SettingsStore persists per-install configuration overrides.
type SettingsStore interface {
	Settings(ctx context.Context) (map[string]string, error)
	ListSettings(ctx context.Context) ([]Setting, error)
	GetSetting(ctx context.Context, key string) (Setting, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

var (
	_ AttachmentStore = (*Store)(nil)
	_ SettingsStore   = (*Store)(nil)
)
