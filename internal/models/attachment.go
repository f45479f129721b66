package models

import "time"

// Attachment is one stored binary payload and the metadata describing where
// it lives.
type Attachment struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	URL          string    `json:"url,omitempty"`
	Mimetype     string    `json:"mimetype"`
	Checksum     string    `json:"checksum"`
	FileSize     int64     `json:"file_size"`
	Location     Location  `json:"-"`
	IndexContent string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsNew reports whether the record has not been persisted yet.
func (a *Attachment) IsNew() bool {
	return a == nil || a.ID == 0
}

// StoredTier returns the tier of the record's location. A missing location
// counts as an inline payload.
func (a *Attachment) StoredTier() Tier {
	if a == nil || a.Location == nil {
		return TierDB
	}
	return a.Location.Tier()
}

// ContentLocation returns the tier holding the payload. Records that were not
// persisted yet report defaultTier.
func (a *Attachment) ContentLocation(defaultTier Tier) Tier {
	if a.IsNew() {
		return defaultTier
	}
	return a.StoredTier()
}

// RemoteKey returns the object-store key or "" when the payload is elsewhere.
func (a *Attachment) RemoteKey() string {
	if a == nil {
		return ""
	}
	if ref, ok := a.Location.(RemoteRef); ok {
		return ref.Key
	}
	return ""
}

// FileKey returns the filestore key or "" when the payload is elsewhere.
func (a *Attachment) FileKey() string {
	if a == nil {
		return ""
	}
	if ref, ok := a.Location.(FileRef); ok {
		return ref.Key
	}
	return ""
}
