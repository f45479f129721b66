package models

import "fmt"

// Location is where an attachment payload lives. It is one of Inline, FileRef
// or RemoteRef; a record carries exactly one.
type Location interface {
	Tier() Tier
	isLocation()
}

// Inline keeps the payload in the record itself.
type Inline struct {
	Data []byte
}

// FileRef points at a key in the local filestore.
type FileRef struct {
	Key string
}

// RemoteRef points at a checksum-sharded key in the object store, relative to
// the tenant namespace.
type RemoteRef struct {
	Key string
}

func (Inline) Tier() Tier    { return TierDB }
func (FileRef) Tier() Tier   { return TierFile }
func (RemoteRef) Tier() Tier { return TierS3 }

func (Inline) isLocation()    {}
func (FileRef) isLocation()   {}
func (RemoteRef) isLocation() {}

// LocationColumns is the flattened storage form of a Location. At most one
// field is set.
type LocationColumns struct {
	DBPayload  []byte
	StoreFname string
	RemoteKey  string
}

// Columns flattens loc for persistence. A nil location is stored as an empty
// inline payload.
func Columns(loc Location) LocationColumns {
	switch v := loc.(type) {
	case FileRef:
		return LocationColumns{StoreFname: v.Key}
	case RemoteRef:
		return LocationColumns{RemoteKey: v.Key}
	case Inline:
		return LocationColumns{DBPayload: v.Data}
	default:
		return LocationColumns{DBPayload: []byte{}}
	}
}

// LocationFromColumns rebuilds a Location from stored columns and rejects
// rows where more than one tier column is populated.
func LocationFromColumns(cols LocationColumns) (Location, error) {
	set := 0
	if cols.StoreFname != "" {
		set++
	}
	if cols.RemoteKey != "" {
		set++
	}
	if len(cols.DBPayload) > 0 {
		set++
	}
	if set > 1 {
		return nil, fmt.Errorf("attachment has more than one storage location")
	}
	switch {
	case cols.RemoteKey != "":
		return RemoteRef{Key: cols.RemoteKey}, nil
	case cols.StoreFname != "":
		return FileRef{Key: cols.StoreFname}, nil
	default:
		return Inline{Data: cols.DBPayload}, nil
	}
}
