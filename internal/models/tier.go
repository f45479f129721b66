package models

import (
	"fmt"
	"strings"
)

// Tier identifies the backend holding an attachment payload.
type Tier string

const (
	TierDB   Tier = "db"
	TierFile Tier = "file"
	TierS3   Tier = "s3"

	DefaultTier = TierFile
)

var validTiers = map[Tier]struct{}{
	TierDB:   {},
	TierFile: {},
	TierS3:   {},
}

// ParseTier validates and normalizes a tier name.
func ParseTier(raw string) (Tier, error) {
	value := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("storage tier is required")
	}
	if _, ok := validTiers[value]; !ok {
		return "", fmt.Errorf("invalid storage tier: %s", value)
	}
	return value, nil
}

// Tiers returns all tiers in display order.
func Tiers() []Tier {
	return []Tier{TierDB, TierFile, TierS3}
}
