package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Checksum returns the lowercase hex SHA-256 digest of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShardedKey fans a checksum out into two directory levels:
// "ab/cd/abcd...".
func ShardedKey(checksum string) string {
	if len(checksum) < 4 {
		return checksum
	}
	return fmt.Sprintf("%s/%s/%s", checksum[0:2], checksum[2:4], checksum)
}

// ComputeKey returns the checksum of data and its sharded storage key.
func ComputeKey(data []byte) (checksum, key string) {
	checksum = Checksum(data)
	return checksum, ShardedKey(checksum)
}

// NamespacedKey prefixes a sharded key with the tenant namespace.
func NamespacedKey(tenant, key string) string {
	if tenant == "" {
		return key
	}
	return tenant + "/" + key
}
