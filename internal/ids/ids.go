package ids

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// AssetPrefix is the prefix for local video asset IDs.
	AssetPrefix = "vid-"
	// PurgeJobPrefix is the prefix for background bulk deletion jobs.
	PurgeJobPrefix = "purge-"
)

// NewAssetID generates a new asset ID using UUIDv7.
// Format: vid-<uuidv7>
// UUIDv7 is time-ordered, making IDs sortable by creation time.
func NewAssetID() string {
	return AssetPrefix + uuid.Must(uuid.NewV7()).String()
}

// IsValidAssetID checks if a string is a valid asset ID.
func IsValidAssetID(id string) bool {
	return hasUUIDSuffix(id, AssetPrefix)
}

// NewPurgeJobID generates a purge job ID. Format: purge-<uuidv7>
func NewPurgeJobID() string {
	return PurgeJobPrefix + uuid.Must(uuid.NewV7()).String()
}

// IsValidPurgeJobID checks if a string is a valid purge job ID.
func IsValidPurgeJobID(id string) bool {
	return hasUUIDSuffix(id, PurgeJobPrefix)
}

func hasUUIDSuffix(id, prefix string) bool {
	if !strings.HasPrefix(id, prefix) {
		return false
	}
	_, err := uuid.Parse(id[len(prefix):])
	return err == nil
}
