package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/storage"
)

// ErrNotFound is returned by Get for a key that holds no blob
var ErrNotFound = errors.New("blob not found")

// Checksum returns the hex SHA-256 of data, recorded on rollback points
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PointKey is the blob key holding the captured state of a rollback point
func PointKey(moduleKey, pointID string) string {
	return fmt.Sprintf("rollback-points/%s/%s.json", moduleKey, pointID)
}

// Open returns the blob store selected by cfg.BlobType
func Open(ctx context.Context, cfg storage.Config) (modules.BlobStore, error) {
	switch cfg.BlobType {
	case "", "filesystem":
		return NewFileSystem(cfg.BlobRoot)
	case "s3":
		return NewS3(ctx, cfg)
	}
	return nil, fmt.Errorf("unsupported blob type %q", cfg.BlobType)
}
