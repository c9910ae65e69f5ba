// Package cache memoizes upstream metadata fetches. Catalog, store and
// payment type lists change rarely, so a scheduled sync can reuse them.
package cache

import (
	"context"
	"strings"
	"time"
)

const DefaultMetadataTTL = time.Hour

type MetadataCache interface {
	// Get decodes the cached value into dst. ok is false on a miss.
	Get(ctx context.Context, key string, dst any) (ok bool, err error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type NoopMetadataCache struct{}

func (NoopMetadataCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopMetadataCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (NoopMetadataCache) Delete(_ context.Context, _ ...string) error {
	return nil
}

// Key namespaces a metadata entity so several deployments can share one
// Redis database.
func Key(parts ...string) string {
	return "posdash:metadata:" + strings.Join(parts, ":")
}
