package cache

import (
	"context"
	"time"
)

// ScopeCache stores the branch ids an owner may see, keyed by owner id.
type ScopeCache interface {
	Get(ctx context.Context, ownerID string) ([]string, bool, error)
	Set(ctx context.Context, ownerID string, storeIDs []string, ttl time.Duration) error
	Invalidate(ctx context.Context, ownerID string) error
}

type NoopScopeCache struct{}

func (NoopScopeCache) Get(_ context.Context, _ string) ([]string, bool, error) {
	return nil, false, nil
}

func (NoopScopeCache) Set(_ context.Context, _ string, _ []string, _ time.Duration) error {
	return nil
}

func (NoopScopeCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

func scopeKey(ownerID string) string {
	return "tirepos:scope:" + ownerID
}
