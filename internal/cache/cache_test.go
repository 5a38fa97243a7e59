package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopScopeCacheAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var c ScopeCache = NoopScopeCache{}

	require.NoError(t, c.Set(ctx, "260001", []string{"260001-01"}, time.Minute))
	ids, ok, err := c.Get(ctx, "260001")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, ids)
	assert.NoError(t, c.Invalidate(ctx, "260001"))
}

func TestScopeKeyIsNamespaced(t *testing.T) {
	assert.Equal(t, "tirepos:scope:260001", scopeKey("260001"))
}
