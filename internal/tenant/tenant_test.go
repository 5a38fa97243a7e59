package tenant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tirepos/backend/internal/domain"
)

func TestNextOwnerIDSequential(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ids := []string{"admin", "250017", "260001"}

	first := NextOwnerID(ids, now)
	assert.Equal(t, "260002", first)

	second := NextOwnerID(append(ids, first), now)
	assert.Equal(t, "260003", second)
	assert.Greater(t, second, first)
}

func TestNextOwnerIDIgnoresForeignIDs(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := []string{"26abcd", "2600011", "26", "250099"}
	assert.Equal(t, "260001", NextOwnerID(ids, now))
	assert.Equal(t, "260001", NextOwnerID(nil, now))
}

func TestNextBranchID(t *testing.T) {
	stores := []domain.StoreAccount{
		{ID: "260001-01", OwnerID: "260001"},
		{ID: "260001-03", OwnerID: "260001"},
		{ID: "260002-01", OwnerID: "260002"},
	}
	assert.Equal(t, "260001-04", NextBranchID("260001", stores))
	assert.Equal(t, "260003-01", NextBranchID("260003", stores))
	assert.Equal(t, "260002-07", BranchID("260002", 7))
}

func TestBranchName(t *testing.T) {
	assert.Equal(t, "Kim Tires Busan", BranchName("Kim Tires", "bsn"))
	assert.Equal(t, "Kim Tires JEJU", BranchName(" Kim Tires ", "JEJU"))
	assert.Equal(t, "Kim Tires", BranchName("Kim Tires", ""))
	assert.True(t, KnownRegion("sel"))
	assert.False(t, KnownRegion("JEJU"))
}

func TestOwnedStores(t *testing.T) {
	stores := []domain.StoreAccount{
		{ID: "a", OwnerID: "1"},
		{ID: "b", OwnerID: "2"},
		{ID: "c", OwnerID: "1"},
	}
	owned := OwnedStores("1", stores)
	assert.Len(t, owned, 2)
	assert.Empty(t, OwnedStores("9", stores))
}
