package invoice

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tirepos/backend/internal/domain"
)

var validBuyer = domain.TaxInvoiceBuyer{
	BusinessNumber: "123-45-67890",
	CompanyName:    " Hanbit Logistics ",
	Representative: "Lee",
}

func TestSubmitApprovesAfterDelay(t *testing.T) {
	s := NewSimulatedSubmitter(time.Millisecond)
	s.now = func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) }

	inv, err := s.Submit(context.Background(), domain.Sale{ID: "sale-1"}, validBuyer)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(inv.ApprovalNumber, "20260304-"), inv.ApprovalNumber)
	assert.Equal(t, "1234567890", inv.Buyer.BusinessNumber)
	assert.Equal(t, "Hanbit Logistics", inv.Buyer.CompanyName)
}

func TestSubmitHonorsCancellation(t *testing.T) {
	s := NewSimulatedSubmitter(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Submit(ctx, domain.Sale{ID: "sale-1"}, validBuyer)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeBuyerRejectsBadNumbers(t *testing.T) {
	for _, number := range []string{"", "12345", "123-45-6789a", "12345678901"} {
		buyer := validBuyer
		buyer.BusinessNumber = number
		_, err := NormalizeBuyer(buyer)
		assert.ErrorIs(t, err, ErrInvalidBuyer, number)
	}

	buyer := validBuyer
	buyer.CompanyName = "  "
	_, err := NormalizeBuyer(buyer)
	assert.ErrorIs(t, err, ErrInvalidBuyer)
}
