// Package invoice submits tax invoices to the tax authority. Only a
// simulated submitter exists; it waits a fixed delay and approves.
package invoice

import (
	"context"
	"errors"
	"strings"
	"time"

	"tirepos/backend/internal/domain"
	"tirepos/backend/internal/xid"
)

var ErrInvalidBuyer = errors.New("invalid invoice buyer")

type Submitter interface {
	Submit(ctx context.Context, sale domain.Sale, buyer domain.TaxInvoiceBuyer) (domain.TaxInvoice, error)
}

type SimulatedSubmitter struct {
	delay time.Duration
	now   func() time.Time
}

func NewSimulatedSubmitter(delay time.Duration) *SimulatedSubmitter {
	return &SimulatedSubmitter{delay: delay, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SimulatedSubmitter) Submit(ctx context.Context, sale domain.Sale, buyer domain.TaxInvoiceBuyer) (domain.TaxInvoice, error) {
	buyer, err := NormalizeBuyer(buyer)
	if err != nil {
		return domain.TaxInvoice{}, err
	}

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.TaxInvoice{}, ctx.Err()
		case <-timer.C:
		}
	}

	issuedAt := s.now()
	return domain.TaxInvoice{
		ApprovalNumber: xid.ApprovalNumber(issuedAt.Format("20060102")),
		IssuedAt:       issuedAt,
		Buyer:          buyer,
	}, nil
}

// NormalizeBuyer strips separators from the business registration number
// and checks that the required fields are present. A registration number
// has exactly ten digits.
func NormalizeBuyer(buyer domain.TaxInvoiceBuyer) (domain.TaxInvoiceBuyer, error) {
	number := strings.NewReplacer("-", "", " ", "").Replace(buyer.BusinessNumber)
	if len(number) != 10 {
		return buyer, ErrInvalidBuyer
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return buyer, ErrInvalidBuyer
		}
	}
	buyer.BusinessNumber = number
	buyer.CompanyName = strings.TrimSpace(buyer.CompanyName)
	buyer.Representative = strings.TrimSpace(buyer.Representative)
	buyer.Address = strings.TrimSpace(buyer.Address)
	buyer.Email = strings.TrimSpace(buyer.Email)
	if buyer.CompanyName == "" || buyer.Representative == "" {
		return buyer, ErrInvalidBuyer
	}
	return buyer, nil
}
