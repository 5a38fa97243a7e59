package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"tirepos/backend/internal/domain"
	"tirepos/backend/internal/events"
	"tirepos/backend/internal/invoice"
	"tirepos/backend/internal/ledger"
	"tirepos/backend/internal/scope"
	"tirepos/backend/internal/store"
)

func (s *Service) CompleteSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	session, err := s.require(ctx, domain.RoleStaff)
	if err != nil {
		return domain.Sale{}, err
	}
	storeID, err := s.targetStore(ctx, session, req.StoreID)
	if err != nil {
		return domain.Sale{}, err
	}
	items, err := s.normalizeLines(ctx, req.Items)
	if err != nil {
		return domain.Sale{}, err
	}
	if req.TotalAmount < 0 {
		return domain.Sale{}, invalid("total_amount", "must not be negative")
	}

	result, err := s.repo.CreateSale(ctx, domain.Sale{
		Date:          s.now(),
		StoreID:       storeID,
		TotalAmount:   req.TotalAmount,
		PaymentMethod: defaultString(strings.ToUpper(req.PaymentMethod), "CASH"),
		Items:         items,
		Customer:      normalizeCustomer(req.Customer),
		StaffName:     strings.TrimSpace(req.StaffName),
		Memo:          strings.TrimSpace(req.Memo),
	})
	if err != nil {
		return domain.Sale{}, err
	}

	sale := result.Sale
	s.reportAdjustments(sale.ID, result.Adjustments)
	s.metrics.SalesCompleted.WithLabelValues(sale.PaymentMethod).Inc()
	s.metrics.SaleAmount.WithLabelValues(sale.PaymentMethod).Add(float64(sale.TotalAmount))
	s.logAudit(ctx, sale.StoreID, "sale_complete", "sale", sale.ID,
		fmt.Sprintf("items=%d,total=%d,payment=%s", len(sale.Items), sale.TotalAmount, sale.PaymentMethod))
	s.publish(ctx, events.SubjectSaleCompleted, sale.StoreID, sale.ID, sale)
	s.flagLowStock(ctx, result.Adjustments)
	return sale, nil
}

// EditSale replaces the lines and payment details of a sale and reconciles
// branch stock by the per-product quantity change. The branch never moves.
func (s *Service) EditSale(ctx context.Context, saleID string, req domain.SaleUpdateRequest) (domain.Sale, error) {
	session, err := s.require(ctx, domain.RoleStoreAdmin)
	if err != nil {
		return domain.Sale{}, err
	}
	prev, err := s.visibleSale(ctx, session, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if prev.IsCanceled {
		return domain.Sale{}, fmt.Errorf("%w: sale %s is canceled", store.ErrConflict, prev.ID)
	}
	if branch := strings.TrimSpace(req.StoreID); branch != "" && branch != prev.StoreID {
		return domain.Sale{}, invalid("store_id", "a sale cannot move to another branch")
	}
	items, err := s.normalizeLines(ctx, req.Items)
	if err != nil {
		return domain.Sale{}, err
	}
	if req.TotalAmount < 0 {
		return domain.Sale{}, invalid("total_amount", "must not be negative")
	}

	result, err := s.repo.UpdateSale(ctx, domain.Sale{
		ID:            prev.ID,
		StoreID:       prev.StoreID,
		TotalAmount:   req.TotalAmount,
		PaymentMethod: defaultString(strings.ToUpper(req.PaymentMethod), prev.PaymentMethod),
		Items:         items,
		Customer:      normalizeCustomer(req.Customer),
		StaffName:     strings.TrimSpace(req.StaffName),
		Memo:          strings.TrimSpace(req.Memo),
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.reportAdjustments(result.Sale.ID, result.Adjustments)
	s.logAudit(ctx, result.Sale.StoreID, "sale_edit", "sale", result.Sale.ID,
		fmt.Sprintf("old_total=%d,new_total=%d,adjusted=%d", prev.TotalAmount, result.Sale.TotalAmount, len(result.Adjustments)))
	return result.Sale, nil
}

// CancelSale flags a sale as canceled. Stock taken by the sale stays taken.
func (s *Service) CancelSale(ctx context.Context, saleID string) (domain.Sale, error) {
	session, err := s.require(ctx, domain.RoleStoreAdmin)
	if err != nil {
		return domain.Sale{}, err
	}
	if _, err := s.visibleSale(ctx, session, saleID); err != nil {
		return domain.Sale{}, err
	}

	canceled, err := s.repo.CancelSale(ctx, saleID, s.now())
	if err != nil {
		return domain.Sale{}, err
	}

	s.metrics.SalesCanceled.Inc()
	s.logAudit(ctx, canceled.StoreID, "sale_cancel", "sale", canceled.ID, fmt.Sprintf("total=%d", canceled.TotalAmount))
	s.publish(ctx, events.SubjectSaleCanceled, canceled.StoreID, canceled.ID, canceled)
	return *canceled, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	session, err := s.session(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.visibleSale(ctx, session, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, storeID string, from string, to string) ([]domain.Sale, error) {
	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.readScope(ctx, session, storeID)
	if err != nil {
		return nil, err
	}
	start, end, err := parseRange(from, to)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListSales(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return scope.FilterSales(v, sales), nil
}

// IssueTaxInvoice submits a sale to the tax authority and records the
// approval on the sale.
func (s *Service) IssueTaxInvoice(ctx context.Context, saleID string, req domain.TaxInvoiceRequest) (domain.Sale, error) {
	session, err := s.require(ctx, domain.RoleStaff)
	if err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.visibleSale(ctx, session, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if sale.IsCanceled {
		return domain.Sale{}, fmt.Errorf("%w: sale %s is canceled", store.ErrConflict, sale.ID)
	}
	if sale.TaxInvoice != nil {
		return domain.Sale{}, fmt.Errorf("%w: sale %s already has a tax invoice", store.ErrConflict, sale.ID)
	}
	if _, err := invoice.NormalizeBuyer(req.Buyer); err != nil {
		return domain.Sale{}, invalid("buyer", "a 10-digit business number, company name and representative are required")
	}

	issued, err := s.invoices.Submit(ctx, *sale, req.Buyer)
	if err != nil {
		if errors.Is(err, invoice.ErrInvalidBuyer) {
			return domain.Sale{}, invalid("buyer", err.Error())
		}
		return domain.Sale{}, err
	}

	updated, err := s.repo.MarkSaleInvoiced(ctx, sale.ID, issued)
	if err != nil {
		return domain.Sale{}, err
	}
	s.logAudit(ctx, updated.StoreID, "tax_invoice_issue", "sale", updated.ID,
		fmt.Sprintf("approval=%s,buyer=%s", issued.ApprovalNumber, issued.Buyer.BusinessNumber))
	return *updated, nil
}

// SalesSummary totals one day of sales over the visible branches.
// Canceled sales are counted apart and excluded from the totals.
func (s *Service) SalesSummary(ctx context.Context, storeID string, date string) (domain.SalesSummary, error) {
	session, err := s.session(ctx)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	v, err := s.readScope(ctx, session, storeID)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	from, to, err := s.parseDay(date)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	sales, err := s.repo.ListSales(ctx, from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	summary := domain.SalesSummary{Date: from.Format("2006-01-02")}
	byPayment := map[string]*domain.SalesSummaryPayment{}
	byStore := map[string]*domain.SalesSummaryStore{}
	for _, sale := range scope.FilterSales(v, sales) {
		if sale.IsCanceled {
			summary.CanceledSales++
			continue
		}
		summary.Sales++
		summary.TotalAmount += sale.TotalAmount

		p, ok := byPayment[sale.PaymentMethod]
		if !ok {
			p = &domain.SalesSummaryPayment{PaymentMethod: sale.PaymentMethod}
			byPayment[sale.PaymentMethod] = p
		}
		p.Sales++
		p.TotalAmount += sale.TotalAmount

		st, ok := byStore[sale.StoreID]
		if !ok {
			st = &domain.SalesSummaryStore{StoreID: sale.StoreID}
			byStore[sale.StoreID] = st
		}
		st.Sales++
		st.TotalAmount += sale.TotalAmount
	}
	for _, e := range scope.FilterExpenses(v, expenses) {
		summary.ExpenseAmount += e.Amount
	}

	summary.ByPayment = make([]domain.SalesSummaryPayment, 0, len(byPayment))
	for _, p := range byPayment {
		summary.ByPayment = append(summary.ByPayment, *p)
	}
	sort.Slice(summary.ByPayment, func(i, j int) bool {
		return summary.ByPayment[i].PaymentMethod < summary.ByPayment[j].PaymentMethod
	})
	summary.ByStore = make([]domain.SalesSummaryStore, 0, len(byStore))
	for _, st := range byStore {
		summary.ByStore = append(summary.ByStore, *st)
	}
	sort.Slice(summary.ByStore, func(i, j int) bool {
		return summary.ByStore[i].StoreID < summary.ByStore[j].StoreID
	})
	return summary, nil
}

// visibleSale loads a sale and hides it when its branch is outside the
// identity's scope.
func (s *Service) visibleSale(ctx context.Context, session scope.Session, saleID string) (*domain.Sale, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return nil, invalid("sale_id", "is required")
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	v, err := s.visibility(ctx, session.Identity)
	if err != nil {
		return nil, err
	}
	if !v.Contains(sale.StoreID) {
		return nil, store.ErrNotFound
	}
	return sale, nil
}

func (s *Service) normalizeLines(ctx context.Context, items []domain.SaleItem) ([]domain.SaleItem, error) {
	if len(items) == 0 {
		return nil, invalid("items", "at least one line is required")
	}
	out := make([]domain.SaleItem, 0, len(items))
	for i, item := range items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" {
			return nil, invalid(fmt.Sprintf("items[%d].product_id", i), "is required")
		}
		if item.Quantity < 1 {
			return nil, invalid(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
		if item.Quantity > ledger.MaxQuantity {
			return nil, invalid(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("must not exceed %d", ledger.MaxQuantity))
		}
		if item.PriceAtSale < 0 {
			return nil, invalid(fmt.Sprintf("items[%d].price_at_sale", i), "must not be negative")
		}
		p, err := s.repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, invalid(fmt.Sprintf("items[%d].product_id", i), "unknown product")
			}
			return nil, err
		}
		if strings.TrimSpace(item.ProductName) == "" {
			item.ProductName = p.Name
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Service) reportAdjustments(saleID string, adjustments []ledger.Adjustment) {
	for _, adj := range adjustments {
		if !adj.Clamped {
			continue
		}
		if adj.Requested > 0 {
			s.logger.Warn("sale edit restock capped at branch limit",
				"sale_id", saleID, "product_id", adj.ProductID, "store_id", adj.StoreID, "applied", adj.Applied)
			continue
		}
		s.metrics.ClampedDecrement.WithLabelValues(adj.StoreID).Inc()
		s.logger.Warn("sale decrement clamped at zero",
			"sale_id", saleID,
			"product_id", adj.ProductID,
			"store_id", adj.StoreID,
			"requested", adj.Requested,
			"applied", adj.Applied,
		)
	}
}

// flagLowStock publishes a low-stock event for every branch a sale drew
// down to the threshold or below.
func (s *Service) flagLowStock(ctx context.Context, adjustments []ledger.Adjustment) {
	for _, adj := range adjustments {
		if adj.Skipped || adj.Applied >= 0 {
			continue
		}
		p, err := s.repo.GetProduct(ctx, adj.ProductID)
		if err != nil {
			s.logger.Warn("low stock check failed", "product_id", adj.ProductID, "error", err)
			continue
		}
		qty := p.StockByStore[adj.StoreID]
		if qty > s.lowStockThreshold {
			continue
		}
		s.publish(ctx, events.SubjectLowStock, adj.StoreID, p.ID, domain.LowStockItem{
			ProductID:     p.ID,
			Name:          p.Name,
			Specification: p.Specification,
			StoreID:       adj.StoreID,
			Quantity:      qty,
		})
	}
}

func normalizeCustomer(c *domain.CustomerSnapshot) *domain.CustomerSnapshot {
	if c == nil {
		return nil
	}
	out := domain.CustomerSnapshot{
		Name:    strings.TrimSpace(c.Name),
		Phone:   strings.TrimSpace(c.Phone),
		Vehicle: strings.TrimSpace(c.Vehicle),
	}
	if out.Name == "" && out.Phone == "" && out.Vehicle == "" {
		return nil
	}
	return &out
}
